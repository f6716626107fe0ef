package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tickreplay/config"
	"tickreplay/internal/gateway"
	"tickreplay/internal/logger"
	"tickreplay/internal/metrics"
	"tickreplay/internal/model"
	"tickreplay/internal/player"
	"tickreplay/internal/replay"
	redisstore "tickreplay/internal/store/redis"
	sqlitestore "tickreplay/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	cfg := config.Load()

	slg := logger.Init("replayd", logger.ParseLevel(cfg.LogLevel), cfg.LogFile)
	slg.Info("starting", slog.String("sqlite", cfg.SQLitePath), slog.String("gateway", cfg.GatewayAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite session store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[replayd] sqlite init failed: %v", err)
	}
	defer reader.Close()

	// ---- Redis publisher (optional) ----
	var pub *redisstore.Publisher
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		pub, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[replayd] WARNING: redis init failed: %v (continuing without redis)", err)
			pub = nil
		} else {
			rdb = pub.Client()
			defer pub.Close()
		}
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.CheckSQLite(ctx, reader.DB())
	health.StartLivenessChecker(ctx, reader.DB(), rdb, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Replay engine on the shared frame loop ----
	loop := player.NewTickerLoop(0)
	go loop.Run(ctx)

	var enginePub model.EventPublisher
	if pub != nil {
		enginePub = pub
	}
	eng := replay.New(loop, reader, enginePub, prom, replay.Config{
		Depth: cfg.DepthLevels,
	})
	if err := eng.SetSpeed(cfg.DefaultSpeed); err != nil {
		log.Printf("[replayd] WARNING: unrecognized DEFAULT_SPEED %g, keeping 1x", cfg.DefaultSpeed)
	}

	// Mirror engine activity into the health status
	go trackHealth(ctx, eng, health)

	// ---- WebSocket gateway ----
	hub := gateway.NewHub(eng, reader, cfg.ParseTFs())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, processStart)

	httpSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[replayd] gateway listening on %s", cfg.GatewayAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[replayd] gateway server error: %v", err)
		}
	}()

	<-sigCh
	slg.Info("shutting down")

	eng.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// trackHealth feeds session and tick liveness from engine events into
// the /healthz payload.
func trackHealth(ctx context.Context, eng *replay.Engine, health *metrics.HealthStatus) {
	events, unsub := eng.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case replay.EventInit:
				health.SetActiveSession(ev.SessionID)
			case replay.EventQuote:
				health.SetLastTickTime(time.Now())
			case replay.EventEnd:
				health.SetActiveSession("")
			}
		}
	}
}
