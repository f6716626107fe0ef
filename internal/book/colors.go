package book

import (
	"sort"
	"strconv"

	"tickreplay/internal/model"
)

// levelColors is the fixed palette applied to ranked price levels: best,
// second, third, fourth, then grey for everything deeper.
var levelColors = [...]string{"#57fe01", "#fd807f", "#fbfe01", "#03fef9", "#c1c1c1"}

// ColorMap assigns a display color to each distinct price on a side,
// keyed by the price formatted to four decimals.
type ColorMap struct {
	Bids map[string]string `json:"bids"`
	Asks map[string]string `json:"asks"`
}

// PriceKey formats a price the way ColorMap keys it.
func PriceKey(price float64) string {
	return strconv.FormatFloat(price, 'f', 4, 64)
}

// Colors ranks each side's distinct prices best-to-worst and assigns a
// palette color per rank, capping at the last color for deeper ranks. It
// is a derived view and stores nothing.
func Colors(snap model.OrderBookSnapshot) ColorMap {
	bidPrices := distinctPrices(snap.Bids)
	askPrices := distinctPrices(snap.Asks)

	// Best bid is the highest price, best ask the lowest.
	sort.Sort(sort.Reverse(sort.Float64Slice(bidPrices)))
	sort.Float64s(askPrices)

	return ColorMap{
		Bids: colorByRank(bidPrices),
		Asks: colorByRank(askPrices),
	}
}

func distinctPrices(levels []model.BookLevel) []float64 {
	seen := make(map[float64]bool, len(levels))
	var prices []float64
	for _, l := range levels {
		if !seen[l.Price] {
			seen[l.Price] = true
			prices = append(prices, l.Price)
		}
	}
	return prices
}

func colorByRank(prices []float64) map[string]string {
	m := make(map[string]string, len(prices))
	for i, p := range prices {
		idx := i
		if idx >= len(levelColors) {
			idx = len(levelColors) - 1
		}
		m[PriceKey(p)] = levelColors[idx]
	}
	return m
}
