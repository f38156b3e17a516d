package analytics

import (
	"sort"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// DefaultMaxPoints bounds display series length.
const DefaultMaxPoints = 20

// BuildSeries turns correlated trades into a display series.
//
// PercentChange compares the chronologically first and last trade prices and
// Volume sums every trade, so neither depends on down-sampling. current is
// appended as the final "now" point when non-nil.
func BuildSeries(trades []model.CorrelatedTrade, current *model.PricePoint, maxPoints int) model.PriceSeries {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	sorted := make([]model.CorrelatedTrade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	series := model.PriceSeries{Points: make([]model.PricePoint, 0, maxPoints+1)}

	for _, trade := range sorted {
		series.Volume += trade.PaymentAmount
	}

	if n := len(sorted); n >= 2 {
		first := sorted[0].PricePerToken
		last := sorted[n-1].PricePerToken
		series.PercentChange = percentChange(first, last)
	}

	for _, trade := range downsample(sorted, maxPoints) {
		series.Points = append(series.Points, model.PricePoint{Timestamp: trade.Timestamp, Price: trade.PricePerToken})
	}
	if current != nil {
		point := *current
		if n := len(series.Points); n > 0 && point.Timestamp.Before(series.Points[n-1].Timestamp) {
			point.Timestamp = series.Points[n-1].Timestamp
		}
		series.Points = append(series.Points, point)
	}
	return series
}

// downsample keeps every ceil(n/maxPoints)-th element starting at the first.
func downsample(sorted []model.CorrelatedTrade, maxPoints int) []model.CorrelatedTrade {
	n := len(sorted)
	if n <= maxPoints {
		return sorted
	}
	step := (n + maxPoints - 1) / maxPoints
	out := make([]model.CorrelatedTrade, 0, maxPoints)
	for i := 0; i < n; i += step {
		out = append(out, sorted[i])
	}
	return out
}

func percentChange(first, last float64) float64 {
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}

// FlatLine builds count equal points at price spread evenly across [end-window, end].
func FlatLine(price float64, end time.Time, window time.Duration, count int) []model.PricePoint {
	if count <= 0 {
		return []model.PricePoint{}
	}
	if count == 1 {
		return []model.PricePoint{{Timestamp: end, Price: price}}
	}
	start := end.Add(-window)
	step := window / time.Duration(count-1)
	points := make([]model.PricePoint, count)
	for i := range points {
		points[i] = model.PricePoint{Timestamp: start.Add(time.Duration(i) * step), Price: price}
	}
	points[count-1].Timestamp = end
	return points
}
