package model

import "time"

// PricePoint is a single display point of a price series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price_usd"`
}

// PriceSeries is a bounded, chronologically ordered price series with derived stats.
type PriceSeries struct {
	Points        []PricePoint `json:"points"`
	PercentChange float64      `json:"percent_change"`
	Volume        float64      `json:"volume"`
}

// AnalyticsSource names the strategy state that produced an Analytics result.
type AnalyticsSource string

const (
	SourceHistoricalRead      AnalyticsSource = "historical_read"
	SourceTradeReconstruction AnalyticsSource = "trade_reconstruction"
	SourceFlatLine            AnalyticsSource = "flat_line"
	SourceEmpty               AnalyticsSource = "empty"
	SourceUnavailable         AnalyticsSource = "unavailable"
)

// Analytics is the price analytics payload served for a token and window.
type Analytics struct {
	TokenAddress  string          `json:"token_address"`
	WindowSeconds int64           `json:"window_seconds"`
	Source        AnalyticsSource `json:"source"`
	PercentChange float64         `json:"percent_change"`
	Volume        float64         `json:"volume"`
	CurrentPrice  *float64        `json:"current_price,omitempty"`
	TradeCount    int             `json:"trade_count"`
	Series        []PricePoint    `json:"series"`
	ComputedAt    time.Time       `json:"computed_at"`
}
