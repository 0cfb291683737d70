package realtime

import "github.com/gyaneshwarpardhi/paypulse/internal/analytics"

// Outbound channel names.
const (
	ChannelPaymentEvent  = "payment-event"
	ChannelMetricsUpdate = "metrics-update"
	ChannelAlert         = "alert"
	ChannelTrendsUpdate  = "trends-update"
)

// Message is one frame pushed to stream subscribers. Data holds a
// payment.Event, analytics.Metrics, alert.Alert or TrendsUpdate depending on
// Channel.
type Message struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// TrendsUpdate carries a refreshed series for one period.
type TrendsUpdate struct {
	Period analytics.Period      `json:"period"`
	Points analytics.TrendSeries `json:"points"`
}
