package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crypto-signal-scraper/internal/entity"
)

func baseSignal() *entity.Signal {
	return &entity.Signal{
		ID:         "100:1",
		SourceName: "Alpha Calls",
		Pair:       "BTCUSDT",
		Direction:  entity.DirectionLong,
		Entry:      "64500",
		Targets:    []string{"65000", "66000"},
		StopLoss:   "63000",
		Leverage:   "10x",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:     entity.StatusActive,
	}
}

func TestFormatSignalAlert(t *testing.T) {
	text := FormatSignalAlert(baseSignal())

	assert.Contains(t, text, "🟢 <b>NEW SIGNAL</b>")
	assert.Contains(t, text, "<code>BTCUSDT</code>")
	assert.Contains(t, text, "TP1: <code>65000</code>")
	assert.Contains(t, text, "TP2: <code>66000</code>")
	assert.Contains(t, text, "<b>Stop Loss:</b> <code>63000</code>")
	assert.Contains(t, text, "Alpha Calls")
	assert.Contains(t, text, "2025-06-01 12:00 UTC")
	assert.Contains(t, text, "BINANCE:BTCUSDT.P")
	assert.NotContains(t, text, "VIP")
}

func TestFormatSignalAlertShortWithBadge(t *testing.T) {
	s := baseSignal()
	s.Direction = entity.DirectionShort
	s.IsTrusted = true

	text := FormatSignalAlert(s)

	assert.Contains(t, text, "🔴 <b>NEW SIGNAL</b> ⭐ VIP")
}

func TestFormatSignalAlertUnknownPairOmitsChartLinks(t *testing.T) {
	s := baseSignal()
	s.Pair = entity.PairUnknown
	s.Direction = entity.DirectionUnknown

	text := FormatSignalAlert(s)

	assert.Contains(t, text, "⚪ <b>NEW SIGNAL</b>")
	assert.NotContains(t, text, "tradingview.com")
	assert.NotContains(t, text, "binance.com")
}

func TestFormatSignalAlertEmptyFields(t *testing.T) {
	s := baseSignal()
	s.Targets = nil
	s.StopLoss = ""
	s.Leverage = ""

	text := FormatSignalAlert(s)

	assert.Contains(t, text, "Market targets")
	assert.Contains(t, text, "<b>Stop Loss:</b> <code>N/A</code>")
	assert.Contains(t, text, "<b>Leverage:</b> N/A")
}

func TestFormatSignalAlertEscapesMarkup(t *testing.T) {
	s := baseSignal()
	s.SourceName = "Alpha <&> Calls"

	text := FormatSignalAlert(s)

	assert.Contains(t, text, "Alpha &lt;&amp;&gt; Calls")
}
