package telegram

import (
	"fmt"
	"html"
	"strings"

	"crypto-signal-scraper/internal/entity"
)

// FormatSignalAlert renders one signal as an HTML Telegram message.
func FormatSignalAlert(s *entity.Signal) string {
	var directionIcon string
	switch s.Direction {
	case entity.DirectionLong:
		directionIcon = "🟢"
	case entity.DirectionShort:
		directionIcon = "🔴"
	default:
		directionIcon = "⚪"
	}

	trustedBadge := ""
	if s.IsTrusted {
		trustedBadge = " ⭐ VIP"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>NEW SIGNAL</b>%s\n\n", directionIcon, trustedBadge))
	b.WriteString(fmt.Sprintf("<b>Pair:</b> <code>%s</code>\n", html.EscapeString(s.Pair)))
	b.WriteString(fmt.Sprintf("<b>Direction:</b> %s\n", s.Direction))
	b.WriteString(fmt.Sprintf("<b>Entry:</b> <code>%s</code>\n", html.EscapeString(s.Entry)))
	b.WriteString(fmt.Sprintf("<b>Leverage:</b> %s\n\n", orNA(s.Leverage)))

	b.WriteString("<b>Targets:</b>\n")
	if len(s.Targets) == 0 {
		b.WriteString("  • Market targets\n")
	} else {
		for i, t := range s.Targets {
			b.WriteString(fmt.Sprintf("  • TP%d: <code>%s</code>\n", i+1, html.EscapeString(t)))
		}
	}

	b.WriteString(fmt.Sprintf("\n<b>Stop Loss:</b> <code>%s</code>\n\n", orNA(s.StopLoss)))
	b.WriteString(fmt.Sprintf("📡 <i>%s</i>\n", html.EscapeString(s.SourceName)))
	b.WriteString(fmt.Sprintf("🕐 <i>%s</i>\n\n", s.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")))

	if s.Pair != entity.PairUnknown {
		b.WriteString(fmt.Sprintf(
			`<a href="https://www.tradingview.com/chart/?symbol=BINANCE:%s.P">📊 TradingView</a> | <a href="https://www.binance.com/en/futures/%s">📈 Binance</a>`,
			s.Pair, s.Pair))
	}

	return b.String()
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return html.EscapeString(v)
}
