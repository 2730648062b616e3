package parser

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signal-scraper/internal/entity"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(Config{})
	require.NoError(t, err)
	return p
}

func TestParseFullSignal(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:       "⚡BEATUSDT⚡ Long position Entry: Market TP1: 51000 TP2: 52000 SL-49000 Leverage 10x",
		SourceID:   -100123,
		SourceName: "Test Channel",
		MessageID:  42,
	})

	require.NotNil(t, signal)
	assert.Equal(t, "-100123:42", signal.ID)
	assert.Equal(t, "BEATUSDT", signal.Pair)
	assert.Equal(t, entity.DirectionLong, signal.Direction)
	assert.Equal(t, entity.EntryMarket, signal.Entry)
	assert.Equal(t, []string{"51000", "52000"}, []string(signal.Targets))
	assert.Equal(t, "49000", signal.StopLoss)
	assert.Equal(t, "10x", signal.Leverage)
	assert.Equal(t, entity.StatusActive, signal.Status)
	assert.Empty(t, signal.HitTargets)
}

func TestParseRejectsChatter(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:     "just chatting, nothing tradeable here",
		SourceID: 1,
	})

	assert.Nil(t, signal)
}

func TestParseRejectsShortText(t *testing.T) {
	p := newTestParser(t)
	assert.Nil(t, p.Parse(Input{Text: "gm", SourceID: 1, Trusted: true}))
}

func TestParseTrustedWithoutPair(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:     "Going long here, easy trade tonight",
		SourceID: 7,
		Trusted:  true,
	})

	require.NotNil(t, signal)
	assert.Equal(t, entity.PairUnknown, signal.Pair)
	assert.Equal(t, entity.DirectionLong, signal.Direction)
}

func TestParseTrustedNeedsPairOrDirection(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:     "good morning everyone, coffee time",
		SourceID: 7,
		Trusted:  true,
	})

	assert.Nil(t, signal)
}

func TestParseUntrustedMarketEntryNeedsTargets(t *testing.T) {
	p := newTestParser(t)

	// Pair and direction resolve but there is no entry price and no target.
	signal := p.Parse(Input{
		Text:     "BTCUSDT looking bullish on the 4h chart",
		SourceID: 1,
	})

	assert.Nil(t, signal)
}

func TestParseDeterministic(t *testing.T) {
	p := newTestParser(t)

	in := Input{
		Text:      "BOB/USDT Sell / Short Above - 0.0200 TP- 0.0150 SL: 0.0220 10x",
		SourceID:  5,
		MessageID: 9,
		SentAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	first := p.Parse(in)
	second := p.Parse(in)

	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, "BOBUSDT", first.Pair)
	assert.Equal(t, entity.DirectionShort, first.Direction)
	assert.Equal(t, "0.0200", first.Entry)
	assert.Equal(t, []string{"0.0150"}, []string(first.Targets))
	assert.Equal(t, "0.0220", first.StopLoss)
}

func TestParseUnicodeNormalization(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:      "𝑶𝑵𝑫𝑶/𝑼𝑺𝑫𝑻 𝑳𝒐𝒏𝒈 Entry: 0.95 TP: 1.05 SL: 0.90",
		SourceID:  3,
		MessageID: 1,
	})

	require.NotNil(t, signal)
	assert.Equal(t, "ONDOUSDT", signal.Pair)
	assert.Equal(t, entity.DirectionLong, signal.Direction)
	assert.Equal(t, "0.95", signal.Entry)
}

func TestDirectionEarliestOffsetWins(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		text string
		want entity.SignalDirection
	}{
		{"short before long", "BTCUSDT short squeeze over, do not long yet TP: 60000", entity.DirectionShort},
		{"long before short", "BTCUSDT long setup, shorts will get squeezed TP: 60000", entity.DirectionLong},
		{"sell is short", "BOB/USDT Sell / Short Above - 0.0200 TP: 0.0150", entity.DirectionShort},
		{"buy is long", "ETHUSDT buy 1800 TP: 2500", entity.DirectionLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signal := p.Parse(Input{Text: tc.text, SourceID: 1, MessageID: 1})
			require.NotNil(t, signal)
			assert.Equal(t, tc.want, signal.Direction)
		})
	}
}

func TestDirectionGlyphOutranksWords(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:      "🔴 BTCUSDT long looks tempting but this is a breakdown TP: 50000",
		SourceID:  1,
		MessageID: 1,
	})

	require.NotNil(t, signal)
	assert.Equal(t, entity.DirectionShort, signal.Direction)
}

func TestDirectionBuyZoneExcluded(t *testing.T) {
	p := newTestParser(t)

	// "BUY ZONE" must not resolve a direction; trusted input still parses.
	signal := p.Parse(Input{
		Text:      "ETHUSDT BUY ZONE 1800 TP: 2500",
		SourceID:  1,
		MessageID: 1,
		Trusted:   true,
	})

	require.NotNil(t, signal)
	assert.Equal(t, entity.DirectionUnknown, signal.Direction)
}

func TestTargetCapAtSix(t *testing.T) {
	p := newTestParser(t)

	text := "BTCUSDT long entry 100"
	for i := 1; i <= 8; i++ {
		text += fmt.Sprintf(" TP%d: %d00", i, i)
	}

	signal := p.Parse(Input{Text: text, SourceID: 1, MessageID: 1})

	require.NotNil(t, signal)
	assert.Equal(t, []string{"100", "200", "300", "400", "500", "600"}, []string(signal.Targets))
}

func TestTargetPercentageGroups(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:      "#PEPEUSDT long entry 0.000012 Targets: 35%/45%/55% SL: 0.000010",
		SourceID:  1,
		MessageID: 1,
	})

	require.NotNil(t, signal)
	assert.Equal(t, "PEPEUSDT", signal.Pair)
	assert.Equal(t, []string{"35%", "45%", "55%"}, []string(signal.Targets))
}

func TestTargetDeduplication(t *testing.T) {
	p := newTestParser(t)

	signal := p.Parse(Input{
		Text:      "BTCUSDT long entry 100 TP1: 200 TP2: 200 TP3: 300",
		SourceID:  1,
		MessageID: 1,
	})

	require.NotNil(t, signal)
	assert.Equal(t, []string{"200", "300"}, []string(signal.Targets))
}

func TestPairRulePrecedence(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"emphasis framed", "⚡BEAT⚡ long entry 1 TP: 2", "BEATUSDT"},
		{"emphasis quote normalized", "🔥ETHBUSD🔥 short entry 1800 TP: 1700", "ETHUSDT"},
		{"line start slash", "ONDO/USDT\nlong entry 0.9 TP: 1.1", "ONDOUSDT"},
		{"hashtag", "#BTCUSDT long entry 60000 TP: 65000", "BTCUSDT"},
		{"hashtag perp stripped", "#SOLPERP short entry 150 TP: 140", "SOLUSDT"},
		{"dollar prefix", "$DOGE long entry 0.1 TP: 0.2", "DOGEUSDT"},
		{"bare symbol", "open WIFUSDT long entry 2 TP: 3", "WIFUSDT"},
		{"known coin with keyword", "pepe long from here, entry 0.00001 TP: 0.00002", "PEPEUSDT"},
		{"generic slash", "entry 0.5 TP: 0.7 for XYZ / USD long", "XYZUSDT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signal := p.Parse(Input{Text: tc.text, SourceID: 1, MessageID: 1})
			require.NotNil(t, signal)
			assert.Equal(t, tc.want, signal.Pair)
		})
	}
}

func TestEntryExtraction(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"market keyword", "BTCUSDT long market price TP: 65000", entity.EntryMarket},
		{"cmp keyword", "BTCUSDT long CMP TP: 65000", entity.EntryMarket},
		{"proximity above", "BTCUSDT long above - 64,500 TP: 65000", "64500"},
		{"labeled entry", "BTCUSDT long entry: 64500 TP: 65000", "64500"},
		{"zero entry falls through", "BTCUSDT long entry: 0 TP: 65000", entity.EntryMarket},
		{"default market", "BTCUSDT long TP: 65000", entity.EntryMarket},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signal := p.Parse(Input{Text: tc.text, SourceID: 1, MessageID: 1})
			require.NotNil(t, signal)
			assert.Equal(t, tc.want, signal.Entry)
		})
	}
}

func TestLeverageBounds(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"in range", "BTCUSDT long TP: 65000 leverage - 25x cross", "25x"},
		{"max", "BTCUSDT long TP: 65000 125x", "125x"},
		{"out of range", "BTCUSDT long TP: 65000 leverage 200x", ""},
		{"absent", "BTCUSDT long TP: 65000", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			signal := p.Parse(Input{Text: tc.text, SourceID: 1, MessageID: 1})
			require.NotNil(t, signal)
			assert.Equal(t, tc.want, signal.Leverage)
		})
	}
}

func TestRawTextTruncated(t *testing.T) {
	p := newTestParser(t)

	long := "BTCUSDT long entry 60000 TP: 65000 "
	for len(long) < 3000 {
		long += "x"
	}

	signal := p.Parse(Input{Text: long, SourceID: 1, MessageID: 1})

	require.NotNil(t, signal)
	assert.Len(t, []rune(signal.RawText), MaxRawTextRunes)
}

func TestBackfillTimestampOverride(t *testing.T) {
	p := newTestParser(t)

	sentAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	signal := p.Parse(Input{
		Text:      "BTCUSDT long entry 60000 TP: 65000",
		SourceID:  1,
		MessageID: 1,
		SentAt:    sentAt,
	})

	require.NotNil(t, signal)
	assert.Equal(t, sentAt, signal.CreatedAt)
}

func TestConfigurableLexicon(t *testing.T) {
	p, err := New(Config{
		LongKeywords:  []Keyword{{Pattern: `\bAPE\s+IN\b`}},
		ShortKeywords: []Keyword{{Pattern: `\bFADE\b`}},
	})
	require.NoError(t, err)

	signal := p.Parse(Input{Text: "BTCUSDT ape in now entry 60000 TP: 65000", SourceID: 1, MessageID: 1})
	require.NotNil(t, signal)
	assert.Equal(t, entity.DirectionLong, signal.Direction)

	signal = p.Parse(Input{Text: "BTCUSDT fade this move entry 60000 TP: 55000", SourceID: 1, MessageID: 1})
	require.NotNil(t, signal)
	assert.Equal(t, entity.DirectionShort, signal.Direction)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Config{LongKeywords: []Keyword{{Pattern: `([`}}})
	assert.Error(t, err)
}

func TestCleanNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1,234.50", "1234.50"},
		{" 49000 ", "49000"},
		{"-0.02-", "0.02"},
		{"..", ""},
		{"", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, cleanNumber(tc.in), "cleanNumber(%q)", tc.in)
	}
}
