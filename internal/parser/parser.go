package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"

	"crypto-signal-scraper/internal/entity"
)

const (
	// MaxTargets caps the extracted take-profit list.
	MaxTargets = 6
	// MaxRawTextRunes bounds the raw text retained for audit.
	MaxRawTextRunes = 2000
	// minMessageRunes is the shortest text worth attempting to parse.
	minMessageRunes = 10
)

// Input carries one feed message into the parser.
type Input struct {
	Text       string
	SourceID   int64
	SourceName string
	MessageID  int64
	Trusted    bool
	// SentAt, when non-zero, overrides the created_at timestamp. Used
	// during historical backfill.
	SentAt time.Time
}

// Keyword is one entry of the direction lexicon. NotFollowedBy, when set,
// voids a match whose following text matches it ("BUY" vs "BUY ZONE").
type Keyword struct {
	Pattern       string
	NotFollowedBy string
}

// Config carries the configurable lexicons. Zero-value fields fall back to
// the defaults.
type Config struct {
	LongKeywords  []Keyword
	ShortKeywords []Keyword
	KnownCoins    []string
}

// DefaultConfig returns the built-in lexicons.
func DefaultConfig() Config {
	return Config{
		LongKeywords: []Keyword{
			{Pattern: `\bLONG\b`},
			{Pattern: `\bBUY\b`, NotFollowedBy: `^\s*ZONE`},
			{Pattern: `\bBULLISH\b`},
		},
		ShortKeywords: []Keyword{
			{Pattern: `\bSHORT\b`},
			{Pattern: `\bSELL\b`, NotFollowedBy: `^\s*ZONE`},
			{Pattern: `\bBEARISH\b`},
		},
		KnownCoins: defaultKnownCoins(),
	}
}

type keyword struct {
	re      *regexp.Regexp
	exclude *regexp.Regexp
}

type pairRule struct {
	name    string
	extract func(p *Parser, upper string) string
}

type coinRule struct {
	coin string
	re   *regexp.Regexp
}

// Parser turns free-form message text into structured signals. It is pure:
// no I/O, no shared state, and deterministic for a fixed input (the clock is
// injected and only stamps accepted signals).
type Parser struct {
	longWords   []keyword
	shortWords  []keyword
	longGlyphs  []string
	shortGlyphs []string
	pairRules   []pairRule
	coinRules   []coinRule
	now         func() time.Time
}

// New builds a parser from the given lexicons.
func New(cfg Config) (*Parser, error) {
	def := DefaultConfig()
	if len(cfg.LongKeywords) == 0 {
		cfg.LongKeywords = def.LongKeywords
	}
	if len(cfg.ShortKeywords) == 0 {
		cfg.ShortKeywords = def.ShortKeywords
	}
	if len(cfg.KnownCoins) == 0 {
		cfg.KnownCoins = def.KnownCoins
	}

	p := &Parser{
		longGlyphs:  []string{"🟢", "📈", "⬆️", "🔼"},
		shortGlyphs: []string{"🔴", "📉", "⬇️", "🔽"},
		now:         time.Now,
	}

	var err error
	if p.longWords, err = compileKeywords(cfg.LongKeywords); err != nil {
		return nil, fmt.Errorf("long keywords: %w", err)
	}
	if p.shortWords, err = compileKeywords(cfg.ShortKeywords); err != nil {
		return nil, fmt.Errorf("short keywords: %w", err)
	}

	for _, coin := range cfg.KnownCoins {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(coin) + `\b.*(?:LONG|SHORT|BUY|SELL)`)
		if err != nil {
			return nil, fmt.Errorf("known coin %q: %w", coin, err)
		}
		p.coinRules = append(p.coinRules, coinRule{coin: coin, re: re})
	}

	// Precedence is the order of this slice; the first rule that yields a
	// symbol wins.
	p.pairRules = []pairRule{
		{name: "emphasis_framed", extract: (*Parser).pairFromEmphasis},
		{name: "line_start_slash", extract: (*Parser).pairFromLineStart},
		{name: "hashtag", extract: (*Parser).pairFromHashtag},
		{name: "dollar_prefix", extract: (*Parser).pairFromDollar},
		{name: "bare_symbol", extract: (*Parser).pairFromBare},
		{name: "known_coin", extract: (*Parser).pairFromKnownCoin},
		{name: "generic_slash", extract: (*Parser).pairFromSlash},
	}

	return p, nil
}

func compileKeywords(kws []Keyword) ([]keyword, error) {
	out := make([]keyword, 0, len(kws))
	for _, kw := range kws {
		re, err := regexp.Compile(kw.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", kw.Pattern, err)
		}
		var exclude *regexp.Regexp
		if kw.NotFollowedBy != "" {
			if exclude, err = regexp.Compile(kw.NotFollowedBy); err != nil {
				return nil, fmt.Errorf("exclusion %q: %w", kw.NotFollowedBy, err)
			}
		}
		out = append(out, keyword{re: re, exclude: exclude})
	}
	return out, nil
}

// Parse extracts a structured signal from message text. A nil result means
// the message is not a trade call; it is never an error.
func (p *Parser) Parse(in Input) *entity.Signal {
	if utf8.RuneCountInString(in.Text) < minMessageRunes {
		return nil
	}

	// Compatibility normalization collapses stylized glyphs (𝑳𝒐𝒏𝒈, 𝑼𝑺𝑫𝑻)
	// to plain ASCII before any pattern runs.
	normalized := norm.NFKC.String(in.Text)
	upper := strings.ToUpper(normalized)

	pair := p.extractPair(upper)
	if pair == "" && !in.Trusted {
		return nil
	}

	direction := p.extractDirection(normalized, upper)
	if direction == entity.DirectionUnknown && !in.Trusted {
		return nil
	}
	if in.Trusted && pair == "" && direction == entity.DirectionUnknown {
		return nil
	}
	if pair == "" {
		pair = entity.PairUnknown
	}

	entry := p.extractEntry(upper)
	targets := p.extractTargets(upper)
	stopLoss := p.extractStopLoss(upper)
	leverage := p.extractLeverage(upper)

	if !in.Trusted && entry == entity.EntryMarket && len(targets) == 0 {
		return nil
	}

	createdAt := in.SentAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}

	return &entity.Signal{
		ID:         entity.SignalID(in.SourceID, in.MessageID),
		SourceID:   in.SourceID,
		SourceName: in.SourceName,
		MessageID:  in.MessageID,
		Pair:       pair,
		Direction:  direction,
		Entry:      entry,
		Targets:    datatypes.NewJSONSlice(targets),
		StopLoss:   stopLoss,
		Leverage:   leverage,
		RawText:    truncateRunes(in.Text, MaxRawTextRunes),
		CreatedAt:  createdAt.UTC(),
		IsTrusted:  in.Trusted,
		Status:     entity.StatusActive,
		HitTargets: datatypes.NewJSONSlice([]int64{}),
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
