package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"crypto-signal-scraper/internal/entity"
)

// quoteSuffix is the canonical quote currency every extracted symbol is
// normalized to.
const quoteSuffix = "USDT"

var (
	reEmphasisPair  = regexp.MustCompile(`[⚡💎🔥✨]+\s*([A-Z0-9]{2,15}(?:USDT|BUSD|USD)?)\s*[⚡💎🔥✨]+`)
	reLineStartPair = regexp.MustCompile(`(?m)^([A-Z0-9]{2,10})\s*/\s*USDT`)
	reHashtagPair   = regexp.MustCompile(`#([A-Z0-9]{2,15}(?:USDT|PERP)?)\b`)
	reDollarPair    = regexp.MustCompile(`\$([A-Z]{2,10})\b`)
	reBarePair      = regexp.MustCompile(`\b([A-Z0-9]{2,10}USDT)\b`)
	reSlashPair     = regexp.MustCompile(`\b([A-Z0-9]{2,10})\s*/\s*(?:USDT|USD|BUSD)`)

	reMarketEntry = []*regexp.Regexp{
		regexp.MustCompile(`ENTRY\s*[:\-]?\s*MARKET`),
		regexp.MustCompile(`MARKET\s*PRICE`),
		regexp.MustCompile(`ENTRY\s*(?:AT\s*)?MARKET`),
		regexp.MustCompile(`\bCMP\b`),
		regexp.MustCompile(`CURRENT\s*(?:MARKET\s*)?PRICE`),
		regexp.MustCompile(`MARKET\s*ENTRY`),
	}
	reProximityEntry = regexp.MustCompile(`(?:ABOVE|BELOW|AROUND|NEAR|AT)\s*[-:=]?\s*([\d.,]+)`)
	reLabeledEntry   = []*regexp.Regexp{
		regexp.MustCompile(`ENTRY\s*(?:PRICE|ZONE|POINT)?[\s:=-]*([\d.,]+)`),
		regexp.MustCompile(`ENTER\s*(?:AT|AROUND|NEAR)?[\s:=-]*([\d.,]+)`),
		regexp.MustCompile(`BUY\s*(?:AT|AROUND|NEAR|ZONE)?[\s:=-]*([\d.,]+)`),
		regexp.MustCompile(`SELL\s*(?:AT|AROUND|NEAR|ZONE)?[\s:=-]*([\d.,]+)`),
		regexp.MustCompile(`\bEP[\s:=-]*([\d.,]+)`),
		regexp.MustCompile(`PRICE[\s:=-]*([\d.,]+)`),
	}

	reGroupedPctTargets = regexp.MustCompile(`TARGETS?\s*[\n:]?\s*([\d.]+%(?:\s*/\s*[\d.]+%)+)`)
	rePctValue          = regexp.MustCompile(`([\d.]+)%`)
	reSinglePctTarget   = regexp.MustCompile(`(?:TAKE\s*PROFIT|TP)\s*[:\-=]?\s*([\d.]+)\s*%`)
	reTPValue           = regexp.MustCompile(`TP\s*(?:[-:=]|\s)\s*([\d.,]+)`)
	reNumberedTP        = regexp.MustCompile(`TP\s*\d*\s*[:\-=]\s*([\d.,]+)`)
	rePctAfter          = regexp.MustCompile(`^\s*%`)
	reLabeledTargets    = []*regexp.Regexp{
		regexp.MustCompile(`TARGET\s*\d*\s*[:\-=]\s*([\d.,]+)`),
		regexp.MustCompile(`TAKE\s*PROFIT\s*\d*\s*[:\-=]\s*([\d.,]+)`),
		regexp.MustCompile(`🎯\s*([\d.,]+)`),
	}

	reStopLoss = []*regexp.Regexp{
		regexp.MustCompile(`(?:STOP\s*LOSS|STOPLOSS|SL)\s*[:\-=]\s*([\d.,]+)`),
		regexp.MustCompile(`SL\s*[:\-=]?\s*([\d.,]+)`),
		regexp.MustCompile(`STOP\s*[:\-=]\s*([\d.,]+)`),
		regexp.MustCompile(`🛑\s*([\d.,]+)`),
		regexp.MustCompile(`⛔\s*([\d.,]+)`),
	}

	reLeverage = []*regexp.Regexp{
		regexp.MustCompile(`LEVERAGE\s*[-:=]?\s*(\d+)\s*X`),
		regexp.MustCompile(`LEV\s*[-:=]?\s*(\d+)\s*X`),
		regexp.MustCompile(`(\d+)\s*X\b`),
		regexp.MustCompile(`(\d+)X`),
	}

	reNonNumeric = regexp.MustCompile(`[^\d.,\-]`)
)

// extractPair runs the pair rules in priority order; the first symbol wins.
func (p *Parser) extractPair(upper string) string {
	for _, rule := range p.pairRules {
		if pair := rule.extract(p, upper); pair != "" {
			return pair
		}
	}
	return ""
}

func (p *Parser) pairFromEmphasis(upper string) string {
	m := reEmphasisPair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return normalizeQuote(m[1])
}

func (p *Parser) pairFromLineStart(upper string) string {
	m := reLineStartPair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1] + quoteSuffix
}

func (p *Parser) pairFromHashtag(upper string) string {
	m := reHashtagPair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return normalizeQuote(strings.ReplaceAll(m[1], "PERP", ""))
}

func (p *Parser) pairFromDollar(upper string) string {
	m := reDollarPair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1] + quoteSuffix
}

func (p *Parser) pairFromBare(upper string) string {
	m := reBarePair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1]
}

func (p *Parser) pairFromKnownCoin(upper string) string {
	for _, rule := range p.coinRules {
		if rule.re.MatchString(upper) {
			return rule.coin + quoteSuffix
		}
	}
	return ""
}

func (p *Parser) pairFromSlash(upper string) string {
	m := reSlashPair.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1] + quoteSuffix
}

// normalizeQuote rewrites non-canonical quote currencies to USDT and appends
// the suffix when the symbol carries none.
func normalizeQuote(pair string) string {
	switch {
	case strings.HasSuffix(pair, quoteSuffix):
		return pair
	case strings.HasSuffix(pair, "BUSD"):
		return strings.TrimSuffix(pair, "BUSD") + quoteSuffix
	case strings.HasSuffix(pair, "USD"):
		return strings.TrimSuffix(pair, "USD") + quoteSuffix
	default:
		return pair + quoteSuffix
	}
}

// extractDirection resolves the traded side. Directional glyphs outrank
// words; within each class the earliest occurrence in the text wins.
func (p *Parser) extractDirection(normalized, upper string) entity.SignalDirection {
	longGlyph := earliestGlyph(normalized, p.longGlyphs)
	shortGlyph := earliestGlyph(normalized, p.shortGlyphs)
	if longGlyph >= 0 || shortGlyph >= 0 {
		return pickEarliest(longGlyph, shortGlyph)
	}

	longWord := earliestKeyword(upper, p.longWords)
	shortWord := earliestKeyword(upper, p.shortWords)
	return pickEarliest(longWord, shortWord)
}

func pickEarliest(long, short int) entity.SignalDirection {
	switch {
	case long >= 0 && (short < 0 || long < short):
		return entity.DirectionLong
	case short >= 0:
		return entity.DirectionShort
	default:
		return entity.DirectionUnknown
	}
}

func earliestGlyph(text string, glyphs []string) int {
	best := -1
	for _, g := range glyphs {
		if idx := strings.Index(text, g); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func earliestKeyword(upper string, kws []keyword) int {
	best := -1
	for _, kw := range kws {
		for _, loc := range kw.re.FindAllStringIndex(upper, -1) {
			if kw.exclude != nil && kw.exclude.MatchString(upper[loc[1]:]) {
				continue
			}
			if best < 0 || loc[0] < best {
				best = loc[0]
			}
			break
		}
	}
	return best
}

// extractEntry resolves the entry price. Market-style wording short-circuits
// to the sentinel; otherwise proximity labels, then explicit labels, each
// requiring a positive number; the fallback is the sentinel.
func (p *Parser) extractEntry(upper string) string {
	for _, re := range reMarketEntry {
		if re.MatchString(upper) {
			return entity.EntryMarket
		}
	}

	if m := reProximityEntry.FindStringSubmatch(upper); m != nil {
		if v, ok := positiveNumber(m[1]); ok {
			return v
		}
	}

	for _, re := range reLabeledEntry {
		if m := re.FindStringSubmatch(upper); m != nil {
			if v, ok := positiveNumber(m[1]); ok {
				return v
			}
		}
	}

	return entity.EntryMarket
}

// extractTargets merges the target sub-patterns in priority order into one
// deduplicated list capped at MaxTargets, preserving first-appearance order
// across the merge.
func (p *Parser) extractTargets(upper string) []string {
	targets := make([]string, 0, MaxTargets)
	seen := make(map[string]struct{})

	add := func(v string) {
		if v == "" || len(targets) == MaxTargets {
			return
		}
		key := strings.TrimSuffix(v, "%")
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		targets = append(targets, v)
	}

	if m := reGroupedPctTargets.FindStringSubmatch(upper); m != nil {
		for _, pm := range rePctValue.FindAllStringSubmatch(m[1], -1) {
			add(pm[1] + "%")
		}
	}

	if m := reSinglePctTarget.FindStringSubmatch(upper); m != nil {
		add(m[1] + "%")
	}

	// TP followed by a price. Go regexp has no lookahead, so the "not a
	// percentage" exclusion inspects the text after each match.
	for _, loc := range reTPValue.FindAllStringSubmatchIndex(upper, -1) {
		if rePctAfter.MatchString(upper[loc[3]:]) {
			continue
		}
		if v, ok := positiveNumber(upper[loc[2]:loc[3]]); ok {
			add(v)
		}
	}

	for _, m := range reNumberedTP.FindAllStringSubmatch(upper, -1) {
		if v, ok := positiveNumber(m[1]); ok {
			add(v)
		}
	}

	for _, re := range reLabeledTargets {
		for _, m := range re.FindAllStringSubmatch(upper, -1) {
			if v, ok := positiveNumber(m[1]); ok {
				add(v)
			}
		}
	}

	return targets
}

func (p *Parser) extractStopLoss(upper string) string {
	for _, re := range reStopLoss {
		if m := re.FindStringSubmatch(upper); m != nil {
			if v, ok := positiveNumber(m[1]); ok {
				return v
			}
		}
	}
	return ""
}

func (p *Parser) extractLeverage(upper string) string {
	for _, re := range reLeverage {
		if m := re.FindStringSubmatch(upper); m != nil {
			if lev, err := strconv.Atoi(m[1]); err == nil && lev >= 1 && lev <= 125 {
				return fmt.Sprintf("%dx", lev)
			}
		}
	}
	return ""
}

// cleanNumber strips everything except digits, dots and minus signs, drops
// thousands separators and trims stray leading/trailing separators.
func cleanNumber(v string) string {
	v = reNonNumeric.ReplaceAllString(v, "")
	v = strings.ReplaceAll(v, ",", "")
	return strings.Trim(v, ".-")
}

// positiveNumber cleans a raw capture and keeps it only when it parses as a
// number greater than zero.
func positiveNumber(raw string) (string, bool) {
	c := cleanNumber(raw)
	if c == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(c, 64)
	if err != nil || f <= 0 {
		return "", false
	}
	return c, true
}

func defaultKnownCoins() []string {
	return []string{
		"BTC", "ETH", "BNB", "XRP", "ADA", "DOGE", "SOL", "DOT", "MATIC", "SHIB",
		"LTC", "TRX", "AVAX", "LINK", "ATOM", "UNI", "XMR", "ETC", "XLM", "BCH",
		"APT", "FIL", "LDO", "ARB", "OP", "INJ", "SUI", "SEI", "TIA", "JUP",
		"PEPE", "WIF", "BONK", "FLOKI", "MEME", "ORDI", "SATS", "RATS", "1000SATS",
		"ONDO", "BOB", "BEAT", "RENDER", "FET", "AGIX", "OCEAN", "TAO", "WLD",
		"NEAR", "ICP", "VET", "ALGO", "GRT", "FTM", "SAND", "MANA", "AXS", "GALA",
		"ENJ", "IMX", "BLUR", "MAGIC", "GMT", "APE", "DYDX", "GMX", "SNX", "CRV",
		"AAVE", "MKR", "COMP", "SUSHI", "YFI", "BAL", "ZRX", "1INCH", "LQTY",
		"PENDLE", "EIGEN", "ENA", "ETHFI", "W", "STRK", "PYTH", "JTO", "NTRN",
		"DYM", "ALT", "MANTA", "PIXEL", "PORTAL", "AEVO", "BOME", "SLERF",
	}
}
