package scanner

import (
	"sort"
	"strings"

	"github.com/rewired-gh/densityscanner/internal/models"
)

// FilterMarkets returns the symbols whose quote asset is in quotes,
// sorted by name. Colon symbols must also be linear contracts quoted in
// the same asset they settle in; dash symbols are matched on their last
// part.
func FilterMarkets(markets map[string]models.Market, quotes []string) []string {
	var out []string
	for symbol, m := range markets {
		if marketMatchesQuote(symbol, m, quotes) {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

func marketMatchesQuote(symbol string, m models.Market, quotes []string) bool {
	switch {
	case strings.Contains(symbol, ":"):
		for _, q := range quotes {
			if strings.HasSuffix(symbol, ":"+q) {
				return m.Linear && m.Quote == q
			}
		}
	case strings.Contains(symbol, "-"):
		parts := strings.Split(symbol, "-")
		quote := parts[len(parts)-1]
		for _, q := range quotes {
			if quote == q {
				return true
			}
		}
	case strings.Contains(symbol, "/"):
		for _, q := range quotes {
			if strings.HasSuffix(symbol, "/"+q) {
				return true
			}
		}
	}
	return false
}

// HasAllowedQuote is the per-symbol check that the symbol ends in one of
// quotes in any notation.
func HasAllowedQuote(symbol string, quotes []string) bool {
	upper := strings.ToUpper(symbol)
	for _, q := range quotes {
		q = strings.ToUpper(q)
		if strings.HasSuffix(upper, "/"+q) ||
			strings.HasSuffix(upper, ":"+q) ||
			strings.HasSuffix(upper, "-"+q) {
			return true
		}
	}
	return false
}

func tickerSet(tickers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[strings.ToUpper(t)] = struct{}{}
	}
	return set
}

// SortByPriority moves symbols whose base is a priority ticker to the
// front, keeping relative order inside both groups.
func SortByPriority(symbols []string, priority []string) []string {
	set := tickerSet(priority)
	out := make([]string, 0, len(symbols))
	var normal []string
	for _, s := range symbols {
		if _, ok := set[strings.ToUpper(models.BaseAsset(s))]; ok {
			out = append(out, s)
		} else {
			normal = append(normal, s)
		}
	}
	return append(out, normal...)
}

// PrioritySymbols selects the symbols eligible for streaming, capped at max.
// truncated reports whether the cap cut the list.
func PrioritySymbols(symbols []string, priority []string, max int) (selected []string, truncated bool) {
	set := tickerSet(priority)
	for _, s := range symbols {
		if _, ok := set[strings.ToUpper(models.BaseAsset(s))]; ok {
			selected = append(selected, s)
		}
	}
	if max > 0 && len(selected) > max {
		return selected[:max], true
	}
	return selected, false
}

// IsTestToken reports whether base looks like a test or demo listing.
func IsTestToken(base string, prefixes, patterns []string) bool {
	upper := strings.ToUpper(base)
	for _, p := range prefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	for _, p := range patterns {
		if strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}
