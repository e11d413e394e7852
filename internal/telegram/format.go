package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/models"
)

// formatAlert renders a density alert as a Telegram MarkdownV2 message.
func formatAlert(a models.DensityAlert) string {
	venue := exchange.VenueInfo(a.Exchange)
	base := models.BaseAsset(a.Symbol)

	ticker := escapeMarkdownV2(base)
	if url := venue.TradeLink(base); url != "" {
		ticker = fmt.Sprintf("[%s](%s)", ticker, escapeLinkURL(url))
	}

	sideEmoji, sideText := "🟥", "ASK (sell wall)"
	if a.Side == models.SideBid {
		sideEmoji, sideText = "🟩", "BID (buy wall)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* \\| *%s* \\| %s\n",
		models.SizeEmoji(a.Volume),
		escapeMarkdownV2(venue.Label),
		escapeMarkdownV2(models.FormatSize(a.Volume)),
		strings.ToUpper(string(a.Side)))
	fmt.Fprintf(&b, "Market: %s\n", escapeMarkdownV2(venue.MarketType))
	fmt.Fprintf(&b, "Ticker: %s\n", ticker)
	fmt.Fprintf(&b, "Side: %s %s\n", sideEmoji, escapeMarkdownV2(sideText))
	fmt.Fprintf(&b, "Price: %s\n", escapeMarkdownV2(strconv.FormatFloat(a.Price, 'f', -1, 64)))
	fmt.Fprintf(&b, "Size: %s\n", escapeMarkdownV2("$"+humanize.Comma(int64(math.Round(a.Volume)))))
	fmt.Fprintf(&b, "Distance: %s\n", escapeMarkdownV2(fmt.Sprintf("%.2f%%", a.DistancePct)))
	fmt.Fprintf(&b, "⏱️ Lifetime: %s", escapeMarkdownV2(models.FormatLifetime(a.LifetimeSeconds)))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...) of
// an inline link.
func escapeLinkURL(url string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(url)
}
