package models

import "fmt"

// FormatSize renders a notional with K/M/B suffixes, e.g. $356.65K, $1.23M.
func FormatSize(size float64) string {
	switch {
	case size >= 1_000_000_000:
		return fmt.Sprintf("$%.2fB", size/1_000_000_000)
	case size >= 1_000_000:
		return fmt.Sprintf("$%.2fM", size/1_000_000)
	default:
		return fmt.Sprintf("$%.2fK", size/1_000)
	}
}

// FormatLifetime renders seconds as 45s, 2m 30s or 1h 5m.
func FormatLifetime(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// SizeEmoji picks the tier marker shown in front of an alert.
func SizeEmoji(size float64) string {
	switch {
	case size < 500_000:
		return "📊"
	case size < 1_000_000:
		return "🔥"
	case size < 5_000_000:
		return "🔥🔥"
	case size < 10_000_000:
		return "💎"
	default:
		return "💎💎💎"
	}
}
