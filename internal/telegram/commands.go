package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/models"
	"github.com/rewired-gh/densityscanner/internal/scanner"
	"github.com/rewired-gh/densityscanner/internal/settings"
)

// SettingsEditor is the write side of the runtime settings.
type SettingsEditor interface {
	SetAlertsEnabled(enabled bool) error
	SetDistancePct(pct float64) error
	SetScanInterval(d time.Duration) error
	SetOrderBookDepth(depth int) error
	AddGlobalBlacklist(ticker string) error
	RemoveGlobalBlacklist(ticker string) error
	AddExchangeBlacklist(exchange, ticker string) error
	RemoveExchangeBlacklist(exchange, ticker string) error
	SetGlobalTickerOverride(ticker string, minSize float64) error
	RemoveGlobalTickerOverride(ticker string) error
	SetExchangeTickerOverride(exchange, ticker string, minSize float64) error
	RemoveExchangeTickerOverride(exchange, ticker string) error
	SetExchangeMinSize(exchange string, minSize float64) error
	SetExchangeMinLifetime(exchange string, seconds int) error
}

// Controller is the part of the running scanner exposed to bot commands.
type Controller interface {
	Status() []scanner.ExchangeStatus
	Settings() settings.Snapshot
	SettingsEditor
}

const helpText = `Commands:
/ping
/status - exchange health
/settings - current thresholds
/alerts on|off
/distance <pct>
/interval <seconds|duration>
/depth <levels>
/minsize <exchange> <size>
/lifetime <exchange> <seconds>
/blacklist add|remove <ticker> [exchange]
/override set <ticker> <size> [exchange]
/override remove <ticker> [exchange]`

var adminCommands = map[string]bool{
	"alerts": true, "distance": true, "interval": true, "depth": true,
	"minsize": true, "lifetime": true, "blacklist": true, "override": true,
}

// commandReply returns the MarkdownV2 answer to a command, or "" for
// commands the bot ignores. Commands that change settings need authorized.
func commandReply(cmd, args string, authorized bool, ctrl Controller) string {
	if adminCommands[cmd] && !authorized {
		return "⛔ Not authorized"
	}
	fields := strings.Fields(args)

	switch cmd {
	case "ping":
		return "Pong"
	case "start", "help":
		return escapeMarkdownV2(helpText)
	case "status":
		return formatStatus(ctrl.Status())
	case "settings":
		return formatSettings(ctrl.Settings())
	case "alerts":
		return alertsReply(fields, ctrl)
	case "distance":
		if len(fields) != 1 {
			return usage("/distance <pct>")
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
		if err != nil {
			return invalid("distance", fields[0])
		}
		return changeReply(fmt.Sprintf("Distance set to %.2f%%", pct), ctrl.SetDistancePct(pct))
	case "interval":
		if len(fields) != 1 {
			return usage("/interval <seconds|duration>")
		}
		d, err := parseInterval(fields[0])
		if err != nil {
			return invalid("interval", fields[0])
		}
		return changeReply("Scan interval set to "+d.String(), ctrl.SetScanInterval(d))
	case "depth":
		if len(fields) != 1 {
			return usage("/depth <levels>")
		}
		depth, err := strconv.Atoi(fields[0])
		if err != nil {
			return invalid("depth", fields[0])
		}
		return changeReply(fmt.Sprintf("Order book depth set to %d", depth), ctrl.SetOrderBookDepth(depth))
	case "minsize":
		if len(fields) != 2 {
			return usage("/minsize <exchange> <size>")
		}
		name, ok := knownExchange(ctrl, fields[0])
		if !ok {
			return unknownExchange(fields[0])
		}
		size, err := parseSize(fields[1])
		if err != nil {
			return invalid("size", fields[1])
		}
		return changeReply(fmt.Sprintf("%s min size set to %s", name, models.FormatSize(size)),
			ctrl.SetExchangeMinSize(name, size))
	case "lifetime":
		if len(fields) != 2 {
			return usage("/lifetime <exchange> <seconds>")
		}
		name, ok := knownExchange(ctrl, fields[0])
		if !ok {
			return unknownExchange(fields[0])
		}
		seconds, err := strconv.Atoi(strings.TrimSuffix(fields[1], "s"))
		if err != nil {
			return invalid("lifetime", fields[1])
		}
		return changeReply(fmt.Sprintf("%s min lifetime set to %ds", name, seconds),
			ctrl.SetExchangeMinLifetime(name, seconds))
	case "blacklist":
		return blacklistReply(fields, ctrl)
	case "override":
		return overrideReply(fields, ctrl)
	}
	return ""
}

func alertsReply(fields []string, ctrl Controller) string {
	var enabled bool
	arg := ""
	if len(fields) == 1 {
		arg = strings.ToLower(fields[0])
	}
	switch arg {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		state := "off"
		if ctrl.Settings().AlertsEnabled {
			state = "on"
		}
		return fmt.Sprintf("Alerts are *%s*\\. Usage: /alerts on\\|off", state)
	}
	if err := ctrl.SetAlertsEnabled(enabled); err != nil {
		return changeReply("", err)
	}
	logger.Info("Alerts enabled set to %v via bot command", enabled)
	if enabled {
		return "🔔 Alerts *enabled*"
	}
	return "🔕 Alerts *disabled*"
}

// blacklistReply handles /blacklist add|remove <ticker> [exchange].
func blacklistReply(fields []string, ctrl Controller) string {
	const syntax = "/blacklist add|remove <ticker> [exchange]"
	if len(fields) < 2 || len(fields) > 3 {
		return usage(syntax)
	}
	ticker := strings.ToUpper(fields[1])
	scope, name, ok := scopeArg(ctrl, fields[2:])
	if !ok {
		return unknownExchange(fields[2])
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "add":
		if name != "" {
			err = ctrl.AddExchangeBlacklist(name, ticker)
		} else {
			err = ctrl.AddGlobalBlacklist(ticker)
		}
		return changeReply(fmt.Sprintf("%s blacklisted %s", ticker, scope), err)
	case "remove":
		if name != "" {
			err = ctrl.RemoveExchangeBlacklist(name, ticker)
		} else {
			err = ctrl.RemoveGlobalBlacklist(ticker)
		}
		return changeReply(fmt.Sprintf("%s removed from blacklist %s", ticker, scope), err)
	}
	return usage(syntax)
}

// overrideReply handles /override set <ticker> <size> [exchange] and
// /override remove <ticker> [exchange].
func overrideReply(fields []string, ctrl Controller) string {
	const syntax = "/override set <ticker> <size> [exchange] or /override remove <ticker> [exchange]"
	if len(fields) < 2 {
		return usage(syntax)
	}
	ticker := strings.ToUpper(fields[1])

	switch strings.ToLower(fields[0]) {
	case "set":
		if len(fields) < 3 || len(fields) > 4 {
			return usage(syntax)
		}
		size, err := parseSize(fields[2])
		if err != nil {
			return invalid("size", fields[2])
		}
		scope, name, ok := scopeArg(ctrl, fields[3:])
		if !ok {
			return unknownExchange(fields[3])
		}
		if name != "" {
			err = ctrl.SetExchangeTickerOverride(name, ticker, size)
		} else {
			err = ctrl.SetGlobalTickerOverride(ticker, size)
		}
		return changeReply(fmt.Sprintf("%s min size set to %s %s", ticker, models.FormatSize(size), scope), err)
	case "remove":
		if len(fields) > 3 {
			return usage(syntax)
		}
		scope, name, ok := scopeArg(ctrl, fields[2:])
		if !ok {
			return unknownExchange(fields[2])
		}
		var err error
		if name != "" {
			err = ctrl.RemoveExchangeTickerOverride(name, ticker)
		} else {
			err = ctrl.RemoveGlobalTickerOverride(ticker)
		}
		return changeReply(fmt.Sprintf("%s override removed %s", ticker, scope), err)
	}
	return usage(syntax)
}

// scopeArg resolves an optional trailing exchange argument. An empty name
// means the global scope.
func scopeArg(ctrl Controller, rest []string) (scope, name string, ok bool) {
	if len(rest) == 0 {
		return "globally", "", true
	}
	name, ok = knownExchange(ctrl, rest[0])
	return "on " + name, name, ok
}

func knownExchange(ctrl Controller, name string) (string, bool) {
	name = strings.ToLower(name)
	for _, ex := range ctrl.Settings().Exchanges {
		if ex.Name == name {
			return name, true
		}
	}
	return "", false
}

// parseSize accepts plain numbers with optional separators and K/M/B
// suffixes: 500000, 1_000_000, 500k, 1.5M.
func parseSize(s string) (float64, error) {
	s = strings.NewReplacer(",", "", "_", "", "$", "").Replace(strings.TrimSpace(s))
	mult := 1.0
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'k', 'K':
			mult = 1e3
		case 'm', 'M':
			mult = 1e6
		case 'b', 'B':
			mult = 1e9
		}
		if mult != 1 {
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return v * mult, nil
}

// parseInterval accepts whole seconds or a Go duration.
func parseInterval(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// changeReply reports the outcome of a settings write. Rejected values and
// unsaved changes are told apart.
func changeReply(done string, err error) string {
	switch {
	case err == nil:
		logger.Info("Settings changed via bot command: %s", done)
		return "✅ " + escapeMarkdownV2(done)
	case errors.Is(err, settings.ErrNotPersisted):
		logger.Error("Settings change not saved: %v", err)
		return "⚠️ Changed for this run but not saved: " + escapeMarkdownV2(err.Error())
	default:
		return "❌ " + escapeMarkdownV2(err.Error())
	}
}

func usage(syntax string) string {
	return "Usage: " + escapeMarkdownV2(syntax)
}

func invalid(what, value string) string {
	return escapeMarkdownV2(fmt.Sprintf("❌ Invalid %s: %q", what, value))
}

func unknownExchange(name string) string {
	return escapeMarkdownV2(fmt.Sprintf("❌ Unknown exchange: %q", name))
}

func formatStatus(statuses []scanner.ExchangeStatus) string {
	if len(statuses) == 0 {
		return "No exchanges running"
	}
	var b strings.Builder
	b.WriteString("📡 *Exchanges*\n")
	for _, s := range statuses {
		icon := "✅"
		switch {
		case !s.MarketsLoaded:
			icon = "❌"
		case s.ConsecutiveErrors > 0:
			icon = "⚠️"
		}
		line := fmt.Sprintf("%s %s: %d symbols", icon, s.Label, s.Symbols)
		if s.Streaming {
			line += ", streaming"
		}
		if s.ConsecutiveErrors > 0 {
			line += fmt.Sprintf(", %d failing passes", s.ConsecutiveErrors)
		}
		b.WriteString(escapeMarkdownV2(line))
		if !s.MarketsLoaded && s.LastError != "" {
			b.WriteString("\n   `" + escapeMarkdownV2(s.LastError) + "`")
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatSettings(s settings.Snapshot) string {
	alerts := "❌ off"
	if s.AlertsEnabled {
		alerts = "✅ on"
	}
	blacklist := "empty"
	if len(s.GlobalBlacklist) > 0 {
		blacklist = strings.Join(s.GlobalBlacklist, ", ")
	}

	lines := []string{
		"⚙️ *Settings*",
		"Alerts: " + alerts,
		escapeMarkdownV2(fmt.Sprintf("Distance: %.2f%%", s.DistancePct)),
		escapeMarkdownV2(fmt.Sprintf("Scan interval: %s, depth %d", s.ScanInterval, s.OrderBookDepth)),
		escapeMarkdownV2("Blacklist: " + blacklist),
	}
	if len(s.GlobalTickerOverrides) > 0 {
		lines = append(lines, escapeMarkdownV2("Overrides: "+formatOverrides(s.GlobalTickerOverrides)))
	}
	for _, ex := range s.Exchanges {
		line := fmt.Sprintf("%s: min %s", ex.Name, models.FormatSize(ex.MinSize))
		if ex.MinLifetime > 0 {
			line += fmt.Sprintf(", lifetime ≥ %ds", ex.MinLifetime)
		}
		if len(ex.TickerOverrides) > 0 {
			line += ", overrides " + formatOverrides(ex.TickerOverrides)
		}
		if len(ex.Blacklist) > 0 {
			line += ", blacklist " + strings.Join(ex.Blacklist, ", ")
		}
		lines = append(lines, escapeMarkdownV2("• "+line))
	}
	return strings.Join(lines, "\n")
}

func formatOverrides(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+models.FormatSize(m[k]))
	}
	return strings.Join(parts, ", ")
}
