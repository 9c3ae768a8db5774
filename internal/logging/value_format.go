package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"
)

// maxConsoleValue caps field values in console output. Image payloads and
// long error chains stay readable in the JSON sink.
const maxConsoleValue = 256

// attrString renders a header value (component, session, item) unquoted.
func attrString(v slog.Value) string {
	return renderValue(v, false)
}

// formatValue renders a field value, quoting it when it would otherwise be
// ambiguous on a "key: value" line.
func formatValue(v slog.Value) string {
	return renderValue(v, true)
}

func renderValue(v slog.Value, quote bool) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return roundDuration(v.Duration()).String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	s = truncate(s)
	if quote && needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

// roundDuration trims sub-millisecond noise from store and validation timings.
func roundDuration(d time.Duration) time.Duration {
	if d >= time.Second || d <= -time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Microsecond)
}

func truncate(s string) string {
	if len(s) <= maxConsoleValue {
		return s
	}
	cut := maxConsoleValue
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…(+" + strconv.Itoa(len(s)-cut) + " bytes)"
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
