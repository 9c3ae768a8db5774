package logging

import "time"

// consoleTimestampLayout keeps milliseconds so events from one dispatch
// round can be ordered by eye.
const consoleTimestampLayout = "2006-01-02 15:04:05.000"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimestampLayout)
}
