package report

import "time"

// FormatTimestamp returns t as an RFC3339 UTC string with sub-second
// precision; the zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
