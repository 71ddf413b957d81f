package store

import (
	"time"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// dayKey buckets a timestamp into the UTC day used for daily quota counters.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
