// Package storage defines the append-only history of resolved asset URLs and
// the line format shared by its backends.
package storage

import (
	"context"
	"strings"
	"time"
)

// TimeLayout is the day-first, 24h timestamp written next to each entry.
const TimeLayout = "02/01/2006_15:04:05"

const separator = " - "

// HistoryRecord is one resolved asset URL.
type HistoryRecord struct {
	AssetURL   string
	RecordedAt time.Time // zero when the stored timestamp could not be parsed
}

type HistoryReadRepository interface {
	// List returns every record in insertion order.
	List(ctx context.Context) ([]HistoryRecord, error)
}

type HistoryWriteRepository interface {
	// Append records assetURL with the current time.
	Append(ctx context.Context, assetURL string) error
}

// HistoryRepository is implemented by every backend.
type HistoryRepository interface {
	HistoryReadRepository
	HistoryWriteRepository
	Close() error
}

// FormatLine renders r as "<assetURL> - <timestamp>" without a line break.
func FormatLine(r HistoryRecord) string {
	return r.AssetURL + separator + r.RecordedAt.Format(TimeLayout)
}

// ParseLine splits a line on its last " - ". A line without a separator keeps
// its text as the URL; an unparsable timestamp leaves RecordedAt zero. Blank
// lines report false.
func ParseLine(line string) (HistoryRecord, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return HistoryRecord{}, false
	}

	i := strings.LastIndex(line, separator)
	if i < 0 {
		return HistoryRecord{AssetURL: line}, true
	}

	rec := HistoryRecord{AssetURL: line[:i]}

	ts, err := time.ParseInLocation(TimeLayout, line[i+len(separator):], time.Local)
	if err != nil {
		return rec, true
	}

	rec.RecordedAt = ts

	return rec, true
}

// URLs returns the asset URLs of records, in order.
func URLs(records []HistoryRecord) []string {
	out := make([]string, 0, len(records))

	for _, r := range records {
		out = append(out, r.AssetURL)
	}

	return out
}
