package storage

import (
	"context"

	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

// InstrumentedHistory wraps a HistoryRepository with telemetry.
type InstrumentedHistory struct {
	repo      HistoryRepository
	backend   string
	telemetry *telemetry.Telemetry
}

// NewInstrumentedHistory creates a new instrumented history repository.
func NewInstrumentedHistory(repo HistoryRepository, backend string, tel *telemetry.Telemetry) *InstrumentedHistory {
	return &InstrumentedHistory{
		repo:      repo,
		backend:   backend,
		telemetry: tel,
	}
}

// Append records an asset URL with telemetry.
func (r *InstrumentedHistory) Append(ctx context.Context, assetURL string) error {
	return r.telemetry.InstrumentHistoryOperation(ctx, r.backend, "append", func(ctx context.Context) error {
		return r.repo.Append(ctx, assetURL)
	})
}

// List retrieves all records with telemetry.
func (r *InstrumentedHistory) List(ctx context.Context) ([]HistoryRecord, error) {
	var result []HistoryRecord

	err := r.telemetry.InstrumentHistoryOperation(ctx, r.backend, "list", func(ctx context.Context) error {
		var err error

		result, err = r.repo.List(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedHistory) Close() error {
	return r.repo.Close()
}
