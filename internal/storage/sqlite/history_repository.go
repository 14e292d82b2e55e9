package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/imgbb_downloader/internal/storage"
)

// HistoryRepository implements storage.HistoryRepository on an SQLite table.
type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistoryRepository(dbConn *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: dbConn, now: time.Now}
}

func (r *HistoryRepository) Append(ctx context.Context, assetURL string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (asset_url, recorded_at) VALUES (?, ?)`,
		assetURL, r.now().Format(storage.TimeLayout),
	)

	return err
}

func (r *HistoryRepository) List(ctx context.Context) ([]storage.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT asset_url, recorded_at FROM history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []storage.HistoryRecord{}

	for rows.Next() {
		var (
			record     storage.HistoryRecord
			recordedAt string
		)

		if err := rows.Scan(&record.AssetURL, &recordedAt); err != nil {
			return nil, err
		}

		if ts, err := time.ParseInLocation(storage.TimeLayout, recordedAt, time.Local); err == nil {
			record.RecordedAt = ts
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) Close() error {
	return r.db.Close()
}
