// Package textlog keeps the history as a flat text file, one line per entry.
package textlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/italolelis/imgbb_downloader/internal/storage"
)

const (
	filePerm = 0644
	dirPerm  = 0755
)

// HistoryRepository appends to and reads from a single file.
type HistoryRepository struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu  sync.Mutex
	out afero.File
}

// Open opens (creating if needed) the history file for appending.
func Open(fs afero.Fs, path string) (*HistoryRepository, error) {
	if err := fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	out, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	return &HistoryRepository{fs: fs, path: path, now: time.Now, out: out}, nil
}

// Append writes one line with a single write call.
func (r *HistoryRepository) Append(_ context.Context, assetURL string) error {
	line := storage.FormatLine(storage.HistoryRecord{AssetURL: assetURL, RecordedAt: r.now()}) + "\n"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil {
		return errors.New("history file is closed")
	}

	if _, err := r.out.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to history: %w", err)
	}

	return nil
}

// List reads the file from the start. A missing file is an empty history.
func (r *HistoryRepository) List(ctx context.Context) ([]storage.HistoryRecord, error) {
	f, err := r.fs.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []storage.HistoryRecord{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	records := []storage.HistoryRecord{}
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if rec, ok := storage.ParseLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	return records, nil
}

func (r *HistoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil {
		return nil
	}

	err := r.out.Close()
	r.out = nil

	return err
}
