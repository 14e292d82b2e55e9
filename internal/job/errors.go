package job

import (
	"errors"
	"fmt"
)

// ErrCanceled is returned by a pipeline whose transfer was canceled by a client command.
var ErrCanceled = errors.New("download canceled")

// ValidationError represents a submitted URL that is malformed or not allowed.
// Such URLs are skipped without consuming a concurrency slot.
type ValidationError struct {
	URL    string // The URL as submitted (trimmed)
	Reason string // Human-readable explanation of the rejection
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Reason)
}

// Resolution stages used by ResolutionError.
const (
	StageFetch  = "fetch"
	StageStatus = "status"
	StageParse  = "parse"
	StageSelect = "select"
)

// ResolutionError represents a failure to turn a page URL into a direct asset URL.
type ResolutionError struct {
	PageURL    string // The page that was being resolved
	Stage      string // One of the Stage* constants
	StatusCode int    // HTTP status code for StageStatus, 0 otherwise
	Err        error  // Underlying error, if any
}

func (e *ResolutionError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("resolve %s failed at %s (HTTP %d)", e.PageURL, e.Stage, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("resolve %s failed at %s: %v", e.PageURL, e.Stage, e.Err)
	default:
		return fmt.Sprintf("resolve %s failed at %s", e.PageURL, e.Stage)
	}
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TransferError represents network or filesystem failures while streaming an asset.
// The partially written file is left on disk.
type TransferError struct {
	AssetURL   string // The asset being transferred
	Op         string // The failing operation (e.g. "request", "create", "read", "write")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransferError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transfer error during %s of %s (HTTP %d)", e.Op, e.AssetURL, e.StatusCode)
	}

	if e.Err != nil {
		return fmt.Sprintf("transfer error during %s of %s: %v", e.Op, e.AssetURL, e.Err)
	}

	return fmt.Sprintf("transfer error during %s of %s", e.Op, e.AssetURL)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// LogError represents a failed history append. It is reported but never fails the job.
type LogError struct {
	AssetURL string
	Err      error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("failed to record %s in history: %v", e.AssetURL, e.Err)
}

func (e *LogError) Unwrap() error {
	return e.Err
}
