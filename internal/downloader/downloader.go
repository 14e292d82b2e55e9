package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/filename"
	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/registry"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

const (
	dirPerm = 0755
)

var errAlreadyDownloading = errors.New("already downloading")

// Request describes one asset to fetch.
type Request struct {
	Key      string // job key, the page URL
	AssetURL string
	Path     string // preferred destination; a free numbered sibling is used when taken
	Sink     events.Sink
}

type Downloader struct {
	fs        afero.Fs
	proxies   *ProxyPool
	registry  *registry.Registry[*Transfer]
	telemetry *telemetry.Telemetry
	chunkSize int
}

func NewDownloader(
	fs afero.Fs,
	proxies *ProxyPool,
	reg *registry.Registry[*Transfer],
	tel *telemetry.Telemetry,
) *Downloader {
	return &Downloader{
		fs:        fs,
		proxies:   proxies,
		registry:  reg,
		telemetry: tel,
		chunkSize: DefaultChunkSize,
	}
}

// Download streams req.AssetURL to disk and returns the path it was saved to.
// The transfer is reachable through the registry under req.Key until it ends.
// A canceled transfer returns job.ErrCanceled; other failures return
// *job.TransferError. Partial files are left in place.
func (d *Downloader) Download(ctx context.Context, req Request) (string, error) {
	if req.Sink == nil {
		req.Sink = events.Discard
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := newTransfer(req.Key, req.AssetURL, req.Sink, cancel)

	if !d.registry.Store(req.Key, t) {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "register", Err: errAlreadyDownloading}
	}
	defer d.registry.CompareAndDelete(req.Key, t)

	path, err := d.download(ctx, t, req)

	d.registry.CompareAndDelete(req.Key, t)

	return path, t.finish(err)
}

func (d *Downloader) download(ctx context.Context, t *Transfer, req Request) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.AssetURL, nil)
	if err != nil {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "request", Err: err}
	}

	resp, err := d.proxies.Client(ctx).Do(httpReq)
	if err != nil {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "request", StatusCode: resp.StatusCode}
	}

	if err := d.fs.MkdirAll(filepath.Dir(req.Path), dirPerm); err != nil {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "create", Err: err}
	}

	out, path, err := filename.Create(d.fs, req.Path)
	if err != nil {
		return "", &job.TransferError{AssetURL: req.AssetURL, Op: "create", Err: err}
	}
	defer out.Close()

	if err := t.start(path, resp.ContentLength); err != nil {
		return path, err
	}

	size := "unknown"
	if resp.ContentLength > 0 {
		size = humanize.Bytes(uint64(resp.ContentLength))
	}

	logger.InfoContext(ctx, "downloading file", "file_path", path, "file_size", size)

	if err := d.copy(ctx, t, out, NewStream(resp.Body, d.chunkSize), req.AssetURL); err != nil {
		return path, err
	}

	if err := out.Close(); err != nil {
		return path, &job.TransferError{AssetURL: req.AssetURL, Op: "write", Err: err}
	}

	logger.InfoContext(ctx, "downloaded and saved file", "target", path)

	return path, nil
}

// copy pulls chunks until the stream is drained. A chunk read while the
// transfer gets paused is held until it resumes.
func (d *Downloader) copy(ctx context.Context, t *Transfer, out io.Writer, stream Stream, assetURL string) error {
	logger := logctx.LoggerFromContext(ctx)

	for {
		if err := t.waitWhilePaused(ctx); err != nil {
			return d.readError(t, assetURL, err)
		}

		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return d.readError(t, assetURL, err)
		}

		if err := t.waitWhilePaused(ctx); err != nil {
			return d.readError(t, assetURL, err)
		}

		n, logDue, err := t.write(out, chunk)
		d.telemetry.RecordBytes(int64(n))

		if err != nil {
			if errors.Is(err, job.ErrCanceled) {
				return err
			}

			return &job.TransferError{AssetURL: assetURL, Op: "write", Err: err}
		}

		if logDue {
			snap := t.Snapshot()
			logger.DebugContext(ctx, "download progress",
				"downloaded", humanize.Bytes(uint64(snap.Written)),
				"percent", snap.Percent(),
			)
		}
	}
}

func (d *Downloader) readError(t *Transfer, assetURL string, err error) error {
	if t.canceled() || errors.Is(err, job.ErrCanceled) {
		return job.ErrCanceled
	}

	return &job.TransferError{AssetURL: assetURL, Op: "read", Err: fmt.Errorf("stream: %w", err)}
}
