// Command imgbb_fetch downloads a list of page URLs without the web UI.
//
//	imgbb_fetch [-dir Downloads] [-parallel 5] [-file urls.txt] [url ...]
//
// URLs come from the arguments, or from -file, or from stdin, one per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/italolelis/imgbb_downloader/internal/config"
	"github.com/italolelis/imgbb_downloader/internal/downloader"
	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/pipeline"
	"github.com/italolelis/imgbb_downloader/internal/registry"
	"github.com/italolelis/imgbb_downloader/internal/resolver"
	"github.com/italolelis/imgbb_downloader/internal/scheduler"
	"github.com/italolelis/imgbb_downloader/internal/storage/textlog"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.DownloadDir, "dir", cfg.DownloadDir, "Directory to save downloads")
	flag.IntVar(&cfg.MaxParallel, "parallel", cfg.MaxParallel, "Number of concurrent downloads")
	flag.StringVar(&cfg.HistoryFile, "history", cfg.HistoryFile, "History file to append resolved links to")
	listFile := flag.String("file", "", "File with one page URL per line (default stdin when no args)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(logctx.NewContextHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	urls, err := readURLs(flag.Args(), *listFile, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(logctx.WithLogger(ctx, logger), cfg, urls); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, urls []string) error {
	fs := afero.NewOsFs()

	if err := fs.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	history, err := textlog.Open(fs, cfg.HistoryFile)
	if err != nil {
		return err
	}
	defer history.Close()

	proxies, err := downloader.NewProxyPool(cfg.Proxies, nil)
	if err != nil {
		return err
	}

	res := resolver.New(nil, resolver.Config{
		Selector:  cfg.LinkSelector,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.ResolveTimeout,
		RateLimit: cfg.ResolveRateLimit,
		Burst:     cfg.MaxParallel,
	}, nil)

	dl := downloader.NewDownloader(fs, proxies, registry.New[*downloader.Transfer](), nil)
	sched := scheduler.New(pipeline.New(res, dl, history, cfg.DownloadDir), cfg.MaxParallel, cfg.AllowedPrefix, nil)

	valid := 0

	for _, u := range urls {
		if _, err := sched.Validate(u); err == nil {
			valid++
		}
	}

	console := newConsole(fs, valid)
	start := time.Now()

	if err := sched.Submit(ctx, urls, console); err != nil {
		return err
	}

	console.summary(time.Since(start))

	return nil
}

// console prints job statuses above a progress bar of finished jobs.
type console struct {
	mu     sync.Mutex
	fs     afero.Fs
	bar    *progressbar.ProgressBar
	saved  int
	failed int
	bytes  uint64
}

func newConsole(fs afero.Fs, total int) *console {
	return &console{
		fs: fs,
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetItsString("image"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

func (c *console) Publish(e events.Event) {
	s, ok := e.(events.Status)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.bar.Clear()
	fmt.Fprintf(os.Stderr, "[%s] %s\n", time.Now().Format("15:04:05"), s.Message)

	switch {
	case s.Kind == events.KindSuccess:
		c.saved++

		if info, err := c.fs.Stat(strings.TrimPrefix(s.Message, "Image saved: ")); err == nil {
			c.bytes += uint64(info.Size())
		}

		_ = c.bar.Add(1)
	case s.Kind == events.KindError && s.URL != "":
		c.failed++
		_ = c.bar.Add(1)
	default:
		_ = c.bar.RenderBlank()
	}
}

func (c *console) summary(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.bar.Finish()

	fmt.Fprintf(os.Stderr, "\n%d saved (%s), %d failed in %s\n",
		c.saved, humanize.Bytes(c.bytes), c.failed, elapsed.Round(time.Millisecond))
}

// readURLs prefers args, then the list file, then stdin. Blank lines and
// lines starting with # are ignored.
func readURLs(args []string, listFile string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	r := stdin

	if listFile != "" {
		f, err := os.Open(filepath.Clean(listFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open url list: %w", err)
		}
		defer f.Close()

		r = f
	}

	var urls []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url list: %w", err)
	}

	return urls, nil
}
