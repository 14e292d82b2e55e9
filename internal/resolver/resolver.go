// Package resolver turns an image-hosting page URL into the direct URL of
// the hosted asset.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/italolelis/imgbb_downloader/internal/job"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

const (
	DefaultSelector  = "a.btn.btn-download.default"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultTimeout   = 15 * time.Second
)

// Config tunes a Resolver. Zero values fall back to the defaults above.
type Config struct {
	Selector  string
	UserAgent string
	Timeout   time.Duration
	// RateLimit caps page fetches per second. Zero disables throttling.
	RateLimit float64
	Burst     int
}

// Resolver fetches a page and extracts the download link.
type Resolver struct {
	client    *http.Client
	limiter   *rate.Limiter
	selector  string
	userAgent string
	timeout   time.Duration
	telemetry *telemetry.Telemetry
}

// New creates a Resolver. A nil client uses a client whose transport is
// instrumented by tel.
func New(client *http.Client, cfg Config, tel *telemetry.Telemetry) *Resolver {
	if client == nil {
		client = &http.Client{Transport: tel.Transport(nil)}
	}

	r := &Resolver{
		client:    client,
		selector:  cfg.Selector,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		telemetry: tel,
	}

	if r.selector == "" {
		r.selector = DefaultSelector
	}

	if r.userAgent == "" {
		r.userAgent = DefaultUserAgent
	}

	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}

		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return r
}

// Resolve returns the absolute asset URL linked from pageURL. Errors are
// always *job.ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	var asset string

	err := r.telemetry.InstrumentResolve(ctx, func(ctx context.Context) error {
		var err error

		asset, err = r.resolve(ctx, pageURL)

		return err
	})

	return asset, err
}

func (r *Resolver) resolve(ctx context.Context, pageURL string) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageFetch, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageFetch, Err: err}
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageFetch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageStatus, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageParse, Err: err}
	}

	href, ok := doc.Find(r.selector).First().Attr("href")
	href = strings.TrimSpace(href)

	if !ok || href == "" {
		return "", &job.ResolutionError{
			PageURL: pageURL,
			Stage:   job.StageSelect,
			Err:     fmt.Errorf("no element matches %q", r.selector),
		}
	}

	asset, err := absolute(resp.Request.URL, href)
	if err != nil {
		return "", &job.ResolutionError{PageURL: pageURL, Stage: job.StageSelect, Err: err}
	}

	logger.DebugContext(ctx, "resolved download link", "asset_url", asset)

	return asset, nil
}

func absolute(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}

	return base.ResolveReference(ref).String(), nil
}
