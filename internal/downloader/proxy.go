package downloader

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

// ProxyPool hands out an HTTP client per download, each routed through a
// proxy picked uniformly at random. An empty pool downloads directly.
type ProxyPool struct {
	clients []*http.Client
	direct  *http.Client
	proxies []string
	warn    sync.Once
}

// NewProxyPool parses proxy URLs ("http://host:port", "socks5://host:port").
// Blank entries are ignored.
func NewProxyPool(proxies []string, tel *telemetry.Telemetry) (*ProxyPool, error) {
	p := &ProxyPool{
		direct: &http.Client{Transport: tel.Transport(http.DefaultTransport)},
	}

	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", raw)
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(u)

		p.clients = append(p.clients, &http.Client{Transport: tel.Transport(transport)})
		p.proxies = append(p.proxies, u.Redacted())
	}

	return p, nil
}

// Len returns the number of configured proxies.
func (p *ProxyPool) Len() int {
	return len(p.clients)
}

// Client returns the client for the next download.
func (p *ProxyPool) Client(ctx context.Context) *http.Client {
	if len(p.clients) == 0 {
		p.warn.Do(func() {
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "no proxies configured, downloading directly")
		})

		return p.direct
	}

	i := rand.IntN(len(p.clients))

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "using proxy", "proxy", p.proxies[i])

	return p.clients[i]
}
