// Package collyfetcher implements the origin HTTP client using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// DefaultUserAgent is sent when no user agent is configured. The origin rejects
// requests that do not look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/100.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client issues GET and form POST requests through a Colly collector.
type Client struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type response struct {
	status int
	body   []byte
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Client{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, rawURL, func(collector *colly.Collector) error {
		return collector.Visit(rawURL)
	})
}

// PostForm submits a form-encoded body to url and returns the response body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form map[string]string) ([]byte, error) {
	return c.do(ctx, rawURL, func(collector *colly.Collector) error {
		return collector.Post(rawURL, form)
	})
}

func (c *Client) do(ctx context.Context, rawURL string, send func(*colly.Collector) error) ([]byte, error) {
	var (
		result   response
		fetchErr error
	)
	start := time.Now()
	collector := c.buildCollector(&result, &fetchErr)
	if err := c.runCollector(ctx, collector, send, &fetchErr); err != nil {
		metrics.ObserveOriginRequest(endpointName(rawURL), "error", 0, time.Since(start))
		return nil, err
	}
	metrics.ObserveOriginRequest(endpointName(rawURL), "ok", len(result.body), time.Since(start))
	return result.body, nil
}

func (c *Client) buildCollector(result *response, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.DetectCharset = true
	collector.SetRequestTimeout(c.cfg.Timeout)

	baseTransport := c.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	c.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (c *Client) configureCollectorHooks(hooks collectorHooks, result *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (c *Client) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	send func(*colly.Collector) error,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- send(collector)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly request canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		return nil
	}
}

func endpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return path.Base(u.Path)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
