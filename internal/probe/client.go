package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
)

const maxBodyBytes = 1 << 20

var errEmptyPayload = errors.New("response reports no metrics")

// Client fetches metric sources from the platform API. Every call is
// independent and bounded by its own timeout; nothing is retried here.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
}

func NewClient(cfg config.UpstreamConfig) *Client {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

func (c *Client) FetchBackend(ctx context.Context) (*core.ProbeResult, error) {
	return c.fetch(ctx, core.SourceBackend, "/health/backend", "")
}

func (c *Client) FetchDatabase(ctx context.Context) (*core.ProbeResult, error) {
	return c.fetch(ctx, core.SourceDatabase, "/health/database", "")
}

func (c *Client) FetchSystem(ctx context.Context) (*core.ProbeResult, error) {
	return c.fetch(ctx, core.SourceSystem, "/health/system", "")
}

func (c *Client) FetchTenant(ctx context.Context, tenantID string) (*core.ProbeResult, error) {
	return c.fetch(ctx, core.SourceTenant, "/tenants/"+url.PathEscape(tenantID)+"/metrics", tenantID)
}

func (c *Client) fetch(ctx context.Context, source core.ProbeSource, path, tenantID string) (*core.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Failure{Source: source, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Failure{Source: source, Kind: classify(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &Failure{
			Source:     source,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	var p *payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&p); err != nil {
		kind := KindDecode
		if ctx.Err() != nil {
			kind = classify(ctx, err)
		}
		return nil, &Failure{Source: source, Kind: kind, Err: err}
	}
	if p == nil {
		return nil, &Failure{Source: source, Kind: KindDecode, Err: errEmptyPayload}
	}

	result := p.toResult(source)
	if len(result.Metrics) == 0 {
		return nil, &Failure{Source: source, Kind: KindDecode, Err: errEmptyPayload}
	}
	result.TenantID = tenantID
	result.FetchedAt = c.now()
	return result, nil
}

func classify(ctx context.Context, err error) FailureKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
