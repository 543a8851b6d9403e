package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leozw/storefront-controlplane/internal/config"
	"github.com/leozw/storefront-controlplane/internal/core"
)

const maxBodyBytes = 4 << 20

// Client talks to the tenant-provisioning endpoint, the source of truth for
// tenant records. Non-2xx answers match core.ErrRemoteRejected; transport
// failures match core.ErrRemoteUnavailable.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

func NewClient(cfg config.UpstreamConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provisioning API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provisioning API returned %d", e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == core.ErrRemoteRejected
}

func (c *Client) ListTenants(ctx context.Context) ([]core.Tenant, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tenants", nil, &raw); err != nil {
		return nil, err
	}

	var records []tenantRecord
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Tenants []tenantRecord `json:"tenants"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decode tenant list: %v", core.ErrRemoteRejected, err)
		}
		records = envelope.Tenants
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: decode tenant list: %v", core.ErrRemoteRejected, err)
	}

	tenants := make([]core.Tenant, 0, len(records))
	for _, r := range records {
		t, err := r.toTenant()
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (c *Client) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	var r tenantRecord
	if err := c.do(ctx, http.MethodGet, "/tenants/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	t, err := r.toTenant()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTenant(ctx context.Context, spec core.TenantSpec) (*core.Tenant, error) {
	body := createRequest{
		Name:        spec.Name,
		Slug:        spec.Slug,
		OwnerEmail:  spec.OwnerEmail,
		Plan:        spec.Plan,
		Region:      spec.Region,
		Environment: spec.Environment,
	}

	var r tenantRecord
	if err := c.do(ctx, http.MethodPost, "/tenants", body, &r); err != nil {
		return nil, err
	}
	if r.Status == "" {
		r.Status = string(core.TenantProvisioning)
	}
	t, err := r.toTenant()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) TransitionTenant(ctx context.Context, id string, action core.TenantAction) (*core.Tenant, error) {
	var r tenantRecord
	path := "/tenants/" + url.PathEscape(id) + "/" + string(action)
	if err := c.do(ctx, http.MethodPost, path, nil, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, nil
	}
	t, err := r.toTenant()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrRemoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrRemoteUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", core.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrRemoteRejected, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
