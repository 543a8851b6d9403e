package main

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

	"github.com/leozw/storefront-controlplane/internal/controlplane"
	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/lifecycle"
)

// apiClient talks to a running control plane over its HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(server, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(server, "/") + "/api/v1",
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (c *apiClient) Health(ctx context.Context, refresh bool) (*controlplane.HealthView, error) {
	var view controlplane.HealthView
	method, path := http.MethodGet, "/health"
	if refresh {
		method, path = http.MethodPost, "/health/refresh"
	}
	if err := c.do(ctx, method, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) Trends(ctx context.Context) ([]core.MetricTrend, error) {
	var out struct {
		Trends []core.MetricTrend `json:"trends"`
	}
	if err := c.do(ctx, http.MethodGet, "/health/trends", nil, &out); err != nil {
		return nil, err
	}
	return out.Trends, nil
}

func (c *apiClient) ListTenants(ctx context.Context, status string) (*controlplane.TenantList, error) {
	path := "/tenants"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var list controlplane.TenantList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *apiClient) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	var t core.Tenant
	if err := c.do(ctx, http.MethodGet, "/tenants/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) Actions(ctx context.Context, id string) ([]lifecycle.ActionOption, error) {
	var out struct {
		Actions []lifecycle.ActionOption `json:"actions"`
	}
	if err := c.do(ctx, http.MethodGet, "/tenants/"+url.PathEscape(id)+"/actions", nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

func (c *apiClient) CreateTenant(ctx context.Context, spec core.TenantSpec) (*core.Tenant, error) {
	var t core.Tenant
	if err := c.do(ctx, http.MethodPost, "/tenants", spec, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) Transition(ctx context.Context, id string, action core.TenantAction) (*core.Tenant, error) {
	var t core.Tenant
	if err := c.do(ctx, http.MethodPost, "/tenants/"+url.PathEscape(id)+"/"+string(action), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control plane unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
