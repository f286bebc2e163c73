package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/matst80/tnnlr/internal/obs"
)

// Endpoint is the rendezvous record returned by the control plane. It is
// immutable for the lifetime of a pool.
type Endpoint struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port"`
	SecretKey    string `json:"secret_key"`
	MaxConnCount int    `json:"max_conn_count"`
}

// Client acquires rendezvous endpoints from the control-plane API.
type Client struct {
	APIURL     string
	APIKey     string
	Retries    int           // total attempts, minimum 1
	RetryDelay time.Duration // fixed delay between attempts
	HTTPClient *http.Client
}

// Acquire posts to the control plane until it yields a usable endpoint or
// the retry budget is spent. Non-2xx responses and malformed bodies count
// as attempts.
func (c *Client) Acquire(ctx context.Context) (*Endpoint, error) {
	attempts := c.Retries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		ep, err := c.acquireOnce(ctx)
		if err == nil {
			return ep, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		obs.Warn("endpoint.acquire.retry", obs.Fields{"attempt": i, "of": attempts, "err": err.Error()})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
	return nil, fmt.Errorf("endpoint acquisition failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) acquireOnce(ctx context.Context) (*Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	httpc := c.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("control plane returned %s", resp.Status)
	}
	var ep Endpoint
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, fmt.Errorf("decode endpoint: %w", err)
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return nil, fmt.Errorf("endpoint port %d out of range", ep.Port)
	}
	if ep.Host == "" {
		u, uerr := url.Parse(c.APIURL)
		if uerr != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("endpoint host missing and not derivable from %q", c.APIURL)
		}
		ep.Host = u.Hostname()
	}
	return &ep, nil
}
