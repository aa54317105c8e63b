// Package social is a thin client for the Graph-shaped social platform API:
// page/account lookups and the photo/media publish endpoints. Facebook page
// posts are a single call; Instagram goes through the media-container flow
// (create container, poll status, publish).
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v18.0"

// PublishResult is the outcome of one successful platform publish.
type PublishResult struct {
	Platform string `json:"platform"`
	PostID   string `json:"postId"`
	PostURL  string `json:"postUrl"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Sleep is used for the container-status poll spacing; injectable so tests
	// can simulate time.
	Sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient() *Client {
	return &Client{
		BaseURL:    defaultGraphBaseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *Client) baseURL() string {
	if strings.TrimSpace(c.BaseURL) == "" {
		return defaultGraphBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 60 * time.Second}
	}
	return c.HTTPClient
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// limiter returns the per-platform rate limiter, conservative by default and
// overridable via SOCIAL_<PLATFORM>_RPS / SOCIAL_<PLATFORM>_BURST.
func (c *Client) limiter(platform string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiters == nil {
		c.limiters = make(map[string]*rate.Limiter)
	}
	if lim, ok := c.limiters[platform]; ok {
		return lim
	}
	rps, burst := 1.0, 2
	prefix := "SOCIAL_" + strings.ToUpper(platform) + "_"
	if v := os.Getenv(prefix + "RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv(prefix + "BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	c.limiters[platform] = lim
	return lim
}

// postForm issues a rate-limited form POST and decodes the JSON object reply.
func (c *Client) postForm(ctx context.Context, platform, endpoint string, form url.Values) (map[string]interface{}, error) {
	if err := c.limiter(platform).Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newAPIError(platform, res.StatusCode, b)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("%s: bad json response: %w", platform, err)
	}
	return obj, nil
}

// getJSON issues a rate-limited GET and decodes the JSON object reply.
func (c *Client) getJSON(ctx context.Context, platform, endpoint string) (map[string]interface{}, error) {
	if err := c.limiter(platform).Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newAPIError(platform, res.StatusCode, b)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("%s: bad json response: %w", platform, err)
	}
	return obj, nil
}

func jsonString(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}
