package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/questd/internal/errors"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
}

// Client performs single-shot JSON requests. Retrying is the caller's
// concern; every failure comes back as a *clierr.Error with the HTTP status
// (0 when nothing was received) and the body's "error" text.
type Client struct {
	httpClient *http.Client
	userAgent  string
	bearer     string
}

func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgents[rand.Intn(len(userAgents))],
	}
}

// WithProxy routes all requests through the given proxy URL.
func (c *Client) WithProxy(raw string) (*Client, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c, nil
	}
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse proxy url", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	clone := *c
	clone.httpClient = &http.Client{Timeout: c.httpClient.Timeout, Transport: transport}
	return &clone, nil
}

// WithBearer returns a copy that authenticates with the given session token.
func (c *Client) WithBearer(token string) *Client {
	clone := *c
	clone.bearer = strings.TrimSpace(token)
	return &clone
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.bearer != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, mapNetError(ctx, err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "read remote response", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, statusError(resp.StatusCode, buf)
	}

	if out == nil {
		return resp.Header, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return resp.Header, nil
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "decode remote JSON", err)
	}
	return resp.Header, nil
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body any, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "encode request body", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func statusError(status int, buf []byte) error {
	var body errorBody
	_ = json.Unmarshal(buf, &body)
	remote := body.Error
	if remote == "" {
		remote = body.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return clierr.HTTP(clierr.CodeAuth, status, remote)
	case status == http.StatusTooManyRequests:
		return clierr.HTTP(clierr.CodeRateLimited, status, remote)
	case status >= http.StatusInternalServerError:
		return clierr.HTTP(clierr.CodeUnavailable, status, remote)
	case status >= 400:
		return clierr.HTTP(clierr.CodeRejected, status, remote)
	default:
		e := clierr.HTTP(clierr.CodeUnsupported, status, remote)
		e.Message = fmt.Sprintf("remote returned unexpected status %d", status)
		return e
	}
}

func mapNetError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "remote timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "remote request failed", err)
}
