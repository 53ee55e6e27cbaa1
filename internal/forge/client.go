package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized means the site refused the request without a valid token.
	ErrUnauthorized = errors.New("access denied")
	// ErrNotFound usually means a private repository and no token.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited means the API quota is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// APIError is a non-2xx answer from a site API.
type APIError struct {
	Status  int
	URL     string
	Message string
	limited bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d", e.URL, e.Status)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.limited || e.Status == http.StatusTooManyRequests
	case ErrUnauthorized:
		return !e.limited && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// authStyle decides how a token travels with a request.
type authStyle int

const (
	authHeaderToken authStyle = iota // Authorization: token <t>
	authPrivateToken                 // PRIVATE-TOKEN: <t>
	authQuery                        // ?access_token=<t>
)

// client is a small JSON REST client shared by the adapters.
type client struct {
	http    *http.Client
	base    string
	auth    authStyle
	limiter *rate.Limiter
}

func newClient(hc *http.Client, base string, auth authStyle, limit rate.Limit) *client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if limit <= 0 {
		limit = rate.Inf
	}
	return &client{
		http:    hc,
		base:    strings.TrimRight(base, "/"),
		auth:    auth,
		limiter: rate.NewLimiter(limit, 4),
	}
}

func (c *client) do(ctx context.Context, path string, query url.Values, token, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	if token != "" && c.auth == authQuery {
		query.Set("access_token", token)
	}
	u := c.base + path
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if token != "" {
		switch c.auth {
		case authHeaderToken:
			req.Header.Set("Authorization", "token "+token)
		case authPrivateToken:
			req.Header.Set("PRIVATE-TOKEN", token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", c.base+path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, apiError(resp, c.base+path)
	}
	return resp, nil
}

func apiError(resp *http.Response, u string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	return &APIError{
		Status:  resp.StatusCode,
		URL:     u,
		Message: msg,
		limited: resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0",
	}
}

func (c *client) getJSON(ctx context.Context, path string, query url.Values, token string, out any) error {
	resp, err := c.do(ctx, path, query, token, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// getJSONPage is getJSON that also returns the next page number advertised
// through the X-Next-Page header, 0 when there is none.
func (c *client) getJSONPage(ctx context.Context, path string, query url.Values, token string, out any) (int, error) {
	resp, err := c.do(ctx, path, query, token, "application/json")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	next := 0
	fmt.Sscanf(resp.Header.Get("X-Next-Page"), "%d", &next)
	return next, nil
}

func (c *client) getRaw(ctx context.Context, path string, query url.Values, token string) ([]byte, error) {
	resp, err := c.do(ctx, path, query, token, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContent))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// maxContent caps file bodies pulled into the content pane.
const maxContent = 2 << 20

// escapePath escapes every segment of a slash-separated path.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
