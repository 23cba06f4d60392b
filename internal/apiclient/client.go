// Package apiclient talks to the upstream REST API on the operator's behalf.
//
// Every request carries the stored access token when there is one. The client
// never refreshes or clears tokens: a 401 is logged and returned, and the next
// navigation lets the session guard decide what to do.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autodl-console/internal/credstore"
	"autodl-console/pkg/logger"
)

const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("upstream: %d %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base  *url.URL
	store credstore.Store
	http  *http.Client
	log   *slog.Logger
}

// New builds a client for baseURL, e.g. http://127.0.0.1:8000/api/.
// Request paths are resolved relative to it.
func New(baseURL string, store credstore.Store, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base url must be http(s), got %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:  u,
		store: store,
		http:  hc,
		log:   logger.OrDefault(opts.Logger).With("component", "apiclient"),
	}, nil
}

// Do sends body (JSON-encoded when non-nil) and decodes the response into out
// when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return fmt.Errorf("apiclient: path: %w", err)
	}
	target := c.base.ResolveReference(ref)

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), rd)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := credstore.AccessToken(ctx, c.store); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		if resp.StatusCode == http.StatusUnauthorized {
			c.log.Warn("upstream unauthorized", "method", method, "path", target.Path)
		} else {
			c.log.Info("upstream error", "method", method, "path", target.Path, "status", resp.StatusCode)
		}
		return se
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("apiclient: decode %s: %w", target.Path, err)
	}
	return nil
}

// errorMessage pulls "error" or "detail" out of a JSON error body.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Detail
}
