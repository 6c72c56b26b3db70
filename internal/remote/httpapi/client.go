// Package httpapi is the JSON-over-HTTP client for the gym API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/errs"
)

const (
	maxErrorBody    = 64 << 10
	defaultTimeout  = 15 * time.Second
	contentTypeJSON = "application/json"
)

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// New validates baseURL and builds a client. A zero timeout uses 15s.
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("httpapi: invalid base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
// Transport failures wrap errs.ErrNetwork, non-2xx answers are *errs.APIError and
// undecodable bodies wrap errs.ErrDecode.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", op, errs.ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api call", zap.String("op", op), zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &errs.APIError{Status: resp.StatusCode, Body: errs.DecodeResponse(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrDecode, err)
	}
	return nil
}
