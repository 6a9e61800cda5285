// Package scanapi talks to the remote decode, reputation, and report
// services over JSON/HTTP and narrows their responses into typed results.
package scanapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/example/secqr/internal/logging"
)

const (
	// DefaultDecodeTimeout is generous because payloads can be several MiB.
	DefaultDecodeTimeout = 30 * time.Second
	// DefaultReputationTimeout bounds the reputation lookup.
	DefaultReputationTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// StatusError is a non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Path, e.StatusCode)
}

// ServerSide reports whether the failure was a 5xx.
func (e *StatusError) ServerSide() bool {
	return e.StatusCode >= 500
}

// Client is the shared transport for the three scan services.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	logger            *zap.Logger
	decodeTimeout     time.Duration
	reputationTimeout time.Duration
	reportTimeout     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeouts sets per-call timeouts. Zero disables the timeout for that call.
func WithTimeouts(decode, reputation, report time.Duration) Option {
	return func(c *Client) {
		c.decodeTimeout = decode
		c.reputationTimeout = reputation
		c.reportTimeout = report
	}
}

// NewClient creates a Client rooted at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        &http.Client{},
		logger:            logger.Named("scanapi"),
		decodeTimeout:     DefaultDecodeTimeout,
		reputationTimeout: DefaultReputationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// postJSON sends in as JSON to path and decodes a 2xx body into out.
func (c *Client) postJSON(ctx context.Context, path string, timeout time.Duration, in, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		if isTimeout(err) {
			return err
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) opError(operation string, err error) error {
	return logging.NewOperationError(operation, "", err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
