package tsa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HTTPClientConfig configures the HTTP timestamp client.
type HTTPClientConfig struct {
	// URL is the TSA endpoint.
	URL string

	// RequestTimeout bounds a single HTTP round trip. Default: 10s.
	RequestTimeout time.Duration

	// MaxElapsedTime bounds the whole retry sequence. The TSA is treated as
	// potentially-failing, not potentially-hanging. Default: 30s.
	MaxElapsedTime time.Duration
}

// HTTPClient requests timestamp tokens over HTTP with exponential backoff
// retry on transient failures.
type HTTPClient struct {
	cfg    HTTPClientConfig
	client *http.Client
}

// NewHTTPClient creates an HTTP timestamp client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type timestampRequest struct {
	Hash  string `json:"hash"`
	Nonce string `json:"nonce"`
}

type timestampResponse struct {
	Token    string    `json:"token"`
	SignedAt time.Time `json:"signed_at"`
	Serial   string    `json:"serial"`
}

type verifyRequest struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

type verifyResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Timestamp requests a token over the hash, retrying transient failures with
// exponential backoff until MaxElapsedTime.
func (c *HTTPClient) Timestamp(ctx context.Context, hashHex string) (*Token, error) {
	nonce := uuid.New().String()

	operation := func() (*timestampResponse, error) {
		return c.requestToken(ctx, hashHex, nonce)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.cfg.MaxElapsedTime),
	)
	if err != nil {
		return nil, fmt.Errorf("tsa request failed: %w", err)
	}

	return &Token{
		Value:        resp.Token,
		URL:          c.cfg.URL,
		SignedAt:     resp.SignedAt,
		SerialNumber: resp.Serial,
	}, nil
}

func (c *HTTPClient) requestToken(ctx context.Context, hashHex, nonce string) (*timestampResponse, error) {
	body, err := json.Marshal(timestampRequest{Hash: hashHex, Nonce: nonce})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", c.cfg.URL).Msg("tsa request attempt failed")
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		err := fmt.Errorf("tsa returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
		if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
			// Client errors will not get better on retry
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var resp timestampResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode tsa response: %w", err)
	}
	if resp.Token == "" {
		return nil, backoff.Permanent(fmt.Errorf("tsa returned empty token"))
	}

	return &resp, nil
}

// Verify asks the TSA to re-validate a token against the hash it covers.
func (c *HTTPClient) Verify(ctx context.Context, token *Token, hashHex string) error {
	if token == nil || token.Value == "" {
		return ErrTokenMismatch
	}

	body, err := json.Marshal(verifyRequest{Token: token.Value, Hash: hashHex})
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.URL, "/") + "/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tsa verify request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("tsa verify returned %d", httpResp.StatusCode)
	}

	var resp verifyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("failed to decode tsa verify response: %w", err)
	}
	if !resp.Valid {
		return fmt.Errorf("%w: %s", ErrTokenMismatch, strings.Join(resp.Errors, "; "))
	}

	return nil
}
