package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/ratelimit"
)

// ErrPayloadTooLarge is returned when a 200 body exceeds the configured cap.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// Prober issues one GET per call and reads the body only for 200 responses.
type Prober struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	maxBody   int64
}

// NewProber wraps client. limiter may be nil; maxBody <= 0 means no cap.
func NewProber(client *http.Client, limiter *ratelimit.Limiter, userAgent string, maxBody int64) *Prober {
	return &Prober{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		maxBody:   maxBody,
	}
}

// Probe returns the status and, for 200, the full body. Any failure to
// obtain or read a response is returned as an error.
func (p *Prober) Probe(ctx context.Context, rawURL string) (int, []byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := DoWithContext(ctx, p.client, req)
	if err != nil {
		return 0, nil, err
	}
	defer CloseBody(resp)

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	var body io.Reader = resp.Body
	if p.maxBody > 0 {
		body = io.LimitReader(resp.Body, p.maxBody+1)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read body: %w", err)
	}
	if p.maxBody > 0 && int64(len(payload)) > p.maxBody {
		return 0, nil, fmt.Errorf("%w (%d bytes)", ErrPayloadTooLarge, p.maxBody)
	}

	return resp.StatusCode, payload, nil
}
