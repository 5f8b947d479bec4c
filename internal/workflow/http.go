package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const headerIdempotencyKey = "Idempotency-Key"

// HTTPForwarder POSTs the transcript to the processor's ingestion webhook.
type HTTPForwarder struct {
	url    string
	client *http.Client
}

func NewHTTPForwarder(url string, timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPForwarder{url: url, client: &http.Client{Timeout: timeout}}
}

func (f *HTTPForwarder) Forward(ctx context.Context, req ForwardRequest) error {
	body, err := req.Body()
	if err != nil {
		return fmt.Errorf("workflow: encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("workflow: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey())

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForwardFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrForwardFailed, resp.StatusCode)
	}
	return nil
}
