package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

// CollectorPath is the fixed path events are posted to under the collector base URL.
const CollectorPath = "/api/detective"

// DeliveryError is a failed delivery: a transport error, or a non-2xx response.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver event: %v", e.Err)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// HTTPSender posts events as JSON to the collector.
type HTTPSender struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSender creates a sender for the collector at baseURL. timeout bounds
// each request so a hung collector cannot hold a delivery forever.
func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSender{
		url:        strings.TrimRight(baseURL, "/") + CollectorPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the full collector endpoint.
func (s *HTTPSender) URL() string { return s.url }

// Send posts ev and treats any 2xx status as success.
func (s *HTTPSender) Send(ctx context.Context, ev model.TelemetryEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}
