package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/common/logger"
)

// maxErrorBody caps how much of an upstream error body is kept for messages.
const maxErrorBody = 4 << 10

// PaymentsClient talks to the payment-service over HTTP.
type PaymentsClient struct {
	baseURL string
	client  *http.Client
}

func NewPaymentsClient(baseURL string, timeout time.Duration) *PaymentsClient {
	return &PaymentsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a payment-service endpoint is set.
func (p *PaymentsClient) Configured() bool {
	return p != nil && p.baseURL != ""
}

// Do sends a request to the payment-service. The request id carried by ctx is
// forwarded so both services log under the same id.
func (p *PaymentsClient) Do(ctx context.Context, method, path string, query url.Values, headers http.Header, body io.Reader) (*http.Response, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("payment-service URL not configured")
	}
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.RequestIDFrom(ctx); id != "" && req.Header.Get(logger.RequestIDHeader) == "" {
		req.Header.Set(logger.RequestIDHeader, id)
	}

	return p.client.Do(req)
}

// UpstreamError is returned by DecodeJSON for non-2xx replies.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.StatusCode, e.Message)
}

// DecodeJSON closes resp.Body. Replies with status >= 400 become an
// *UpstreamError whose Message is the "error" field when the body has one.
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	return string(bytes.TrimSpace(body))
}

// CopyResponse streams an upstream reply to w unchanged.
func CopyResponse(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	for k, v := range resp.Header {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(resp.StatusCode)

	_, err := io.Copy(w, resp.Body)
	return err
}

// JSONBody encodes v for use as a request body.
func JSONBody(v interface{}) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
