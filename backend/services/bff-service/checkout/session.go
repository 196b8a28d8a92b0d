package checkout

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Session is the caller's authenticated context, forwarded to the
// payment-service on every remote call.
type Session struct {
	UserID string
	Token  string
}

func (s Session) authenticated() bool {
	return s.Token != ""
}

func (s Session) header() http.Header {
	return http.Header{"Authorization": {"Bearer " + s.Token}}
}

// Remote is the transport to the payment-service; *clients.PaymentsClient
// implements it.
type Remote interface {
	Configured() bool
	Do(ctx context.Context, method, path string, query url.Values, headers http.Header, body io.Reader) (*http.Response, error)
}

const defaultRemoteTimeout = 10 * time.Second

func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultRemoteTimeout
	}
	return context.WithTimeout(ctx, d)
}
