package gateway

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidSignature = errors.New("invalid gateway signature")
	ErrUnknownGateway   = errors.New("unknown payment gateway")
)

// PaymentState is a gateway payment status normalised across providers.
type PaymentState string

// StateFailed is one declined attempt: the payer may retry on the same
// order. StateCanceled means the order itself can no longer be paid.
const (
	StateCaptured PaymentState = "captured"
	StatePending  PaymentState = "pending"
	StateFailed   PaymentState = "failed"
	StateCanceled PaymentState = "canceled"
)

// Order is an order created on the gateway. Amount is in minor units.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	// ClientSecret is set by gateways whose widget needs one (Stripe).
	ClientSecret string
}

// PaymentInfo is the gateway's authoritative view of one payment.
type PaymentInfo struct {
	ID       string
	OrderID  string
	State    PaymentState
	Amount   int64
	Currency string
	Reason   string
}

type WebhookKind int

const (
	WebhookIgnored WebhookKind = iota
	WebhookCaptured
	// WebhookAttemptFailed leaves the order payable.
	WebhookAttemptFailed
	// WebhookOrderClosed means no further payment can succeed on the order.
	WebhookOrderClosed
)

// WebhookEvent is a verified webhook reduced to what the payment service acts on.
type WebhookEvent struct {
	Kind      WebhookKind
	Type      string
	OrderID   string
	PaymentID string
	Reason    string
}

// Provider is implemented by every payment gateway integration.
type Provider interface {
	// Name identifies the gateway on stored payments.
	Name() string

	// KeyID is the public key the checkout widget is opened with.
	KeyID() string

	// CreateOrder registers an order for amount minor units.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)

	// FetchPayment looks a payment up on the gateway.
	FetchPayment(ctx context.Context, paymentID string) (*PaymentInfo, error)

	// VerifyPaymentSignature checks the signature the widget returned with a
	// successful payment. Gateways without such a signature return nil.
	VerifyPaymentSignature(orderID, paymentID, signature string) error

	// ParseWebhook verifies and decodes a webhook delivery.
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// Settings selects and configures a gateway.
type Settings struct {
	Name                  string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	StripeSecretKey       string
	StripePublishableKey  string
	StripeWebhookSecret   string
}

// New builds the Provider named by s.Name.
func New(s Settings) (Provider, error) {
	switch s.Name {
	case RazorpayName, "":
		if s.RazorpayKeyID == "" || s.RazorpayKeySecret == "" {
			return nil, errors.New("razorpay key id and secret are required")
		}
		return NewRazorpayGateway(s.RazorpayKeyID, s.RazorpayKeySecret, s.RazorpayWebhookSecret), nil
	case StripeName:
		if s.StripeSecretKey == "" {
			return nil, errors.New("stripe secret key is required")
		}
		return NewStripeGateway(s.StripeSecretKey, s.StripePublishableKey, s.StripeWebhookSecret), nil
	default:
		return nil, ErrUnknownGateway
	}
}

// call runs a blocking SDK call and gives up when ctx ends first. The SDKs
// used here take no context of their own.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
