package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

const StripeName = "stripe"

// StripeGateway implements Provider on PaymentIntents. The intent id serves
// as both the order id and the payment id.
type StripeGateway struct {
	publishableKey string
	webhookKey     string
}

func NewStripeGateway(secretKey, publishableKey, webhookKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{publishableKey: publishableKey, webhookKey: webhookKey}
}

func (s *StripeGateway) Name() string  { return StripeName }
func (s *StripeGateway) KeyID() string { return s.publishableKey }

func (s *StripeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	params.AddMetadata("receipt", receipt)
	for k, v := range notes {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe CreateOrder: %w", err)
	}
	return &Order{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      receipt,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (s *StripeGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(paymentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe FetchPayment: %w", err)
	}
	return stripeIntentInfo(pi), nil
}

// VerifyPaymentSignature is a no-op: Stripe returns no client-side signature,
// the intent lookup is the only check.
func (s *StripeGateway) VerifyPaymentSignature(_, _, _ string) error {
	return nil
}

func (s *StripeGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, header.Get("Stripe-Signature"), s.webhookKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &WebhookEvent{Type: string(event.Type), Kind: WebhookIgnored}
	switch event.Type {
	case "payment_intent.succeeded":
		ev.Kind = WebhookCaptured
	case "payment_intent.payment_failed":
		ev.Kind = WebhookAttemptFailed
	case "payment_intent.canceled":
		ev.Kind = WebhookOrderClosed
	default:
		return ev, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	info := stripeIntentInfo(&pi)
	ev.OrderID = info.OrderID
	ev.PaymentID = info.ID
	ev.Reason = info.Reason
	return ev, nil
}

func stripeIntentInfo(pi *stripe.PaymentIntent) *PaymentInfo {
	info := &PaymentInfo{
		ID:       pi.ID,
		OrderID:  pi.ID,
		Amount:   pi.Amount,
		Currency: strings.ToUpper(string(pi.Currency)),
		State:    stripeState(pi.Status),
	}
	if pi.LastPaymentError != nil {
		info.Reason = pi.LastPaymentError.Msg
		// The intent returns to requires_payment_method after a decline.
		if info.State == StatePending && pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			info.State = StateFailed
		}
	}
	return info
}

func stripeState(status stripe.PaymentIntentStatus) PaymentState {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StateCaptured
	case stripe.PaymentIntentStatusCanceled:
		return StateCanceled
	default:
		return StatePending
	}
}
