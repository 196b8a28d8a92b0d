package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

const RazorpayName = "razorpay"

type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPayments interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway implements Provider with the Razorpay Orders and Payments APIs.
type RazorpayGateway struct {
	orders        razorpayOrders
	payments      razorpayPayments
	keyID         string
	keySecret     string
	webhookSecret string
}

// NewRazorpayGateway creates a gateway authenticated with keyID/keySecret.
// webhookSecret may be empty, in which case webhooks are rejected.
func NewRazorpayGateway(keyID, keySecret, webhookSecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return newRazorpayGateway(client.Order, client.Payment, keyID, keySecret, webhookSecret)
}

func newRazorpayGateway(orders razorpayOrders, payments razorpayPayments, keyID, keySecret, webhookSecret string) *RazorpayGateway {
	return &RazorpayGateway{
		orders:        orders,
		payments:      payments,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

func (g *RazorpayGateway) Name() string  { return RazorpayName }
func (g *RazorpayGateway) KeyID() string { return g.keyID }

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		// Authorized payments are only Paid once captured.
		"payment_capture": 1,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	resp, err := call(ctx, func() (map[string]interface{}, error) {
		return g.orders.Create(data, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay CreateOrder: %w", err)
	}

	id := stringField(resp, "id")
	if id == "" {
		return nil, fmt.Errorf("razorpay CreateOrder: response has no order id")
	}
	return &Order{
		ID:       id,
		Amount:   int64Field(resp, "amount"),
		Currency: stringField(resp, "currency"),
		Receipt:  stringField(resp, "receipt"),
	}, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	resp, err := call(ctx, func() (map[string]interface{}, error) {
		return g.payments.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay FetchPayment: %w", err)
	}
	return razorpayPaymentInfo(resp), nil
}

// VerifyPaymentSignature checks the checkout signature over
// "<order_id>|<payment_id>", keyed with the API secret.
func (g *RazorpayGateway) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if signature == "" || g.keySecret == "" {
		return ErrInvalidSignature
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	if !utils.VerifyPaymentSignature(attrs, signature, g.keySecret) {
		return ErrInvalidSignature
	}
	return nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity map[string]interface{} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (g *RazorpayGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	sig := header.Get("X-Razorpay-Signature")
	if sig == "" || g.webhookSecret == "" || !utils.VerifyWebhookSignature(string(payload), sig, g.webhookSecret) {
		return nil, ErrInvalidSignature
	}

	var wh razorpayWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}

	info := razorpayPaymentInfo(wh.Payload.Payment.Entity)
	ev := &WebhookEvent{
		Type:      wh.Event,
		OrderID:   info.OrderID,
		PaymentID: info.ID,
		Reason:    info.Reason,
	}
	switch wh.Event {
	case "payment.captured", "order.paid":
		ev.Kind = WebhookCaptured
	case "payment.failed":
		ev.Kind = WebhookAttemptFailed
	default:
		ev.Kind = WebhookIgnored
	}
	return ev, nil
}

func razorpayPaymentInfo(entity map[string]interface{}) *PaymentInfo {
	info := &PaymentInfo{
		ID:       stringField(entity, "id"),
		OrderID:  stringField(entity, "order_id"),
		Amount:   int64Field(entity, "amount"),
		Currency: stringField(entity, "currency"),
		Reason:   stringField(entity, "error_description"),
	}
	switch stringField(entity, "status") {
	case "captured":
		info.State = StateCaptured
	case "failed":
		info.State = StateFailed
	default:
		info.State = StatePending
	}
	return info
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
