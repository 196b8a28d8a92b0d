package checkout

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/bff-service/clients"
	"github.com/caffeinepub/openframe-education/backend/services/common/logger"

	"go.uber.org/zap"
)

// Order is the payment-service's reply to an order request. Amount is in
// major currency units.
type Order struct {
	OrderID   string `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PlanName  string `json:"plan_name"`
	Gateway   string `json:"gateway"`
	KeyID     string `json:"key_id,omitempty"`
	// ClientSecret is only set for Stripe orders.
	ClientSecret string `json:"client_secret,omitempty"`
}

type createOrderBody struct {
	StudentID int64 `json:"student_id"`
	PlanID    int64 `json:"plan_id"`
}

// OrderClient asks the payment-service to create a gateway order.
type OrderClient struct {
	remote  Remote
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrderClient(remote Remote, timeout time.Duration, logger *zap.Logger) *OrderClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderClient{remote: remote, timeout: timeout, logger: logger}
}

// CreateOrder never returns an Order with an empty OrderID. Without a
// configured remote or a bearer credential it fails with ErrRemoteUnavailable
// and sends nothing; every other failure is ErrOrderCreationFailed. Failures
// are not retried.
func (c *OrderClient) CreateOrder(ctx context.Context, s Session, studentID, planID int64) (*Order, error) {
	if c.remote == nil || !c.remote.Configured() || !s.authenticated() {
		return nil, ErrRemoteUnavailable
	}
	log := logger.FromContext(ctx, c.logger).With(zap.Int64("student_id", studentID), zap.Int64("plan_id", planID))

	body, err := clients.JSONBody(createOrderBody{StudentID: studentID, PlanID: planID})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	ctx, cancel := withDeadline(ctx, c.timeout)
	defer cancel()

	resp, err := c.remote.Do(ctx, http.MethodPost, "/payments/orders", nil, s.header(), body)
	if err != nil {
		log.Warn("Order request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	var order Order
	if err := clients.DecodeJSON(resp, &order); err != nil {
		log.Warn("Order rejected by payment-service", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	if order.OrderID == "" {
		log.Warn("Payment-service returned an order without an id")
		return nil, fmt.Errorf("%w: empty order id", ErrOrderCreationFailed)
	}

	log.Info("Payment order created", zap.String("order_id", order.OrderID), zap.Int64("payment_id", order.PaymentID))
	return &order, nil
}
