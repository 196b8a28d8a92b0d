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

// PaymentsCache drops a student's cached payment list.
type PaymentsCache interface {
	Invalidate(ctx context.Context, studentID int64) error
}

type confirmBody struct {
	PaymentID        int64  `json:"payment_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	Signature        string `json:"signature,omitempty"`
}

type confirmReply struct {
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error"`
}

// Confirmation identifies the payment the gateway reported as successful.
type Confirmation struct {
	StudentID        int64
	PaymentID        int64
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// ConfirmationRelay forwards a gateway success to the payment-service, which
// makes the trust decision.
type ConfirmationRelay struct {
	remote  Remote
	cache   PaymentsCache
	timeout time.Duration
	logger  *zap.Logger
}

func NewConfirmationRelay(remote Remote, cache PaymentsCache, timeout time.Duration, logger *zap.Logger) *ConfirmationRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationRelay{remote: remote, cache: cache, timeout: timeout, logger: logger}
}

// ConfirmPayment returns true only when the payment-service confirms the
// Paid transition. A rejection is ErrConfirmationFailed, never success. On
// success the student's cached payment list is invalidated.
func (r *ConfirmationRelay) ConfirmPayment(ctx context.Context, s Session, c Confirmation) (bool, error) {
	if r.remote == nil || !r.remote.Configured() || !s.authenticated() {
		return false, ErrRemoteUnavailable
	}
	if c.GatewayPaymentID == "" {
		return false, fmt.Errorf("%w: missing gateway payment id", ErrInvalidResponse)
	}
	log := logger.FromContext(ctx, r.logger).With(
		zap.Int64("payment_id", c.PaymentID),
		zap.String("gateway_payment_id", c.GatewayPaymentID),
	)

	body, err := clients.JSONBody(confirmBody{
		PaymentID:        c.PaymentID,
		GatewayPaymentID: c.GatewayPaymentID,
		GatewayOrderID:   c.GatewayOrderID,
		Signature:        c.Signature,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrConfirmationFailed, err)
	}

	rctx, cancel := withDeadline(ctx, r.timeout)
	defer cancel()

	resp, err := r.remote.Do(rctx, http.MethodPost, "/payments/confirm", nil, s.header(), body)
	if err != nil {
		log.Error("Payment confirmation request failed", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrConfirmationFailed, err)
	}
	var reply confirmReply
	if err := clients.DecodeJSON(resp, &reply); err != nil {
		log.Error("Payment confirmation rejected", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrConfirmationFailed, err)
	}
	if !reply.Confirmed {
		log.Error("Payment-service did not confirm payment", zap.String("reason", reply.Error))
		return false, fmt.Errorf("%w: %s", ErrConfirmationFailed, reply.Error)
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, c.StudentID); err != nil {
			log.Warn("Failed to invalidate payments cache", zap.Int64("student_id", c.StudentID), zap.Error(err))
		}
	}
	log.Info("Payment confirmed")
	return true, nil
}
