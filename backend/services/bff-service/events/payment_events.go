package events

import (
	"context"
	"encoding/json"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"

	"go.uber.org/zap"
)

// Invalidator drops cached state for a student.
type Invalidator interface {
	Invalidate(ctx context.Context, studentID int64) error
}

// paymentEvent is the part of the payment-service event the BFF reads.
type paymentEvent struct {
	Type      string `json:"type"`
	PaymentID int64  `json:"payment_id"`
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"`
}

// Handler invalidates a student's cached payment list whenever the
// payment-service reports a change to one of their orders.
type Handler struct {
	cache   Invalidator
	logger  *zap.Logger
	metrics awspkg.MetricsRecorder
}

func NewHandler(cache Invalidator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cache: cache, logger: logger}
}

func (h *Handler) SetMetrics(m awspkg.MetricsRecorder) {
	h.metrics = m
}

// Handle processes one event body. Malformed events are logged and dropped;
// a cache failure is returned so the message is redelivered.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var evt paymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("Dropping malformed payment event", zap.Error(err))
		return nil
	}
	if evt.StudentID <= 0 {
		h.logger.Warn("Dropping payment event without student", zap.String("type", evt.Type), zap.Int64("payment_id", evt.PaymentID))
		return nil
	}

	if err := h.cache.Invalidate(ctx, evt.StudentID); err != nil {
		return err
	}
	h.logger.Info("Payment event applied",
		zap.String("type", evt.Type),
		zap.Int64("payment_id", evt.PaymentID),
		zap.Int64("student_id", evt.StudentID),
		zap.String("status", evt.Status),
	)
	h.record()
	return nil
}

// SQS adapts Handle to an SQS consumer, unwrapping SNS envelopes.
func (h *Handler) SQS() awspkg.MessageHandler {
	return func(ctx context.Context, body string) error {
		return h.Handle(ctx, []byte(awspkg.UnwrapSNSMessage(body)))
	}
}

func (h *Handler) record() {
	if h.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.metrics.RecordCount(ctx, awspkg.MetricSQSMessages, map[string]string{"Service": "bff-service", "Source": "payment-events"})
	}()
}
