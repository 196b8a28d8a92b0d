package consumer

import (
	"context"
	"encoding/json"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"

	"go.uber.org/zap"
)

// EventHandler is satisfied by services.NotificationService.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// PaymentEvents adapts the notification service to the SQS consumer.
// Unparseable messages are dropped; handler errors leave the message on the
// queue for redelivery.
func PaymentEvents(h EventHandler, logger *zap.Logger) awspkg.MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, body string) error {
		var event models.PaymentEvent
		if err := json.Unmarshal([]byte(awspkg.UnwrapSNSMessage(body)), &event); err != nil {
			logger.Error("failed to unmarshal payment event", zap.Error(err))
			return nil
		}
		if err := h.HandlePaymentEvent(ctx, &event); err != nil {
			logger.Error("failed to process payment event",
				zap.String("type", event.Type),
				zap.Int64("payment_id", event.PaymentID),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}
