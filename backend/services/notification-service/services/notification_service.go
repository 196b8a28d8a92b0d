package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/repository"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/sender"

	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

const sendAttempts = 3

var ErrEmptyContact = errors.New("contact needs an email or a phone number")

type NotificationService interface {
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error)
	GetContact(ctx context.Context, studentID int64) (*models.Contact, error)
	UpsertContact(ctx context.Context, studentID int64, req *models.ContactRequest) (*models.Contact, error)
}

type eventConfig struct {
	subject string
	email   string
	sms     string
}

var eventConfigs = map[string]eventConfig{
	models.EventPaymentSucceeded: {
		subject: "Payment received - OpenFrame Education",
		email:   "templates/payment_succeeded.html",
		sms:     "templates/payment_succeeded.txt",
	},
	models.EventPaymentFailed: {
		subject: "Payment failed - OpenFrame Education",
		email:   "templates/payment_failed.html",
		sms:     "templates/payment_failed.txt",
	},
}

type receiptData struct {
	Name             string
	StudentID        int64
	PaymentID        int64
	Amount           string
	OrderID          string
	GatewayPaymentID string
	Reason           string
	Date             string
}

type notificationService struct {
	repo        repository.NotificationRepository
	emailSender sender.EmailSender
	smsSender   sender.SMSSender
	emails      map[string]*htmltemplate.Template
	texts       map[string]*texttemplate.Template
	metrics     awspkg.MetricsRecorder
	backoff     time.Duration
	logger      *zap.Logger
}

// NewNotificationService wires the receipt pipeline. Either sender may be nil,
// in which case that channel is skipped.
func NewNotificationService(
	repo repository.NotificationRepository,
	emailSender sender.EmailSender,
	smsSender sender.SMSSender,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) (NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	emails := make(map[string]*htmltemplate.Template)
	texts := make(map[string]*texttemplate.Template)
	for eventType, cfg := range eventConfigs {
		e, err := htmltemplate.ParseFS(templateFS, cfg.email)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email template for %s: %w", eventType, err)
		}
		t, err := texttemplate.ParseFS(templateFS, cfg.sms)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sms template for %s: %w", eventType, err)
		}
		emails[eventType], texts[eventType] = e, t
	}
	return &notificationService{
		repo:        repo,
		emailSender: emailSender,
		smsSender:   smsSender,
		emails:      emails,
		texts:       texts,
		metrics:     metrics,
		backoff:     time.Second,
		logger:      logger,
	}, nil
}

// HandlePaymentEvent sends the receipt for a settled payment on every channel
// the student's contact supports. Channels that already delivered for this
// event are skipped, so a redelivered message only retries what failed. An
// error means the message should be redelivered.
func (s *notificationService) HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	if _, ok := eventConfigs[event.Type]; !ok {
		return nil
	}
	if event.StudentID == 0 || event.PaymentID == 0 {
		s.logger.Warn("Payment event without student or payment id, dropping", zap.String("type", event.Type))
		return nil
	}

	contact, err := s.repo.GetContact(ctx, event.StudentID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if contact == nil {
		s.logger.Info("No contact on file, receipt not sent",
			zap.Int64("student_id", event.StudentID),
			zap.Int64("payment_id", event.PaymentID),
		)
		return nil
	}

	data := receiptData{
		Name:             contact.Name,
		StudentID:        event.StudentID,
		PaymentID:        event.PaymentID,
		Amount:           FormatAmount(event.Amount, event.Currency),
		OrderID:          event.GatewayOrderID,
		GatewayPaymentID: event.GatewayPaymentID,
		Reason:           event.Reason,
		Date:             eventTime(event).Format("02 Jan 2006"),
	}

	var failed []string
	for _, channel := range []string{models.ChannelEmail, models.ChannelSMS} {
		to := recipient(contact, channel)
		if to == "" || !s.canSend(channel) {
			continue
		}

		done, err := s.repo.Delivered(ctx, event.PaymentID, event.Type, channel)
		if err != nil {
			return fmt.Errorf("check delivery: %w", err)
		}
		if done {
			continue
		}

		if err := s.deliver(ctx, event, channel, to, data); err != nil {
			failed = append(failed, channel)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("receipt delivery failed on %s", strings.Join(failed, ", "))
	}
	return nil
}

func (s *notificationService) canSend(channel string) bool {
	switch channel {
	case models.ChannelEmail:
		return s.emailSender != nil
	case models.ChannelSMS:
		return s.smsSender != nil
	}
	return false
}

func recipient(c *models.Contact, channel string) string {
	if channel == models.ChannelEmail {
		return c.Email
	}
	return c.Phone
}

func (s *notificationService) deliver(ctx context.Context, event *models.PaymentEvent, channel, to string, data receiptData) error {
	body, err := s.render(event.Type, channel, data)
	if err != nil {
		return err
	}
	subject := eventConfigs[event.Type].subject

	var lastErr error
	var result sender.SendResult
	attempts := 0
	for attempts < sendAttempts {
		if attempts > 0 && !s.sleep(ctx, time.Duration(attempts)*s.backoff) {
			lastErr = ctx.Err()
			break
		}
		attempts++

		switch channel {
		case models.ChannelEmail:
			result, lastErr = s.emailSender.SendEmail(ctx, to, subject, body)
		case models.ChannelSMS:
			result, lastErr = s.smsSender.SendSMS(ctx, to, body)
		}
		if lastErr == nil {
			break
		}

		s.logger.Warn("send attempt failed",
			zap.String("channel", channel),
			zap.String("event", event.Type),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
	}

	entry := &models.NotificationLog{
		StudentID: event.StudentID,
		PaymentID: event.PaymentID,
		Type:      event.Type,
		Channel:   channel,
		Recipient: to,
		Status:    models.StatusSent,
		MessageID: result.MessageID,
		Attempts:  attempts,
	}
	metric := awspkg.MetricNotificationsSent
	if lastErr != nil {
		entry.Status = models.StatusFailed
		entry.Error = lastErr.Error()
		metric = awspkg.MetricNotificationsFailed
	}

	s.logger.Info("notification processed",
		zap.String("event", event.Type),
		zap.String("channel", channel),
		zap.String("status", entry.Status),
		zap.Int64("payment_id", event.PaymentID),
		zap.String("message_id", result.MessageID),
	)
	s.record(metric, channel)

	// A lost log row only risks a duplicate receipt on redelivery.
	if err := s.repo.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to save notification log", zap.Error(err))
	}
	return lastErr
}

func (s *notificationService) render(eventType, channel string, data receiptData) (string, error) {
	var buf bytes.Buffer
	var err error
	if channel == models.ChannelEmail {
		err = s.emails[eventType].Execute(&buf, data)
	} else {
		err = s.texts[eventType].Execute(&buf, data)
	}
	if err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (s *notificationService) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *notificationService) record(metric, channel string) {
	if s.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "notification-service", "Channel": channel})
	}()
}

func (s *notificationService) GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error) {
	return s.repo.GetLogs(ctx, filter)
}

func (s *notificationService) GetContact(ctx context.Context, studentID int64) (*models.Contact, error) {
	return s.repo.GetContact(ctx, studentID)
}

func (s *notificationService) UpsertContact(ctx context.Context, studentID int64, req *models.ContactRequest) (*models.Contact, error) {
	c := &models.Contact{
		StudentID: studentID,
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
	}
	if c.Email == "" && c.Phone == "" {
		return nil, ErrEmptyContact
	}
	if err := s.repo.UpsertContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FormatAmount renders a minor-unit amount for people: 39900 INR is
// "₹399.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	major := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	switch strings.ToUpper(currency) {
	case "INR", "":
		return sign + "₹" + major
	default:
		return strings.ToUpper(currency) + " " + sign + major
	}
}

func eventTime(e *models.PaymentEvent) time.Time {
	if e.Timestamp.IsZero() {
		return time.Now()
	}
	return e.Timestamp
}
