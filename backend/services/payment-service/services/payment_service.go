package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"
	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/gateway"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

const staleSweepBatch = 100

// PaymentService owns the payment order lifecycle. All status transitions
// happen here; callers only ever learn the outcome.
type PaymentService interface {
	CreateOrder(ctx context.Context, caller *auth.Principal, req *models.CreateOrderRequest) (*models.OrderResponse, *ServiceError)
	ConfirmPayment(ctx context.Context, caller *auth.Principal, req *models.ConfirmPaymentRequest) (*models.Payment, *ServiceError)
	HandleWebhook(ctx context.Context, gatewayName string, payload []byte, header http.Header) *ServiceError
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)

	RecordPayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, *ServiceError)
	GetPayment(ctx context.Context, caller *auth.Principal, paymentID int64) (*models.Payment, *ServiceError)
	ListByStudent(ctx context.Context, caller *auth.Principal, studentID int64) ([]models.Payment, *ServiceError)
	ListAll(ctx context.Context, page, limit int, status string) ([]models.Payment, int64, *ServiceError)
	DeletePayment(ctx context.Context, paymentID int64) *ServiceError
}

type paymentServiceImpl struct {
	payments  repository.PaymentRepository
	catalog   repository.CatalogRepository
	provider  gateway.Provider
	publisher EventPublisher
	metrics   awspkg.MetricsRecorder
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService creates a PaymentService. metrics may be nil.
func NewPaymentService(
	payments repository.PaymentRepository,
	catalog repository.CatalogRepository,
	provider gateway.Provider,
	publisher EventPublisher,
	metrics awspkg.MetricsRecorder,
	currency string,
	logger *zap.Logger,
) PaymentService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if currency == "" {
		currency = models.CurrencyINR
	}
	return &paymentServiceImpl{
		payments:  payments,
		catalog:   catalog,
		provider:  provider,
		publisher: publisher,
		metrics:   metrics,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder registers a gateway order for the plan's monthly price and
// stores it as a Pending payment. Nothing is persisted when the gateway fails.
func (s *paymentServiceImpl) CreateOrder(ctx context.Context, caller *auth.Principal, req *models.CreateOrderRequest) (*models.OrderResponse, *ServiceError) {
	if _, serr := s.authorizeStudent(ctx, caller, req.StudentID); serr != nil {
		return nil, serr
	}

	plan, err := s.catalog.FindPlan(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Plan not found"}
		}
		s.logger.Error("Failed to load plan", zap.Int64("plan_id", req.PlanID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load plan"}
	}

	amount, ok := toMinorUnits(plan.MonthlyPrice)
	if !ok {
		return nil, &ServiceError{StatusCode: http.StatusUnprocessableEntity, Message: "Plan price out of range"}
	}

	paymentID := models.NewPaymentID(s.now())
	receipt := "rcpt_" + uuid.NewString()[:18]
	notes := map[string]string{
		"payment_id": strconv.FormatInt(paymentID, 10),
		"student_id": strconv.FormatInt(req.StudentID, 10),
		"plan_id":    strconv.FormatInt(req.PlanID, 10),
	}

	start := time.Now()
	order, err := s.provider.CreateOrder(ctx, amount, s.currency, receipt, notes)
	s.recordLatency(ctx, awspkg.MetricGatewayLatency, time.Since(start), "CreateOrder")
	if err != nil {
		s.logger.Error("Gateway order creation failed",
			zap.Int64("student_id", req.StudentID),
			zap.Int64("plan_id", req.PlanID),
			zap.Error(err),
		)
		s.recordCount(ctx, awspkg.MetricPaymentOrderFailed)
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to create order with payment gateway"}
	}
	if order.ID == "" {
		s.recordCount(ctx, awspkg.MetricPaymentOrderFailed)
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Payment gateway returned no order id"}
	}

	payment := &models.Payment{
		PaymentID:      paymentID,
		StudentID:      req.StudentID,
		PlanID:         req.PlanID,
		Gateway:        s.provider.Name(),
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.currency,
		Status:         models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.logger.Error("Failed to persist payment order", zap.String("order_id", order.ID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to save payment order"}
	}

	s.logger.Info("Payment order created",
		zap.Int64("payment_id", paymentID),
		zap.String("order_id", order.ID),
		zap.Int64("amount", amount),
	)
	s.recordCount(ctx, awspkg.MetricPaymentOrdersCreated)
	s.publishEvent(ctx, models.EventPaymentOrderCreated, payment)

	return &models.OrderResponse{
		OrderID:      order.ID,
		PaymentID:    paymentID,
		Amount:       plan.MonthlyPrice,
		Currency:     s.currency,
		PlanName:     plan.Name,
		Gateway:      s.provider.Name(),
		KeyID:        s.provider.KeyID(),
		ClientSecret: order.ClientSecret,
	}, nil
}

// ConfirmPayment marks the order Paid only after the gateway itself reports
// the payment as captured for this order. A Paid order confirms again
// idempotently; a Failed one never does. A declined attempt keeps the order
// Pending so the payer can retry it.
func (s *paymentServiceImpl) ConfirmPayment(ctx context.Context, caller *auth.Principal, req *models.ConfirmPaymentRequest) (*models.Payment, *ServiceError) {
	payment, serr := s.loadPayment(ctx, req.PaymentID)
	if serr != nil {
		return nil, serr
	}
	if _, serr := s.authorizeStudent(ctx, caller, payment.StudentID); serr != nil {
		return nil, serr
	}

	switch payment.Status {
	case models.PaymentStatusPaid:
		if payment.GatewayPaymentID != nil && *payment.GatewayPaymentID == req.GatewayPaymentID {
			return payment, nil
		}
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Payment order already settled by another payment"}
	case models.PaymentStatusFailed:
		s.logger.Warn("Confirmation for failed payment order",
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
			zap.String("failure_reason", payment.FailureReason),
		)
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Payment order has failed"}
	}

	if req.GatewayOrderID != "" && req.GatewayOrderID != payment.GatewayOrderID {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Order id does not match payment"}
	}
	if req.Signature != "" {
		if err := s.provider.VerifyPaymentSignature(payment.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
			s.logger.Warn("Payment signature rejected",
				zap.Int64("payment_id", payment.PaymentID),
				zap.String("gateway_payment_id", req.GatewayPaymentID),
			)
			s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
			return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid payment signature"}
		}
	}

	start := time.Now()
	info, err := s.provider.FetchPayment(ctx, req.GatewayPaymentID)
	s.recordLatency(ctx, awspkg.MetricGatewayLatency, time.Since(start), "FetchPayment")
	if err != nil {
		s.logger.Error("Gateway payment lookup failed",
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
			zap.Error(err),
		)
		s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Could not verify payment with gateway"}
	}

	if info.OrderID != payment.GatewayOrderID || (info.Amount != 0 && info.Amount != payment.Amount) {
		s.logger.Warn("Gateway payment does not match order",
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("expected_order_id", payment.GatewayOrderID),
			zap.String("gateway_order_id", info.OrderID),
			zap.Int64("gateway_amount", info.Amount),
		)
		s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Payment does not belong to this order"}
	}

	switch info.State {
	case gateway.StateCaptured:
	case gateway.StateFailed:
		s.attemptFailed(ctx, payment, failureReason(info.Reason, "payment failed at gateway"))
		s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
		return nil, &ServiceError{StatusCode: http.StatusPaymentRequired, Message: "Payment failed at gateway"}
	case gateway.StateCanceled:
		s.fail(ctx, payment, failureReason(info.Reason, "payment order closed at gateway"))
		s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Payment order closed at gateway"}
	default:
		s.recordCount(ctx, awspkg.MetricPaymentConfirmRejected)
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Payment not yet captured"}
	}

	if serr := s.settle(ctx, payment, info.ID); serr != nil {
		return nil, serr
	}
	return payment, nil
}

// HandleWebhook applies a verified gateway notification. Unknown orders and
// events about already settled orders are acknowledged and ignored.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, header http.Header) *ServiceError {
	if gatewayName != s.provider.Name() {
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Gateway not enabled"}
	}

	ev, err := s.provider.ParseWebhook(payload, header)
	if err != nil {
		s.logger.Warn("Rejected webhook", zap.String("gateway", gatewayName), zap.Error(err))
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid webhook"}
	}
	if ev.Kind == gateway.WebhookIgnored {
		s.logger.Debug("Ignoring webhook event", zap.String("type", ev.Type))
		return nil
	}

	payment, err := s.payments.FindByGatewayOrderID(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("Webhook for unknown order", zap.String("order_id", ev.OrderID), zap.String("type", ev.Type))
			return nil
		}
		s.logger.Error("Failed to load payment for webhook", zap.String("order_id", ev.OrderID), zap.Error(err))
		return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load payment"}
	}
	if payment.Status == models.PaymentStatusFailed && ev.Kind == gateway.WebhookCaptured {
		s.logger.Error("Payment captured on a failed order, needs reconciliation",
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("order_id", payment.GatewayOrderID),
			zap.String("gateway_payment_id", ev.PaymentID),
		)
		s.recordCount(ctx, awspkg.MetricPaymentLateCapture)
		return nil
	}
	if payment.Status.IsTerminal() {
		s.logger.Info("Webhook for settled payment ignored",
			zap.Int64("payment_id", payment.PaymentID),
			zap.String("status", string(payment.Status)),
			zap.String("type", ev.Type),
		)
		return nil
	}

	switch ev.Kind {
	case gateway.WebhookCaptured:
		return s.settle(ctx, payment, ev.PaymentID)
	case gateway.WebhookAttemptFailed:
		s.attemptFailed(ctx, payment, failureReason(ev.Reason, "payment failed at gateway"))
	case gateway.WebhookOrderClosed:
		if !s.fail(ctx, payment, failureReason(ev.Reason, "payment order closed at gateway")) {
			return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update payment"}
		}
	}
	return nil
}

// ExpireStale fails Pending orders created more than olderThan ago.
func (s *paymentServiceImpl) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.payments.FindStalePending(ctx, s.now().Add(-olderThan), staleSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale payments: %w", err)
	}

	expired := 0
	for i := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if s.fail(ctx, &stale[i], "checkout expired") {
			expired++
			s.recordCount(ctx, awspkg.MetricPaymentsExpired)
		}
	}
	if expired > 0 {
		s.logger.Info("Expired stale payment orders", zap.Int("count", expired))
	}
	return expired, nil
}

// RecordPayment stores a payment settled outside the gateway (cash, bank
// transfer). Reference becomes the order id.
func (s *paymentServiceImpl) RecordPayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, *ServiceError) {
	if _, err := s.catalog.FindStudent(ctx, req.StudentID); err != nil {
		return nil, notFoundOr(err, "Student not found", s.logger)
	}
	if _, err := s.catalog.FindPlan(ctx, req.PlanID); err != nil {
		return nil, notFoundOr(err, "Plan not found", s.logger)
	}

	status := req.Status
	if status == "" {
		status = models.PaymentStatusPaid
	}
	now := s.now()
	payment := &models.Payment{
		PaymentID:      models.NewPaymentID(now),
		StudentID:      req.StudentID,
		PlanID:         req.PlanID,
		Gateway:        "manual",
		GatewayOrderID: req.Reference,
		Amount:         req.Amount,
		Currency:       s.currency,
		Status:         status,
	}
	switch status {
	case models.PaymentStatusPaid:
		payment.PaidAt = &now
	case models.PaymentStatusFailed:
		payment.FailedAt = &now
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		s.logger.Error("Failed to record payment", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to record payment"}
	}
	if status == models.PaymentStatusPaid {
		s.publishEvent(ctx, models.EventPaymentSucceeded, payment)
	}
	return payment, nil
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, caller *auth.Principal, paymentID int64) (*models.Payment, *ServiceError) {
	payment, serr := s.loadPayment(ctx, paymentID)
	if serr != nil {
		return nil, serr
	}
	if _, serr := s.authorizeStudent(ctx, caller, payment.StudentID); serr != nil {
		return nil, serr
	}
	return payment, nil
}

func (s *paymentServiceImpl) ListByStudent(ctx context.Context, caller *auth.Principal, studentID int64) ([]models.Payment, *ServiceError) {
	if _, serr := s.authorizeStudent(ctx, caller, studentID); serr != nil {
		return nil, serr
	}
	payments, err := s.payments.FindByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("Failed to list student payments", zap.Int64("student_id", studentID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch payments"}
	}
	return payments, nil
}

func (s *paymentServiceImpl) ListAll(ctx context.Context, page, limit int, status string) ([]models.Payment, int64, *ServiceError) {
	payments, total, err := s.payments.FindAll(ctx, page, limit, status)
	if err != nil {
		s.logger.Error("Failed to list payments", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch payments"}
	}
	return payments, total, nil
}

func (s *paymentServiceImpl) DeletePayment(ctx context.Context, paymentID int64) *ServiceError {
	if err := s.payments.Delete(ctx, paymentID); err != nil {
		return notFoundOr(err, "Payment not found", s.logger)
	}
	return nil
}

// settle performs the guarded Pending -> Paid transition. Losing the race to
// another transition is reported from the row's current state.
func (s *paymentServiceImpl) settle(ctx context.Context, payment *models.Payment, gatewayPaymentID string) *ServiceError {
	now := s.now()
	updated, err := s.payments.MarkPaid(ctx, payment, gatewayPaymentID, now)
	if err != nil {
		s.logger.Error("Failed to mark payment paid", zap.Int64("payment_id", payment.PaymentID), zap.Error(err))
		return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update payment"}
	}
	if !updated {
		current, serr := s.loadPayment(ctx, payment.PaymentID)
		if serr != nil {
			return serr
		}
		*payment = *current
		if current.Status == models.PaymentStatusPaid && current.GatewayPaymentID != nil && *current.GatewayPaymentID == gatewayPaymentID {
			return nil
		}
		return &ServiceError{StatusCode: http.StatusConflict, Message: "Payment order already settled"}
	}

	payment.Status = models.PaymentStatusPaid
	payment.GatewayPaymentID = &gatewayPaymentID
	payment.PaidAt = &now

	s.logger.Info("Payment confirmed",
		zap.Int64("payment_id", payment.PaymentID),
		zap.String("order_id", payment.GatewayOrderID),
		zap.String("gateway_payment_id", gatewayPaymentID),
	)
	s.recordCount(ctx, awspkg.MetricPaymentConfirmed)
	s.publishEvent(ctx, models.EventPaymentSucceeded, payment)
	return nil
}

// attemptFailed records a declined attempt. The order stays Pending: the
// gateway lets the payer retry it, and the sweeper fails it once it expires.
func (s *paymentServiceImpl) attemptFailed(ctx context.Context, payment *models.Payment, reason string) {
	noted, err := s.payments.RecordAttemptFailure(ctx, payment.PaymentID, reason)
	if err != nil {
		s.logger.Error("Failed to record payment attempt failure", zap.Int64("payment_id", payment.PaymentID), zap.Error(err))
		return
	}
	if !noted {
		return
	}
	payment.FailureReason = reason

	s.logger.Info("Payment attempt declined",
		zap.Int64("payment_id", payment.PaymentID),
		zap.String("order_id", payment.GatewayOrderID),
		zap.String("reason", reason),
	)
	s.recordCount(ctx, awspkg.MetricPaymentAttemptFailed)
}

// fail performs the guarded Pending -> Failed transition and reports whether
// this call made it.
func (s *paymentServiceImpl) fail(ctx context.Context, payment *models.Payment, reason string) bool {
	now := s.now()
	updated, err := s.payments.MarkFailed(ctx, payment.PaymentID, reason, now)
	if err != nil {
		s.logger.Error("Failed to mark payment failed", zap.Int64("payment_id", payment.PaymentID), zap.Error(err))
		return false
	}
	if !updated {
		return false
	}

	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason
	payment.FailedAt = &now

	s.logger.Info("Payment failed",
		zap.Int64("payment_id", payment.PaymentID),
		zap.String("order_id", payment.GatewayOrderID),
		zap.String("reason", reason),
	)
	s.recordCount(ctx, awspkg.MetricPaymentFailed)
	s.publishEvent(ctx, models.EventPaymentFailed, payment)
	return true
}

func (s *paymentServiceImpl) loadPayment(ctx context.Context, paymentID int64) (*models.Payment, *ServiceError) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "Payment not found", s.logger)
	}
	return payment, nil
}

// authorizeStudent checks that caller may act for studentID: admins for
// anyone, students for themselves and parents for their own children.
func (s *paymentServiceImpl) authorizeStudent(ctx context.Context, caller *auth.Principal, studentID int64) (*models.Student, *ServiceError) {
	student, err := s.catalog.FindStudent(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "Student not found", s.logger)
	}
	if serr := checkAccess(caller, student); serr != nil {
		return nil, serr
	}
	return student, nil
}

func checkAccess(caller *auth.Principal, student *models.Student) *ServiceError {
	if caller == nil {
		return &ServiceError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}
	}
	switch {
	case caller.IsAdmin():
	case caller.Role == auth.RoleStudent && caller.StudentID == student.StudentID:
	case caller.Role == auth.RoleParent && student.ParentID != "" && student.ParentID == caller.UserID:
	default:
		return &ServiceError{StatusCode: http.StatusForbidden, Message: "Not allowed to act for this student"}
	}
	return nil
}

func (s *paymentServiceImpl) publishEvent(ctx context.Context, eventType string, payment *models.Payment) {
	event := models.NewPaymentEvent(eventType, payment, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish payment event",
			zap.String("event_type", eventType),
			zap.Int64("payment_id", payment.PaymentID),
			zap.Error(err),
		)
	}
}

func (s *paymentServiceImpl) recordCount(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Gateway": s.provider.Name()})
}

func (s *paymentServiceImpl) recordLatency(ctx context.Context, metric string, d time.Duration, op string) {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.RecordLatency(ctx, metric, d, map[string]string{"Gateway": s.provider.Name(), "Operation": op})
}

// toMinorUnits converts rupees to paise, reporting false on overflow or a
// non-positive price.
func toMinorUnits(major int64) (int64, bool) {
	if major <= 0 || major > math.MaxInt64/100 {
		return 0, false
	}
	return major * 100, true
}

func failureReason(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	if len(reason) > 255 {
		return reason[:255]
	}
	return reason
}

func notFoundOr(err error, msg string, logger *zap.Logger) *ServiceError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ServiceError{StatusCode: http.StatusNotFound, Message: msg}
	}
	logger.Error("Database error", zap.Error(err))
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}
}
