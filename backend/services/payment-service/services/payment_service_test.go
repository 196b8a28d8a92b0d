package services_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/gateway"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ---- in-memory payment repository ----

type memPaymentRepo struct {
	mu        sync.Mutex
	rows      map[int64]*models.Payment
	enrolled  map[int64]int64
	createErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{rows: map[int64]*models.Payment{}, enrolled: map[int64]int64{}}
}

func (r *memPaymentRepo) Create(_ context.Context, p *models.Payment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.CreatedAt = time.Now()
	r.rows[p.PaymentID] = &cp
	return nil
}

func (r *memPaymentRepo) FindByID(_ context.Context, id int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) FindByGatewayOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.GatewayOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPaymentRepo) FindByStudent(_ context.Context, studentID int64) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.rows {
		if p.StudentID == studentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) FindAll(_ context.Context, _, _ int, _ string) ([]models.Payment, int64, error) {
	return nil, int64(len(r.rows)), nil
}

func (r *memPaymentRepo) FindStalePending(_ context.Context, before time.Time, _ int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.rows {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) MarkPaid(_ context.Context, p *models.Payment, gatewayPaymentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[p.PaymentID]
	if row == nil || row.Status != models.PaymentStatusPending {
		return false, nil
	}
	row.Status = models.PaymentStatusPaid
	row.GatewayPaymentID = &gatewayPaymentID
	row.PaidAt = &at
	r.enrolled[row.StudentID] = row.PlanID
	return true, nil
}

func (r *memPaymentRepo) MarkFailed(_ context.Context, id int64, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	if row == nil || row.Status != models.PaymentStatusPending {
		return false, nil
	}
	row.Status = models.PaymentStatusFailed
	row.FailureReason = reason
	row.FailedAt = &at
	return true, nil
}

func (r *memPaymentRepo) RecordAttemptFailure(_ context.Context, id int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	if row == nil || row.Status != models.PaymentStatusPending {
		return false, nil
	}
	row.FailureReason = reason
	return true, nil
}

func (r *memPaymentRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memPaymentRepo) status(id int64) models.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Status
}

func (r *memPaymentRepo) age(id int64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].CreatedAt = time.Now().Add(-d)
}

// ---- catalog repository ----

type stubCatalogRepo struct {
	students map[int64]*models.Student
	plans    map[int64]*models.PricingPlan
}

func newStubCatalog() *stubCatalogRepo {
	return &stubCatalogRepo{
		students: map[int64]*models.Student{
			1: {StudentID: 1, Name: "Asha", ParentID: "parent-1"},
			2: {StudentID: 2, Name: "Ravi", ParentID: "parent-2"},
		},
		plans: map[int64]*models.PricingPlan{
			2: {PlanID: 2, Name: "Standard", MonthlyPrice: 399},
		},
	}
}

func (c *stubCatalogRepo) FindStudent(_ context.Context, id int64) (*models.Student, error) {
	if s, ok := c.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (c *stubCatalogRepo) CreateStudent(_ context.Context, s *models.Student) error {
	s.StudentID = int64(len(c.students) + 1)
	c.students[s.StudentID] = s
	return nil
}
func (c *stubCatalogRepo) FindPlan(_ context.Context, id int64) (*models.PricingPlan, error) {
	if p, ok := c.plans[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (c *stubCatalogRepo) ListPlans(_ context.Context) ([]models.PricingPlan, error) {
	var out []models.PricingPlan
	for _, p := range c.plans {
		out = append(out, *p)
	}
	return out, nil
}
func (c *stubCatalogRepo) CreatePlan(_ context.Context, p *models.PricingPlan) error {
	p.PlanID = int64(len(c.plans) + 10)
	c.plans[p.PlanID] = p
	return nil
}
func (c *stubCatalogRepo) UpdatePlan(_ context.Context, p *models.PricingPlan) error {
	c.plans[p.PlanID] = p
	return nil
}
func (c *stubCatalogRepo) DeletePlan(_ context.Context, id int64) error {
	if _, ok := c.plans[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(c.plans, id)
	return nil
}

// ---- gateway ----

type fakeGateway struct {
	orderID    string
	orderErr   error
	gotAmount  int64
	payment    *gateway.PaymentInfo
	fetchErr   error
	sigErr     error
	webhook    *gateway.WebhookEvent
	webhookErr error
}

func (g *fakeGateway) Name() string  { return gateway.RazorpayName }
func (g *fakeGateway) KeyID() string { return "rzp_test_key" }
func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*gateway.Order, error) {
	g.gotAmount = amount
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	return &gateway.Order{ID: g.orderID, Amount: amount, Currency: currency, Receipt: receipt}, nil
}
func (g *fakeGateway) FetchPayment(_ context.Context, _ string) (*gateway.PaymentInfo, error) {
	return g.payment, g.fetchErr
}
func (g *fakeGateway) VerifyPaymentSignature(_, _, _ string) error { return g.sigErr }
func (g *fakeGateway) ParseWebhook(_ []byte, _ http.Header) (*gateway.WebhookEvent, error) {
	return g.webhook, g.webhookErr
}

// ---- publisher ----

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, event models.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func eventOfType(t string) interface{} {
	return mock.MatchedBy(func(e models.PaymentEvent) bool { return e.Type == t })
}

// ---- helpers ----

type fixture struct {
	svc       services.PaymentService
	payments  *memPaymentRepo
	catalog   *stubCatalogRepo
	gw        *fakeGateway
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		payments:  newMemPaymentRepo(),
		catalog:   newStubCatalog(),
		gw:        &fakeGateway{orderID: "order_abc123"},
		publisher: &mockPublisher{},
	}
	f.svc = services.NewPaymentService(f.payments, f.catalog, f.gw, f.publisher, nil, "INR", zap.NewNop())
	return f
}

var (
	admin    = &auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
	student1 = &auth.Principal{UserID: "user-1", Role: auth.RoleStudent, StudentID: 1}
	parent1  = &auth.Principal{UserID: "parent-1", Role: auth.RoleParent}
	parent2  = &auth.Principal{UserID: "parent-2", Role: auth.RoleParent}
	teacher  = &auth.Principal{UserID: "teacher-1", Role: auth.RoleTeacher}
)

func (f *fixture) createOrder(t *testing.T) *models.OrderResponse {
	t.Helper()
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentOrderCreated)).Return(nil).Once()
	resp, serr := f.svc.CreateOrder(context.Background(), student1, &models.CreateOrderRequest{StudentID: 1, PlanID: 2})
	require.Nil(t, serr)
	return resp
}

// ---- CreateOrder ----

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t)

	resp := f.createOrder(t)

	assert.Equal(t, "order_abc123", resp.OrderID)
	assert.Equal(t, int64(399), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "Standard", resp.PlanName)
	assert.Equal(t, "rzp_test_key", resp.KeyID)
	assert.Equal(t, int64(39900), f.gw.gotAmount)

	stored, err := f.payments.FindByID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, "order_abc123", stored.GatewayOrderID)
	assert.Equal(t, int64(39900), stored.Amount)
	f.publisher.AssertExpectations(t)
}

func TestCreateOrder_GatewayFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.gw.orderErr = errors.New("gateway down")

	resp, serr := f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 1, PlanID: 2})

	assert.Nil(t, resp)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Empty(t, f.payments.rows)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCreateOrder_EmptyOrderIDRejected(t *testing.T) {
	f := newFixture(t)
	f.gw.orderID = ""

	_, serr := f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 1, PlanID: 2})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Empty(t, f.payments.rows)
}

func TestCreateOrder_UnknownPlanOrStudent(t *testing.T) {
	f := newFixture(t)

	_, serr := f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 1, PlanID: 99})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)

	_, serr = f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 99, PlanID: 2})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}

func TestCreateOrder_Access(t *testing.T) {
	cases := []struct {
		name   string
		caller *auth.Principal
		want   int
	}{
		{"own parent", parent1, 0},
		{"other parent", parent2, http.StatusForbidden},
		{"other student", &auth.Principal{UserID: "u2", Role: auth.RoleStudent, StudentID: 2}, http.StatusForbidden},
		{"teacher", teacher, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

			_, serr := f.svc.CreateOrder(context.Background(), tc.caller, &models.CreateOrderRequest{StudentID: 1, PlanID: 2})
			if tc.want == 0 {
				assert.Nil(t, serr)
				return
			}
			require.NotNil(t, serr)
			assert.Equal(t, tc.want, serr.StatusCode)
		})
	}
}

func TestCreateOrder_PriceOverflow(t *testing.T) {
	f := newFixture(t)
	f.catalog.plans[3] = &models.PricingPlan{PlanID: 3, Name: "Huge", MonthlyPrice: 1 << 62}

	_, serr := f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 1, PlanID: 3})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusUnprocessableEntity, serr.StatusCode)
	assert.Zero(t, f.gw.gotAmount)
}

// ---- ConfirmPayment ----

func TestConfirmPayment_Success(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_xyz789", OrderID: "order_abc123", State: gateway.StateCaptured, Amount: 39900}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()

	p, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{
		PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789",
	})

	require.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Equal(t, "pay_xyz789", *p.GatewayPaymentID)
	assert.Equal(t, models.PaymentStatusPaid, f.payments.status(order.PaymentID))
	assert.Equal(t, int64(2), f.payments.enrolled[1])
	f.publisher.AssertExpectations(t)
}

func TestConfirmPayment_IdempotentWhenPaid(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_xyz789", OrderID: "order_abc123", State: gateway.StateCaptured}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()
	req := &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"}

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, req)
	require.Nil(t, serr)
	p, serr := f.svc.ConfirmPayment(context.Background(), student1, req)
	require.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	_, serr = f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_other"})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	f.publisher.AssertExpectations(t)
}

func TestConfirmPayment_NotCapturedStaysPending(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_xyz789", OrderID: "order_abc123", State: gateway.StatePending}

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(order.PaymentID))
}

func TestConfirmPayment_DeclinedAttemptCanBeRetried(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_first", OrderID: "order_abc123", State: gateway.StateFailed, Reason: "Card declined"}

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_first"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusPaymentRequired, serr.StatusCode)
	stored, _ := f.payments.FindByID(context.Background(), order.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, "Card declined", stored.FailureReason)

	// the payer retries on the same order with another card
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_second", OrderID: "order_abc123", State: gateway.StateCaptured}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()

	p, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_second"})
	require.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Equal(t, "pay_second", *p.GatewayPaymentID)
	f.publisher.AssertExpectations(t)
}

func TestConfirmPayment_CanceledOrderMarksFailed(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pi_3Pabc", OrderID: "order_abc123", State: gateway.StateCanceled}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentFailed)).Return(nil).Once()

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pi_3Pabc"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.status(order.PaymentID))

	// Failed is terminal.
	f.gw.payment.State = gateway.StateCaptured
	_, serr = f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pi_3Pabc"})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.status(order.PaymentID))
	f.publisher.AssertExpectations(t)
}

func TestConfirmPayment_PaymentForAnotherOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_xyz789", OrderID: "order_other", State: gateway.StateCaptured}

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(order.PaymentID))
}

func TestConfirmPayment_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.payment = &gateway.PaymentInfo{ID: "pay_xyz789", OrderID: "order_abc123", State: gateway.StateCaptured, Amount: 100}

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"})

	require.NotNil(t, serr)
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(order.PaymentID))
}

func TestConfirmPayment_BadSignature(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.sigErr = gateway.ErrInvalidSignature

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{
		PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789", Signature: "forged",
	})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(order.PaymentID))
}

func TestConfirmPayment_GatewayUnreachable(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.fetchErr = context.DeadlineExceeded

	_, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(order.PaymentID))
}

func TestConfirmPayment_OtherParentForbidden(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	_, serr := f.svc.ConfirmPayment(context.Background(), parent2, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_xyz789"})

	require.NotNil(t, serr)
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)
}

// ---- webhooks ----

func TestHandleWebhook_CapturedMarksPaid(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookCaptured, Type: "payment.captured", OrderID: "order_abc123", PaymentID: "pay_xyz789"}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()

	serr := f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, []byte(`{}`), http.Header{})

	assert.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, f.payments.status(order.PaymentID))
	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_FailedAttemptThenCapturedRetryConfirms(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookAttemptFailed, Type: "payment.failed", OrderID: "order_abc123", PaymentID: "pay_first", Reason: "Card declined"}

	require.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, []byte(`{}`), http.Header{}))

	stored, _ := f.payments.FindByID(context.Background(), order.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, "Card declined", stored.FailureReason)

	f.gw.payment = &gateway.PaymentInfo{ID: "pay_second", OrderID: "order_abc123", State: gateway.StateCaptured}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()

	p, serr := f.svc.ConfirmPayment(context.Background(), student1, &models.ConfirmPaymentRequest{PaymentID: order.PaymentID, GatewayPaymentID: "pay_second"})
	require.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	// the capture webhook for the retry arrives afterwards
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookCaptured, Type: "payment.captured", OrderID: "order_abc123", PaymentID: "pay_second"}
	assert.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, []byte(`{}`), http.Header{}))
	assert.Equal(t, models.PaymentStatusPaid, f.payments.status(order.PaymentID))
	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_OrderClosedMarksFailed(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookOrderClosed, Type: "payment_intent.canceled", OrderID: "order_abc123", Reason: "abandoned"}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentFailed)).Return(nil).Once()

	serr := f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, []byte(`{}`), http.Header{})

	assert.Nil(t, serr)
	stored, _ := f.payments.FindByID(context.Background(), order.PaymentID)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "abandoned", stored.FailureReason)
	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_CaptureOnFailedOrderIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookOrderClosed, OrderID: "order_abc123"}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentFailed)).Return(nil).Once()
	require.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{}))

	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookCaptured, OrderID: "order_abc123", PaymentID: "pay_late"}
	assert.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{}))
	assert.Equal(t, models.PaymentStatusFailed, f.payments.status(order.PaymentID))
	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_SettledOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookCaptured, OrderID: "order_abc123", PaymentID: "pay_xyz789"}
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()
	require.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{}))

	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookOrderClosed, OrderID: "order_abc123"}
	assert.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{}))
	assert.Equal(t, models.PaymentStatusPaid, f.payments.status(order.PaymentID))
	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := newFixture(t)

	f.gw.webhookErr = gateway.ErrInvalidSignature
	serr := f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)

	serr = f.svc.HandleWebhook(context.Background(), gateway.StripeName, nil, http.Header{})
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}

func TestHandleWebhook_UnknownOrderAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.gw.webhook = &gateway.WebhookEvent{Kind: gateway.WebhookCaptured, OrderID: "order_missing"}

	assert.Nil(t, f.svc.HandleWebhook(context.Background(), gateway.RazorpayName, nil, http.Header{}))
}

// ---- stale orders ----

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	old := f.createOrder(t)
	f.payments.age(old.PaymentID, time.Hour)
	f.gw.orderID = "order_fresh"
	fresh := f.createOrder(t)
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentFailed)).Return(nil).Once()

	n, err := f.svc.ExpireStale(context.Background(), 30*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.status(old.PaymentID))
	assert.Equal(t, models.PaymentStatusPending, f.payments.status(fresh.PaymentID))
	f.publisher.AssertExpectations(t)
}

// ---- admin CRUD ----

func TestRecordPayment_DefaultsToPaid(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("Publish", mock.Anything, eventOfType(models.EventPaymentSucceeded)).Return(nil).Once()

	p, serr := f.svc.RecordPayment(context.Background(), &models.CreatePaymentRequest{StudentID: 1, PlanID: 2, Amount: 39900, Reference: "cash-001"})

	require.Nil(t, serr)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)
	assert.Equal(t, "cash-001", p.GatewayOrderID)
	assert.NotNil(t, p.PaidAt)
}

func TestListByStudentAndDelete(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	list, serr := f.svc.ListByStudent(context.Background(), parent1, 1)
	require.Nil(t, serr)
	assert.Len(t, list, 1)

	_, serr = f.svc.ListByStudent(context.Background(), parent2, 1)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)

	assert.Nil(t, f.svc.DeletePayment(context.Background(), order.PaymentID))
	serr = f.svc.DeletePayment(context.Background(), order.PaymentID)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("sns down"))

	resp, serr := f.svc.CreateOrder(context.Background(), admin, &models.CreateOrderRequest{StudentID: 1, PlanID: 2})

	require.Nil(t, serr)
	assert.Equal(t, "order_abc123", resp.OrderID)
}
