package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	"github.com/caffeinepub/openframe-education/backend/services/common/validation"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- concrete mock implementing services.PaymentService ----

type concreteMockSvc struct {
	order      *models.OrderResponse
	orderErr   *services.ServiceError
	gotOrder   *models.CreateOrderRequest
	gotCaller  *auth.Principal
	confirmed  *models.Payment
	confirmErr *services.ServiceError
	webhookErr *services.ServiceError
	gotGateway string
	gotPayload []byte
	payments   []models.Payment
	listErr    *services.ServiceError
	deleteErr  *services.ServiceError
}

func (m *concreteMockSvc) CreateOrder(_ context.Context, caller *auth.Principal, req *models.CreateOrderRequest) (*models.OrderResponse, *services.ServiceError) {
	m.gotCaller, m.gotOrder = caller, req
	return m.order, m.orderErr
}
func (m *concreteMockSvc) ConfirmPayment(_ context.Context, caller *auth.Principal, _ *models.ConfirmPaymentRequest) (*models.Payment, *services.ServiceError) {
	m.gotCaller = caller
	return m.confirmed, m.confirmErr
}
func (m *concreteMockSvc) HandleWebhook(_ context.Context, gatewayName string, payload []byte, _ http.Header) *services.ServiceError {
	m.gotGateway, m.gotPayload = gatewayName, payload
	return m.webhookErr
}
func (m *concreteMockSvc) ExpireStale(context.Context, time.Duration) (int, error) { return 0, nil }
func (m *concreteMockSvc) RecordPayment(_ context.Context, req *models.CreatePaymentRequest) (*models.Payment, *services.ServiceError) {
	return &models.Payment{StudentID: req.StudentID, Status: models.PaymentStatusPaid}, nil
}
func (m *concreteMockSvc) GetPayment(_ context.Context, _ *auth.Principal, id int64) (*models.Payment, *services.ServiceError) {
	for i := range m.payments {
		if m.payments[i].PaymentID == id {
			return &m.payments[i], nil
		}
	}
	return nil, &services.ServiceError{StatusCode: http.StatusNotFound, Message: "Payment not found"}
}
func (m *concreteMockSvc) ListByStudent(_ context.Context, _ *auth.Principal, _ int64) ([]models.Payment, *services.ServiceError) {
	return m.payments, m.listErr
}
func (m *concreteMockSvc) ListAll(_ context.Context, page, limit int, _ string) ([]models.Payment, int64, *services.ServiceError) {
	return m.payments, int64(len(m.payments)), nil
}
func (m *concreteMockSvc) DeletePayment(context.Context, int64) *services.ServiceError {
	return m.deleteErr
}

// ---- helpers ----

var parent = &auth.Principal{UserID: "parent-1", Role: auth.RoleParent}

func withPrincipal(p *auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, p)
		c.Next()
	}
}

func setupRouter(svc services.PaymentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validation.MustRegister()
	r := gin.New()
	pc := controllers.NewPaymentController(svc)

	payments := r.Group("/payments", withPrincipal(parent))
	payments.POST("/orders", pc.CreateOrder)
	payments.POST("/confirm", pc.ConfirmPayment)
	payments.GET("/student/:student_id", pc.GetStudentPayments)
	payments.GET("/:payment_id", pc.GetPayment)
	payments.GET("", pc.ListPayments)
	payments.DELETE("/:payment_id", pc.DeletePayment)
	r.POST("/webhooks/:gateway", pc.Webhook)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- tests ----

func TestCreateOrder_Success(t *testing.T) {
	svc := &concreteMockSvc{order: &models.OrderResponse{OrderID: "order_abc123", PaymentID: 1, Amount: 399, Currency: "INR"}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/payments/orders", gin.H{"student_id": 1, "plan_id": 2})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp models.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order_abc123", resp.OrderID)
	assert.Equal(t, int64(2), svc.gotOrder.PlanID)
	assert.Equal(t, parent, svc.gotCaller)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	r := setupRouter(&concreteMockSvc{})

	w := doJSON(r, http.MethodPost, "/payments/orders", gin.H{"student_id": 1})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_GatewayError(t *testing.T) {
	svc := &concreteMockSvc{orderErr: &services.ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to create order with payment gateway"}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/payments/orders", gin.H{"student_id": 1, "plan_id": 2})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "payment gateway")
}

func TestConfirmPayment_Confirmed(t *testing.T) {
	gp := "pay_xyz789"
	svc := &concreteMockSvc{confirmed: &models.Payment{PaymentID: 1, Status: models.PaymentStatusPaid, GatewayPaymentID: &gp}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/payments/confirm", gin.H{"payment_id": 1, "gateway_payment_id": "pay_xyz789"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Confirmed bool           `json:"confirmed"`
		Payment   models.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Confirmed)
	assert.Equal(t, models.PaymentStatusPaid, resp.Payment.Status)
}

func TestConfirmPayment_RejectedSaysNotConfirmed(t *testing.T) {
	svc := &concreteMockSvc{confirmErr: &services.ServiceError{StatusCode: http.StatusConflict, Message: "Payment not yet captured"}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/payments/confirm", gin.H{"payment_id": 1, "gateway_payment_id": "pay_xyz789"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"confirmed":false,"error":"Payment not yet captured"}`, w.Body.String())
}

func TestGetStudentPayments_EmptyList(t *testing.T) {
	r := setupRouter(&concreteMockSvc{})

	w := doJSON(r, http.MethodGet, "/payments/student/1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"payments":[]}`, w.Body.String())
}

func TestGetPayment_BadID(t *testing.T) {
	r := setupRouter(&concreteMockSvc{})

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/payments/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/payments/5", nil).Code)
}

func TestListPayments_Pagination(t *testing.T) {
	svc := &concreteMockSvc{payments: []models.Payment{{PaymentID: 1}, {PaymentID: 2}}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodGet, "/payments?page=2&limit=500", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["page"])
	assert.Equal(t, float64(100), resp["limit"])
	assert.Equal(t, float64(2), resp["total"])
}

func TestDeletePayment(t *testing.T) {
	r := setupRouter(&concreteMockSvc{})
	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/payments/7", nil).Code)

	r = setupRouter(&concreteMockSvc{deleteErr: &services.ServiceError{StatusCode: http.StatusNotFound, Message: "Payment not found"}})
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodDelete, "/payments/7", nil).Code)
}

func TestWebhook_PassesRawBody(t *testing.T) {
	svc := &concreteMockSvc{}
	r := setupRouter(svc)
	raw := `{"event":"payment.captured"}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewBufferString(raw))
	req.Header.Set("X-Razorpay-Signature", "sig")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "razorpay", svc.gotGateway)
	assert.Equal(t, raw, string(svc.gotPayload))
}

func TestWebhook_Rejected(t *testing.T) {
	svc := &concreteMockSvc{webhookErr: &services.ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid webhook"}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/webhooks/razorpay", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
