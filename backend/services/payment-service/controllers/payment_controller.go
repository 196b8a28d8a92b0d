package controllers

import (
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/payment-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/services"

	"github.com/gin-gonic/gin"
)

// PaymentController handles HTTP requests for payment orders.
type PaymentController struct {
	paymentService services.PaymentService
}

func NewPaymentController(svc services.PaymentService) *PaymentController {
	return &PaymentController{paymentService: svc}
}

// CreateOrder handles POST /payments/orders
func (pc *PaymentController) CreateOrder(ctx *gin.Context) {
	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, svcErr := pc.paymentService.CreateOrder(ctx.Request.Context(), middleware.GetPrincipal(ctx), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusCreated, order)
}

// ConfirmPayment handles POST /payments/confirm. The body always carries
// "confirmed" so callers never have to infer success from the status alone.
func (pc *PaymentController) ConfirmPayment(ctx *gin.Context) {
	var req models.ConfirmPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"confirmed": false, "error": "Invalid request", "details": err.Error()})
		return
	}

	payment, svcErr := pc.paymentService.ConfirmPayment(ctx.Request.Context(), middleware.GetPrincipal(ctx), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"confirmed": false, "error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"confirmed": true, "payment": payment})
}

// GetPayment handles GET /payments/:payment_id
func (pc *PaymentController) GetPayment(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "payment_id")
	if !ok {
		return
	}

	payment, svcErr := pc.paymentService.GetPayment(ctx.Request.Context(), middleware.GetPrincipal(ctx), id)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, payment)
}

// GetStudentPayments handles GET /payments/student/:student_id
func (pc *PaymentController) GetStudentPayments(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "student_id")
	if !ok {
		return
	}

	payments, svcErr := pc.paymentService.ListByStudent(ctx.Request.Context(), middleware.GetPrincipal(ctx), id)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}

	ctx.JSON(http.StatusOK, gin.H{"payments": payments})
}

// CreatePayment handles POST /payments (admin)
func (pc *PaymentController) CreatePayment(ctx *gin.Context) {
	var req models.CreatePaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	payment, svcErr := pc.paymentService.RecordPayment(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusCreated, payment)
}

// ListPayments handles GET /payments (admin)
func (pc *PaymentController) ListPayments(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	status := ctx.Query("status")

	payments, total, svcErr := pc.paymentService.ListAll(ctx.Request.Context(), page, limit, status)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// DeletePayment handles DELETE /payments/:payment_id (admin)
func (pc *PaymentController) DeletePayment(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "payment_id")
	if !ok {
		return
	}

	if svcErr := pc.paymentService.DeletePayment(ctx.Request.Context(), id); svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.Status(http.StatusNoContent)
}
