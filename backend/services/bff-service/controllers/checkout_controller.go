package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/bff-service/checkout"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/common/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckoutFlow is satisfied by *checkout.Flow.
type CheckoutFlow interface {
	Start(ctx context.Context, s checkout.Session, studentID, planID int64) (*checkout.Checkout, error)
	Finish(ctx context.Context, s checkout.Session, orderID string, cb checkout.Callback) (*checkout.Result, error)
}

// ScriptSource is satisfied by *checkout.ScriptLoader.
type ScriptSource interface {
	EnsureReady(ctx context.Context) bool
	Script() ([]byte, bool)
	State() checkout.LoaderState
}

type CheckoutController struct {
	flow   CheckoutFlow
	script ScriptSource
	logger *zap.Logger
}

func NewCheckoutController(flow CheckoutFlow, script ScriptSource, logger *zap.Logger) *CheckoutController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutController{flow: flow, script: script, logger: logger}
}

type startCheckoutRequest struct {
	StudentID int64 `json:"student_id" binding:"required,min=1"`
	PlanID    int64 `json:"plan_id" binding:"required,min=1"`
}

// Start creates the payment order and returns the widget configuration.
func (cc *CheckoutController) Start(c *gin.Context) {
	var req startCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	sess, ok := session(c)
	if !ok {
		return
	}

	co, err := cc.flow.Start(c.Request.Context(), sess, req.StudentID, req.PlanID)
	if err != nil {
		cc.checkoutError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":   co.Order.OrderID,
		"payment_id": co.Order.PaymentID,
		"plan_name":  co.Order.PlanName,
		"gateway":    co.Order.Gateway,
		"options":    co.Options,
	})
}

// Complete is the widget's success callback. The payment is only reported as
// confirmed once the payment-service accepts it.
func (cc *CheckoutController) Complete(c *gin.Context) {
	var resp checkout.GatewayResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	sess, ok := session(c)
	if !ok {
		return
	}

	res, err := cc.flow.Finish(c.Request.Context(), sess, c.Param("order_id"), checkout.Callback{Response: resp})
	if err != nil {
		cc.checkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"confirmed":          res.Confirmed,
		"gateway_payment_id": res.Outcome.PaymentID,
	})
}

// Dismiss records that the payer closed the widget without paying.
func (cc *CheckoutController) Dismiss(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if _, err := cc.flow.Finish(c.Request.Context(), sess, c.Param("order_id"), checkout.Callback{Dismissed: true}); err != nil {
		cc.checkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}

// Script serves the gateway checkout script, loading it on first use.
func (cc *CheckoutController) Script(c *gin.Context) {
	if !cc.script.EnsureReady(c.Request.Context()) {
		cc.checkoutError(c, checkout.ErrScriptLoadFailed)
		return
	}
	body, ok := cc.script.Script()
	if !ok {
		cc.checkoutError(c, checkout.ErrScriptLoadFailed)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", body)
}

func (cc *CheckoutController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"script": cc.script.State().String()})
}

func session(c *gin.Context) (checkout.Session, bool) {
	p, token, err := middleware.GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return checkout.Session{}, false
	}
	return checkout.Session{UserID: p.UserID, Token: token}, true
}

// checkoutError renders a checkout failure. Each failure kind has its own
// status and code so the web app can tell them apart.
func (cc *CheckoutController) checkoutError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context(), cc.logger)

	switch {
	case errors.Is(err, checkout.ErrScriptLoadFailed):
		jsonError(c, http.StatusServiceUnavailable, "script_load_failed", checkout.ErrScriptLoadFailed.Error(), nil)
	case errors.Is(err, checkout.ErrRemoteUnavailable):
		jsonError(c, http.StatusUnauthorized, "remote_unavailable", checkout.ErrRemoteUnavailable.Error(), nil)
	case errors.Is(err, checkout.ErrOrderCreationFailed):
		log.Warn("Checkout order creation failed", zap.Error(err))
		jsonError(c, http.StatusBadGateway, "order_creation_failed", checkout.ErrOrderCreationFailed.Error(), nil)
	case errors.Is(err, checkout.ErrConfirmationFailed):
		log.Error("Checkout confirmation failed", zap.String("order_id", c.Param("order_id")), zap.Error(err))
		jsonError(c, http.StatusBadGateway, "confirmation_failed", checkout.ErrConfirmationFailed.Error(), gin.H{"confirmed": false})
	case errors.Is(err, checkout.ErrUnknownCheckout):
		jsonError(c, http.StatusNotFound, "unknown_checkout", checkout.ErrUnknownCheckout.Error(), nil)
	case errors.Is(err, checkout.ErrAttemptResolved), errors.Is(err, checkout.ErrAttemptInProgress):
		jsonError(c, http.StatusConflict, "attempt_resolved", err.Error(), nil)
	case errors.Is(err, checkout.ErrInvalidResponse), errors.Is(err, checkout.ErrInvalidAmount):
		jsonError(c, http.StatusBadRequest, "invalid_checkout", err.Error(), nil)
	default:
		_ = c.Error(err)
	}
}

func jsonError(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{"error": message, "code": code}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
