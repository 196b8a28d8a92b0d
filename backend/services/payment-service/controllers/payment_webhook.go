package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

// Webhook handles POST /webhooks/:gateway. The raw body is passed through
// untouched because signatures are computed over it.
func (pc *PaymentController) Webhook(ctx *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if svcErr := pc.paymentService.HandleWebhook(ctx.Request.Context(), ctx.Param("gateway"), payload, ctx.Request.Header); svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "received"})
}
