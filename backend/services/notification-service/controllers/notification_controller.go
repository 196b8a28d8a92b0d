package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/caffeinepub/openframe-education/backend/services/common/logger"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationController struct {
	notificationService services.NotificationService
	logger              *zap.Logger
}

func NewNotificationController(svc services.NotificationService, logger *zap.Logger) *NotificationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationController{notificationService: svc, logger: logger}
}

const (
	maxPageSize     = 100
	defaultPage     = 1
	defaultPageSize = 20
)

func parsePaginationParams(ctx *gin.Context) (int, int) {
	page := defaultPage
	pageSize := defaultPageSize

	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("page_size", "20")); err == nil && l > 0 {
		pageSize = l
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize
}

// optionalID parses an optional positive integer query parameter.
func optionalID(ctx *gin.Context, name string) (int64, bool) {
	v := ctx.Query(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (cc *NotificationController) GetNotificationLogs(ctx *gin.Context) {
	studentID, ok := optionalID(ctx, "student_id")
	if !ok {
		return
	}
	paymentID, ok := optionalID(ctx, "payment_id")
	if !ok {
		return
	}

	page, pageSize := parsePaginationParams(ctx)

	filter := models.NotificationFilter{
		StudentID: studentID,
		PaymentID: paymentID,
		Status:    ctx.Query("status"),
		Channel:   ctx.Query("channel"),
		Page:      page,
		PageSize:  pageSize,
	}

	logs, total, err := cc.notificationService.GetLogs(ctx.Request.Context(), filter)
	if err != nil {
		requestedBy := ""
		if p := middleware.GetPrincipal(ctx); p != nil {
			requestedBy = p.UserID
		}
		logger.FromContext(ctx.Request.Context(), cc.logger).Error("failed to get notification logs",
			zap.Error(err),
			zap.String("requested_by", requestedBy),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	ctx.JSON(http.StatusOK, gin.H{
		"data":        logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}

func (cc *NotificationController) GetContact(ctx *gin.Context) {
	studentID, err := strconv.ParseInt(ctx.Param("student_id"), 10, 64)
	if err != nil || studentID <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
		return
	}
	c, err := cc.notificationService.GetContact(ctx.Request.Context(), studentID)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	if c == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no contact for student"})
		return
	}
	ctx.JSON(http.StatusOK, c)
}

func (cc *NotificationController) PutContact(ctx *gin.Context) {
	studentID, err := strconv.ParseInt(ctx.Param("student_id"), 10, 64)
	if err != nil || studentID <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
		return
	}
	var req models.ContactRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	c, err := cc.notificationService.UpsertContact(ctx.Request.Context(), studentID, &req)
	if errors.Is(err, services.ErrEmptyContact) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, c)
}
