package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/bff-service/clients"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/common/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPaymentsBody = 1 << 20

// PaymentsCache is satisfied by *cache.PaymentsCache.
type PaymentsCache interface {
	Get(ctx context.Context, studentID int64, viewer string) ([]byte, bool, error)
	Generation(ctx context.Context, studentID int64) (int64, error)
	Set(ctx context.Context, studentID int64, viewer string, payments []byte, gen int64) (bool, error)
}

type BFFController struct {
	payments *clients.PaymentsClient
	cache    PaymentsCache
	logger   *zap.Logger
}

func NewBFFController(payments *clients.PaymentsClient, cache PaymentsCache, logger *zap.Logger) *BFFController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BFFController{payments: payments, cache: cache, logger: logger}
}

// StudentPayments serves a student's payment history, from cache when the
// same caller fetched it before.
func (b *BFFController) StudentPayments(c *gin.Context) {
	studentID, ok := parseStudentID(c)
	if !ok {
		return
	}
	p, _, err := middleware.GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	ctx := c.Request.Context()
	log := logger.FromContext(ctx, b.logger)

	if cached, hit, err := b.cache.Get(ctx, studentID, p.UserID); err != nil {
		log.Warn("Payments cache read failed", zap.Int64("student_id", studentID), zap.Error(err))
	} else if hit {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}
	gen, genErr := b.cache.Generation(ctx, studentID)
	if genErr != nil {
		log.Warn("Payments cache generation read failed", zap.Int64("student_id", studentID), zap.Error(genErr))
	}

	resp, err := b.payments.Do(ctx, http.MethodGet, "/payments/student/"+strconv.FormatInt(studentID, 10), nil, forwardHeaders(c), nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	if resp.StatusCode != http.StatusOK {
		if err := clients.CopyResponse(c.Writer, resp); err != nil {
			log.Warn("Failed to relay upstream response", zap.Error(err))
		}
		return
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPaymentsBody))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read upstream response"})
		return
	}
	if genErr == nil {
		if _, err := b.cache.Set(ctx, studentID, p.UserID, body, gen); err != nil {
			log.Warn("Payments cache write failed", zap.Int64("student_id", studentID), zap.Error(err))
		}
	}
	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// StudentOverview loads the student record and their payments in parallel.
func (b *BFFController) StudentOverview(c *gin.Context) {
	studentID, ok := parseStudentID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	headers := forwardHeaders(c)
	id := strconv.FormatInt(studentID, 10)

	type result struct {
		data map[string]interface{}
		err  error
	}

	studentCh := make(chan result, 1)
	paymentsCh := make(chan result, 1)

	fetch := func(path string, out chan<- result) {
		resp, err := b.payments.Do(ctx, http.MethodGet, path, nil, headers, nil)
		if err != nil {
			out <- result{err: err}
			return
		}
		var data map[string]interface{}
		err = clients.DecodeJSON(resp, &data)
		out <- result{data: data, err: err}
	}
	go fetch("/students/"+id, studentCh)
	go fetch("/payments/student/"+id, paymentsCh)

	student := <-studentCh
	payments := <-paymentsCh

	if student.err != nil || payments.err != nil {
		status := http.StatusBadGateway
		if code := upstreamStatus(student.err, payments.err); code != 0 {
			status = code
		}
		c.JSON(status, gin.H{
			"error":    "failed to load student overview",
			"student":  errorString(student.err),
			"payments": errorString(payments.err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student":   student.data,
		"payments":  payments.data["payments"],
		"timestamp": time.Now().UTC(),
	})
}

// Proxy relays a request to the payment-service unchanged.
func (b *BFFController) Proxy(method, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body io.Reader
		if method != http.MethodGet && c.Request.ContentLength != 0 {
			body = c.Request.Body
		}
		resp, err := b.payments.Do(c.Request.Context(), method, path, c.Request.URL.Query(), forwardHeaders(c), body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
			return
		}

		if err := clients.CopyResponse(c.Writer, resp); err != nil {
			logger.FromContext(c.Request.Context(), b.logger).Warn("Failed to relay upstream response", zap.Error(err))
		}
	}
}

func (b *BFFController) PlanByID(c *gin.Context) {
	if _, err := strconv.ParseInt(c.Param("plan_id"), 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan ID"})
		return
	}
	b.Proxy(http.MethodGet, "/plans/"+c.Param("plan_id"))(c)
}

func parseStudentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("student_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid student ID"})
		return 0, false
	}
	return id, true
}

// forwardHeaders keeps only what the payment-service needs from the inbound
// request.
func forwardHeaders(c *gin.Context) http.Header {
	h := http.Header{}
	if token := c.GetString(middleware.TokenKey); token != "" {
		h.Set("Authorization", "Bearer "+token)
	} else if v := c.GetHeader("Authorization"); v != "" {
		h.Set("Authorization", v)
	}
	if ct := c.GetHeader("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	}
	return h
}

// upstreamStatus returns the first client-error status among errs, so a 403
// or 404 from the payment-service is not reported as a gateway failure.
func upstreamStatus(errs ...error) int {
	for _, err := range errs {
		var upErr *clients.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500 {
			return upErr.StatusCode
		}
	}
	return 0
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
