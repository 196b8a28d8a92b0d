package controllers

import (
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/payment-service/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/services"

	"github.com/gin-gonic/gin"
)

// CatalogController serves pricing plans and students.
type CatalogController struct {
	catalogService services.CatalogService
}

func NewCatalogController(svc services.CatalogService) *CatalogController {
	return &CatalogController{catalogService: svc}
}

func (cc *CatalogController) ListPlans(ctx *gin.Context) {
	plans, svcErr := cc.catalogService.ListPlans(ctx.Request.Context())
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	if plans == nil {
		plans = []models.PricingPlan{}
	}
	ctx.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (cc *CatalogController) GetPlan(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "plan_id")
	if !ok {
		return
	}
	plan, svcErr := cc.catalogService.GetPlan(ctx.Request.Context(), id)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, plan)
}

func (cc *CatalogController) CreatePlan(ctx *gin.Context) {
	var req models.PlanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	plan, svcErr := cc.catalogService.CreatePlan(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusCreated, plan)
}

func (cc *CatalogController) UpdatePlan(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "plan_id")
	if !ok {
		return
	}
	var req models.PlanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	plan, svcErr := cc.catalogService.UpdatePlan(ctx.Request.Context(), id, &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, plan)
}

func (cc *CatalogController) DeletePlan(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "plan_id")
	if !ok {
		return
	}
	if svcErr := cc.catalogService.DeletePlan(ctx.Request.Context(), id); svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (cc *CatalogController) GetStudent(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "student_id")
	if !ok {
		return
	}
	student, svcErr := cc.catalogService.GetStudent(ctx.Request.Context(), middleware.GetPrincipal(ctx), id)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, student)
}

func (cc *CatalogController) CreateStudent(ctx *gin.Context) {
	var req models.CreateStudentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	student, svcErr := cc.catalogService.CreateStudent(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusCreated, student)
}
