package services

import (
	"context"
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/repository"

	"go.uber.org/zap"
)

// CatalogService serves pricing plans and the student records payments
// are taken for.
type CatalogService interface {
	ListPlans(ctx context.Context) ([]models.PricingPlan, *ServiceError)
	GetPlan(ctx context.Context, planID int64) (*models.PricingPlan, *ServiceError)
	CreatePlan(ctx context.Context, req *models.PlanRequest) (*models.PricingPlan, *ServiceError)
	UpdatePlan(ctx context.Context, planID int64, req *models.PlanRequest) (*models.PricingPlan, *ServiceError)
	DeletePlan(ctx context.Context, planID int64) *ServiceError

	GetStudent(ctx context.Context, caller *auth.Principal, studentID int64) (*models.Student, *ServiceError)
	CreateStudent(ctx context.Context, req *models.CreateStudentRequest) (*models.Student, *ServiceError)
}

type catalogServiceImpl struct {
	repo   repository.CatalogRepository
	logger *zap.Logger
}

func NewCatalogService(repo repository.CatalogRepository, logger *zap.Logger) CatalogService {
	return &catalogServiceImpl{repo: repo, logger: logger}
}

func (s *catalogServiceImpl) ListPlans(ctx context.Context) ([]models.PricingPlan, *ServiceError) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		s.logger.Error("Failed to list plans", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch plans"}
	}
	return plans, nil
}

func (s *catalogServiceImpl) GetPlan(ctx context.Context, planID int64) (*models.PricingPlan, *ServiceError) {
	plan, err := s.repo.FindPlan(ctx, planID)
	if err != nil {
		return nil, notFoundOr(err, "Plan not found", s.logger)
	}
	return plan, nil
}

func (s *catalogServiceImpl) CreatePlan(ctx context.Context, req *models.PlanRequest) (*models.PricingPlan, *ServiceError) {
	if _, ok := toMinorUnits(req.MonthlyPrice); !ok {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Monthly price out of range"}
	}
	plan := &models.PricingPlan{
		Name:         req.Name,
		MonthlyPrice: req.MonthlyPrice,
		Features:     req.Features,
		IsPopular:    req.IsPopular,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		s.logger.Error("Failed to create plan", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create plan"}
	}
	s.logger.Info("Pricing plan created", zap.Int64("plan_id", plan.PlanID), zap.String("name", plan.Name))
	return plan, nil
}

func (s *catalogServiceImpl) UpdatePlan(ctx context.Context, planID int64, req *models.PlanRequest) (*models.PricingPlan, *ServiceError) {
	if _, ok := toMinorUnits(req.MonthlyPrice); !ok {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Monthly price out of range"}
	}
	plan, err := s.repo.FindPlan(ctx, planID)
	if err != nil {
		return nil, notFoundOr(err, "Plan not found", s.logger)
	}

	plan.Name = req.Name
	plan.MonthlyPrice = req.MonthlyPrice
	plan.Features = req.Features
	plan.IsPopular = req.IsPopular
	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		s.logger.Error("Failed to update plan", zap.Int64("plan_id", planID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update plan"}
	}
	return plan, nil
}

func (s *catalogServiceImpl) DeletePlan(ctx context.Context, planID int64) *ServiceError {
	if err := s.repo.DeletePlan(ctx, planID); err != nil {
		return notFoundOr(err, "Plan not found", s.logger)
	}
	return nil
}

// GetStudent returns the student record. Non-admin callers only see
// themselves or their own children.
func (s *catalogServiceImpl) GetStudent(ctx context.Context, caller *auth.Principal, studentID int64) (*models.Student, *ServiceError) {
	student, err := s.repo.FindStudent(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "Student not found", s.logger)
	}
	if serr := checkAccess(caller, student); serr != nil {
		return nil, serr
	}
	return student, nil
}

func (s *catalogServiceImpl) CreateStudent(ctx context.Context, req *models.CreateStudentRequest) (*models.Student, *ServiceError) {
	student := &models.Student{
		Name:       req.Name,
		ClassLevel: req.ClassLevel,
		Syllabus:   req.Syllabus,
		Medium:     req.Medium,
		ParentID:   req.ParentID,
		UserID:     req.UserID,
		ReferredBy: req.ReferredBy,
	}
	if err := s.repo.CreateStudent(ctx, student); err != nil {
		s.logger.Error("Failed to create student", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create student"}
	}
	s.logger.Info("Student created", zap.Int64("student_id", student.StudentID))
	return student, nil
}
