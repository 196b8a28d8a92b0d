package repository

import (
	"context"

	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"

	"gorm.io/gorm"
)

// CatalogRepository reads and maintains students and pricing plans.
type CatalogRepository interface {
	FindStudent(ctx context.Context, studentID int64) (*models.Student, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	FindPlan(ctx context.Context, planID int64) (*models.PricingPlan, error)
	ListPlans(ctx context.Context) ([]models.PricingPlan, error)
	CreatePlan(ctx context.Context, plan *models.PricingPlan) error
	UpdatePlan(ctx context.Context, plan *models.PricingPlan) error
	DeletePlan(ctx context.Context, planID int64) error
}

type gormCatalogRepo struct {
	db *gorm.DB
}

func NewGormCatalogRepo(db *gorm.DB) CatalogRepository {
	return &gormCatalogRepo{db: db}
}

func (r *gormCatalogRepo) FindStudent(ctx context.Context, studentID int64) (*models.Student, error) {
	var s models.Student
	if err := r.db.WithContext(ctx).First(&s, "student_id = ?", studentID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormCatalogRepo) CreateStudent(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *gormCatalogRepo) FindPlan(ctx context.Context, planID int64) (*models.PricingPlan, error) {
	var p models.PricingPlan
	if err := r.db.WithContext(ctx).First(&p, "plan_id = ?", planID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormCatalogRepo) ListPlans(ctx context.Context) ([]models.PricingPlan, error) {
	var plans []models.PricingPlan
	err := r.db.WithContext(ctx).Order("monthly_price ASC").Find(&plans).Error
	return plans, err
}

func (r *gormCatalogRepo) CreatePlan(ctx context.Context, plan *models.PricingPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *gormCatalogRepo) UpdatePlan(ctx context.Context, plan *models.PricingPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *gormCatalogRepo) DeletePlan(ctx context.Context, planID int64) error {
	res := r.db.WithContext(ctx).Delete(&models.PricingPlan{}, "plan_id = ?", planID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
