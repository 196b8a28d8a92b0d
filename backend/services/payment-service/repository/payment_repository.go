package repository

import (
	"context"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"

	"gorm.io/gorm"
)

// PaymentRepository defines data-access operations for payment orders.
// Status changes only ever move a Pending row to Paid or Failed; the Mark*
// methods report false when the row was no longer Pending.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, paymentID int64) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindByStudent(ctx context.Context, studentID int64) ([]models.Payment, error)
	FindAll(ctx context.Context, page, limit int, status string) ([]models.Payment, int64, error)
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
	MarkPaid(ctx context.Context, payment *models.Payment, gatewayPaymentID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, paymentID int64, reason string, at time.Time) (bool, error)
	RecordAttemptFailure(ctx context.Context, paymentID int64, reason string) (bool, error)
	Delete(ctx context.Context, paymentID int64) error
}

type gormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepo{db: db}
}

func (r *gormPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormPaymentRepo) FindByID(ctx context.Context, paymentID int64) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "payment_id = ?", paymentID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormPaymentRepo) FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormPaymentRepo) FindByStudent(ctx context.Context, studentID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (r *gormPaymentRepo) FindAll(ctx context.Context, page, limit int, status string) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *gormPaymentRepo) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// MarkPaid moves a Pending payment to Paid and enrols the student in the
// paid plan, in one transaction.
func (r *gormPaymentRepo) MarkPaid(ctx context.Context, payment *models.Payment, gatewayPaymentID string, at time.Time) (bool, error) {
	updated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("payment_id = ? AND status = ?", payment.PaymentID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":             models.PaymentStatusPaid,
				"gateway_payment_id": gatewayPaymentID,
				"paid_at":            at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true

		return tx.Model(&models.Student{}).
			Where("student_id = ?", payment.StudentID).
			Updates(map[string]interface{}{
				"enrolled_plan_id": payment.PlanID,
				"is_active":        true,
			}).Error
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// RecordAttemptFailure notes why the last attempt on a Pending payment was
// declined. The payment stays Pending.
func (r *gormPaymentRepo) RecordAttemptFailure(ctx context.Context, paymentID int64, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Update("failure_reason", reason)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormPaymentRepo) MarkFailed(ctx context.Context, paymentID int64, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusFailed,
			"failure_reason": reason,
			"failed_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormPaymentRepo) Delete(ctx context.Context, paymentID int64) error {
	res := r.db.WithContext(ctx).Delete(&models.Payment{}, "payment_id = ?", paymentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
