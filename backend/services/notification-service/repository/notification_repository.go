package repository

import (
	"context"
	"errors"

	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	SaveLog(ctx context.Context, log *models.NotificationLog) error
	// Delivered reports whether a receipt for this payment event already went
	// out on channel. SQS delivers at least once.
	Delivered(ctx context.Context, paymentID int64, eventType, channel string) (bool, error)
	GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error)

	UpsertContact(ctx context.Context, c *models.Contact) error
	// GetContact returns nil, nil when the student has no contact on file.
	GetContact(ctx context.Context, studentID int64) (*models.Contact, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) SaveLog(ctx context.Context, log *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *notificationRepository) Delivered(ctx context.Context, paymentID int64, eventType, channel string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.NotificationLog{}).
		Where("payment_id = ? AND type = ? AND channel = ? AND status = ?", paymentID, eventType, channel, models.StatusSent).
		Count(&n).Error
	return n > 0, err
}

func (r *notificationRepository) GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error) {
	var logs []models.NotificationLog
	var total int64

	if filter.PageSize < 1 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	query := r.db.WithContext(ctx).Model(&models.NotificationLog{})

	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&logs).Error

	return logs, total, err
}

func (r *notificationRepository) UpsertContact(ctx context.Context, c *models.Contact) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "updated_at"}),
	}).Create(c).Error
}

func (r *notificationRepository) GetContact(ctx context.Context, studentID int64) (*models.Contact, error) {
	var c models.Contact
	err := r.db.WithContext(ctx).First(&c, "student_id = ?", studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
