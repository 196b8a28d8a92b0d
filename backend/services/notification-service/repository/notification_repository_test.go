package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestDelivered(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "notification_logs" WHERE payment_id = $1 AND type = $2 AND channel = $3 AND status = $4`)).
		WithArgs(11, models.EventPaymentSucceeded, models.ChannelEmail, models.StatusSent).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.Delivered(context.Background(), 11, models.EventPaymentSucceeded, models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetContact_NotFoundIsNil(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "contacts" WHERE student_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))

	c, err := repo.GetContact(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestGetContact_Found(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "contacts" WHERE student_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "name", "email", "phone", "created_at", "updated_at"}).
			AddRow(1, "Meera", "meera@example.com", "+919800000000", now, now))

	c, err := repo.GetContact(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "meera@example.com", c.Email)
	assert.Equal(t, "+919800000000", c.Phone)
}

func TestGetContact_DBError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "contacts"`)).WillReturnError(errors.New("connection reset"))

	_, err := repo.GetContact(context.Background(), 1)
	assert.Error(t, err)
}

func TestUpsertContact(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "contacts"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertContact(context.Background(), &models.Contact{StudentID: 1, Email: "meera@example.com"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLogs_FiltersAndPaginates(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "notification_logs" WHERE student_id = $1 AND status = $2`)).
		WithArgs(1, models.StatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "notification_logs" WHERE student_id = $1 AND status = $2 ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "status"}).AddRow(9, 1, models.StatusFailed))

	logs, total, err := repo.GetLogs(context.Background(), models.NotificationFilter{StudentID: 1, Status: models.StatusFailed, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, logs, 1)
}
