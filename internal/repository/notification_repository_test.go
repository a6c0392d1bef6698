package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
)

func TestNotificationCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	appID := "app-1"
	n := &models.Notification{
		UserID:        "coord-1",
		Type:          models.NotifyNewSubmission,
		Subject:       "New submission",
		Body:          "BLI-01 submitted",
		ApplicationID: &appID,
		Queued:        true,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.Equal(t, models.CategorySubmissions, n.Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationExistsByDedupeKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("BLI04_REMINDER:app-1:7").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByDedupeKey(context.Background(), "BLI04_REMINDER:app-1:7")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationListQueuedPendingFiltersOnStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "category", "subject", "body", "application_id", "queued", "status", "dedupe_key", "batch_id", "sent_at", "created_at"}).
		AddRow("n-1", "coord-1", string(models.NotifyNewSubmission), string(models.CategorySubmissions), "New submission", "body", "app-1", true, string(models.NotificationPending), nil, nil, nil, created)
	mock.ExpectQuery("FROM notifications").
		WithArgs(string(models.NotificationPending)).
		WillReturnRows(rows)

	queued, err := repo.ListQueuedPending(context.Background())
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.True(t, queued[0].Queued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationMarkOutcome(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sentAt := time.Date(2026, 8, 30, 9, 5, 0, 0, time.UTC)
	ids := []string{"n-1", "n-2"}
	mock.ExpectExec("UPDATE notifications SET status").
		WithArgs(string(models.NotificationSent), "batch-1", sentAt, pq.Array(ids), string(models.NotificationPending)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkOutcome(context.Background(), ids, models.NotificationSent, "batch-1", sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationMarkOutcomeEmptySetSkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.MarkOutcome(context.Background(), nil, models.NotificationSent, "batch-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
