package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
)

func notificationFixture(t *testing.T) (*NotificationService, *stubNotifications, *stubMailer) {
	t.Helper()
	users := newStubUsers(
		&models.User{ID: "coord-1", Email: "coordinator@campus.test", FullName: "Dr. Lim", Role: models.RoleCoordinator, Active: true},
		&models.User{ID: "stu-1", Email: "student@campus.test", FullName: "Siti Aminah", Role: models.RoleStudent, Active: true},
	)
	repo := &stubNotifications{}
	mail := &stubMailer{}
	return NewNotificationService(repo, users, mail, nil), repo, mail
}

func TestBatchableTypesAreQueuedNotSent(t *testing.T) {
	svc, repo, mail := notificationFixture(t)

	err := svc.Notify(context.Background(), "coord-1", models.NotifyNewSubmission, "app-1", map[string]string{"studentName": "Siti Aminah", "documentType": "BLI-01"})
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	require.True(t, row.Queued)
	require.Equal(t, models.NotificationPending, row.Status)
	require.Equal(t, models.CategorySubmissions, row.Category)
	require.Empty(t, mail.sent, "queued rows wait for the flush")
}

func TestBatchableTypeToStudentSendsImmediately(t *testing.T) {
	svc, repo, mail := notificationFixture(t)

	err := svc.Notify(context.Background(), "stu-1", models.NotifySupervisorSigned, "app-1", map[string]string{"documentType": "BLI-03"})
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	require.False(t, repo.rows[0].Queued, "digests are for coordinators only")
	require.Equal(t, models.NotificationSent, repo.rows[0].Status)
	require.Len(t, mail.sent, 1)
	require.Equal(t, "student@campus.test", mail.sent[0].To)
}

func TestImmediateTypesSendSynchronously(t *testing.T) {
	svc, repo, mail := notificationFixture(t)

	err := svc.Notify(context.Background(), "stu-1", models.NotifySLI03Ready, "app-1", nil)
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	require.Equal(t, "student@campus.test", mail.sent[0].To)
	require.Len(t, repo.rows, 1)
	require.Equal(t, models.NotificationSent, repo.rows[0].Status)
	require.NotNil(t, repo.rows[0].SentAt)
}

func TestImmediateSendFailureRecordsFailed(t *testing.T) {
	svc, repo, mail := notificationFixture(t)
	mail.fail = true

	err := svc.Notify(context.Background(), "stu-1", models.NotifyChangesRequested, "app-1", map[string]string{"documentType": "BLI-03"})
	require.NoError(t, err, "delivery failure never propagates; the row records it")
	require.Len(t, repo.rows, 1)
	require.Equal(t, models.NotificationFailed, repo.rows[0].Status)
}

func TestFlushProducesOneDigestPerCoordinatorCategory(t *testing.T) {
	svc, repo, mail := notificationFixture(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(context.Background(), "coord-1", models.NotifyNewSubmission, "app-1", map[string]string{"studentName": "Siti Aminah", "documentType": "BLI-01"}))
	}
	require.Empty(t, mail.sent)

	require.NoError(t, svc.FlushBatches(context.Background()))

	require.Len(t, mail.sent, 1, "three queued rows collapse into one digest")
	require.Contains(t, mail.sent[0].Subject, "3")

	var batchID string
	for _, row := range repo.rows {
		require.Equal(t, models.NotificationSent, row.Status)
		require.NotNil(t, row.BatchID)
		if batchID == "" {
			batchID = *row.BatchID
		}
		require.Equal(t, batchID, *row.BatchID, "all rows of one digest share the batch id")
	}

	// A second flush finds nothing pending and sends nothing.
	require.NoError(t, svc.FlushBatches(context.Background()))
	require.Len(t, mail.sent, 1)
}

func TestFlushFailureMarksRowsFailed(t *testing.T) {
	svc, repo, mail := notificationFixture(t)
	require.NoError(t, svc.Notify(context.Background(), "coord-1", models.NotifyReviewEscalation, "app-1", map[string]string{"studentName": "Siti Aminah"}))
	mail.fail = true

	require.NoError(t, svc.FlushBatches(context.Background()))
	require.Len(t, repo.rows, 1)
	require.Equal(t, models.NotificationFailed, repo.rows[0].Status)
	require.NotNil(t, repo.rows[0].BatchID)
}

func TestFlushGroupsByCategory(t *testing.T) {
	svc, _, mail := notificationFixture(t)
	require.NoError(t, svc.Notify(context.Background(), "coord-1", models.NotifyNewSubmission, "app-1", nil))
	require.NoError(t, svc.Notify(context.Background(), "coord-1", models.NotifyReviewEscalation, "app-2", nil))

	require.NoError(t, svc.FlushBatches(context.Background()))
	require.Len(t, mail.sent, 2, "submissions and escalations are separate digests")
}

func TestNotifyDedupeFiresOncePerKey(t *testing.T) {
	svc, repo, _ := notificationFixture(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.NotifyDedupe(context.Background(), "stu-1", models.NotifyBLI04Reminder, "app-1", "BLI04_REMINDER:app-1:7", map[string]string{"daysLeft": "7"}))
	}
	require.Len(t, repo.rows, 1)
}
