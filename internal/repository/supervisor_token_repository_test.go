package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
)

func TestSupervisorTokenMarkUsedClaimsOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSupervisorTokenRepository(db)

	usedAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE supervisor_tokens SET used_at").
		WithArgs(usedAt, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkUsed(context.Background(), "tok-1", usedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupervisorTokenMarkUsedAlreadyClaimed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSupervisorTokenRepository(db)

	usedAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE supervisor_tokens SET used_at").
		WithArgs(usedAt, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkUsed(context.Background(), "tok-1", usedAt)
	assert.ErrorIs(t, err, sql.ErrNoRows, "a second claim sees zero rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupervisorTokenRevokeActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSupervisorTokenRepository(db)

	mock.ExpectExec("UPDATE supervisor_tokens SET is_revoked = TRUE").
		WithArgs("app-1", string(models.FormTypeBLI03)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RevokeActive(context.Background(), "app-1", models.FormTypeBLI03))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupervisorTokenFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSupervisorTokenRepository(db)

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "application_id", "form_type", "token", "supervisor_email", "supervisor_name", "expires_at", "is_revoked", "used_at", "created_at"}).
		AddRow("tok-1", "app-1", string(models.FormTypeBLI03), "opaque-value", "ramli@acme.test", "Pak Ramli", created.Add(72*time.Hour), false, nil, created)
	mock.ExpectQuery("FROM supervisor_tokens WHERE token").
		WithArgs("opaque-value").
		WillReturnRows(rows)

	token, err := repo.FindByToken(context.Background(), "opaque-value")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.ID)
	assert.False(t, token.IsRevoked)
	assert.Nil(t, token.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
