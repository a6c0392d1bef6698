package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestDocumentCreateDefaultsVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		ApplicationID: "app-1",
		Type:          models.DocTypeBLI02,
		Status:        models.DocumentStatusPendingSignature,
		FileRef:       "uploads/bli02.pdf",
	}
	err := repo.Create(context.Background(), doc)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 1, doc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentGetByApplicationAndTypeMiss(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("app-1", string(models.DocTypeSLI03)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByApplicationAndType(context.Background(), "app-1", models.DocTypeSLI03)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentUpdateSignalsVanishedRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE documents SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Document{
		ID:            "doc-1",
		ApplicationID: "app-1",
		Type:          models.DocTypeBLI02,
		Status:        models.DocumentStatusPendingSignature,
		FileRef:       "uploads/bli02-v2.pdf",
		Version:       2,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows, "zero affected rows must surface as the fallback-to-create signal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentListByApplication(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "application_id", "type", "status", "file_ref", "version", "signed_by", "signed_at", "created_at", "updated_at"}).
		AddRow("doc-1", "app-1", string(models.DocTypeBLI01), string(models.DocumentStatusSigned), models.FileRefOnlineSubmission, 1, nil, now, now, now).
		AddRow("doc-2", "app-1", string(models.DocTypeBLI02), string(models.DocumentStatusPendingSignature), "uploads/bli02.pdf", 3, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("app-1").
		WillReturnRows(rows)

	docs, err := repo.ListByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 3, docs[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
