package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"procurement/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestRequestRepositoryFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "purchase_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "purchase_requests" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), uuid.New(), model.StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryFindByIDForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "purchase_requests" WHERE id = \$1 ORDER BY .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "created_by"}).
			AddRow(id.String(), "Laptop", "pending", "s1"))
	mock.ExpectQuery(`SELECT \* FROM "approvals" WHERE request_id = \$1 ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "approver_id", "approver_role", "approved"}).
			AddRow(uuid.NewString(), id.String(), "a1", "approver_level_1", true))

	req, err := repo.FindByIDForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, req.ID)
	assert.Equal(t, model.StatusPending, req.Status)
	require.Len(t, req.Approvals, 1)
	assert.Equal(t, "a1", req.Approvals[0].ApproverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryFindByIDForUpdateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "purchase_requests" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByIDForUpdate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAttachReceiptOnlyOnce(t *testing.T) {
	ref := &model.DocumentRef{Key: "receipts/r1.pdf", Filename: "r1.pdf"}

	t.Run("attached", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "purchase_requests" SET .*"receipt"=.* WHERE receipt IS NULL AND`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.AttachReceipt(context.Background(), uuid.New(), ref))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("receipt already set", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "purchase_requests" SET .* WHERE receipt IS NULL AND`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.AttachReceipt(context.Background(), uuid.New(), ref)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequestRepositorySaveProformaAnalysisIgnoresStaleDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "purchase_requests" SET .*"proforma_advisory"=.* WHERE proforma ->> 'key' = \$\d+ AND`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.SaveProformaAnalysis(context.Background(), uuid.New(), "proformas/old.pdf", ProformaAnalysis{
		State: model.AdvisoryUnavailable, Warning: "extraction unavailable",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositorySaveReceiptValidation(t *testing.T) {
	t.Run("current receipt", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "purchase_requests" SET .*"receipt_flagged"=.* WHERE receipt ->> 'key' = \$\d+ AND`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SaveReceiptValidation(context.Background(), uuid.New(), "receipts/r1.pdf", ReceiptAnalysis{
			Validation: &model.ReceiptValidation{VendorMatch: true, AmountMatch: false, ItemsMatch: true},
			State:      model.AdvisoryAvailable,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale receipt", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "purchase_requests" SET .* WHERE receipt ->> 'key' = \$\d+ AND`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.SaveReceiptValidation(context.Background(), uuid.New(), "receipts/gone.pdf", ReceiptAnalysis{
			State: model.AdvisoryUnavailable,
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApprovalRepositoryAppendDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "approvals"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_approvals_request_approver"})
	mock.ExpectRollback()

	err := repo.Append(context.Background(), &model.Approval{
		RequestID:    uuid.New(),
		ApproverID:   "a1",
		ApproverRole: "approver_level_1",
		Approved:     true,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListByEntity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	id := uuid.NewString()

	rows := sqlmock.NewRows([]string{"id", "actor_id", "actor_role", "action", "entity_id", "details"}).
		AddRow(uuid.NewString(), "s1", "staff", model.ActionCreateRequest, id, "{}").
		AddRow(uuid.NewString(), "a1", "approver_level_1", model.ActionApproveRequest, id, "{}")
	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE entity_id = \$1 ORDER BY created_at asc`).
		WithArgs(id).
		WillReturnRows(rows)

	logs, err := repo.ListByEntity(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionApproveRequest, logs[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_approvals_request_approver"}
	err := translate(fmt.Errorf("insert: %w", pgErr))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "idx_approvals_request_approver")

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))
}

func TestTransactionManagerNested(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return tm.RunInTx(txCtx, func(inner context.Context) error {
			calls++
			assert.Equal(t, txCtx, inner)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
