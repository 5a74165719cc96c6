package repository

import (
	"context"
	"errors"

	"procurement/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// RequestFilter narrows a request listing. Zero values mean "any".
type RequestFilter struct {
	CreatedBy      string
	Status         model.Status
	Query          string
	ReceiptFlagged *bool
	Page           int
	Limit          int
}

func (f RequestFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ProformaAnalysis is the outcome of a background extraction.
type ProformaAnalysis struct {
	Extraction *model.ProformaExtraction
	State      model.AdvisoryState
	Warning    string
}

// ReceiptAnalysis is the outcome of a background receipt validation.
type ReceiptAnalysis struct {
	Validation *model.ReceiptValidation
	State      model.AdvisoryState
	Warning    string
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	// FindByID loads the request with its approvals in creation order.
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	// FindByIDForUpdate is FindByID plus an exclusive lock held until the surrounding
	// transaction ends. It must run inside TransactionManager.RunInTx.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error)
	// UpdateDetails writes the editable fields and the proforma reference with its advisory state.
	UpdateDetails(ctx context.Context, req *model.PurchaseRequest) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error
	// SaveProformaAnalysis applies only while the request still references proformaKey.
	// It returns ErrNotFound otherwise.
	SaveProformaAnalysis(ctx context.Context, id uuid.UUID, proformaKey string, result ProformaAnalysis) error
	AttachReceipt(ctx context.Context, id uuid.UUID, ref *model.DocumentRef) error
	SaveReceiptValidation(ctx context.Context, id uuid.UUID, receiptKey string, result ReceiptAnalysis) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ApprovalRepository is the append-only decision ledger.
type ApprovalRepository interface {
	// Append returns ErrDuplicate when the approver already has a row for the request.
	Append(ctx context.Context, approval *model.Approval) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	ListByEntity(ctx context.Context, entityID string) ([]model.AuditLog, error)
}
