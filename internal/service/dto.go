package service

import (
	"io"
	"time"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Inputs ---

type CreateRequestInput struct {
	Title       string
	Description string
	Amount      string
}

// UpdateRequestInput replaces only the fields that are set.
type UpdateRequestInput struct {
	Title       *string
	Description *string
	Amount      *string
}

func (in UpdateRequestInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Amount == nil
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

type ListFilter struct {
	Status         model.Status
	Query          string
	ReceiptFlagged *bool
	Page           int
	Limit          int
}

// --- Responses ---

type PurchaseOrderView struct {
	Available bool   `json:"available"`
	Number    string `json:"number,omitempty"`
}

type RequestResponse struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      model.Status    `json:"status"`
	CreatedBy   string          `json:"created_by"`

	Proforma           *model.DocumentRef        `json:"proforma"`
	ProformaExtraction *model.ProformaExtraction `json:"proforma_extraction"`
	ProformaAdvisory   model.AdvisoryState       `json:"proforma_advisory"`
	ProformaWarning    string                    `json:"proforma_warning,omitempty"`

	PurchaseOrder PurchaseOrderView `json:"purchase_order"`

	Receipt           *model.DocumentRef       `json:"receipt"`
	ReceiptValidation *model.ReceiptValidation `json:"receipt_validation"`
	ReceiptAdvisory   model.AdvisoryState      `json:"receipt_advisory"`
	ReceiptWarning    string                   `json:"receipt_warning,omitempty"`
	ReceiptFlagged    bool                     `json:"receipt_flagged"`

	Approvals        []model.Approval  `json:"approvals"`
	ApprovalProgress workflow.Progress `json:"approval_progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProcessResult struct {
	Extraction  *model.ProformaExtraction `json:"extraction"`
	ContentType string                    `json:"content_type"`
	Warning     string                    `json:"warning,omitempty"`
}

func toRequestResponse(req *model.PurchaseRequest) RequestResponse {
	approvals := req.Approvals
	if approvals == nil {
		approvals = []model.Approval{}
	}
	return RequestResponse{
		ID:                 req.ID,
		Title:              req.Title,
		Description:        req.Description,
		Amount:             req.Amount,
		Status:             req.Status,
		CreatedBy:          req.CreatedBy,
		Proforma:           req.Proforma,
		ProformaExtraction: req.ProformaExtraction,
		ProformaAdvisory:   req.ProformaAdvisory,
		ProformaWarning:    req.ProformaWarning,
		PurchaseOrder: PurchaseOrderView{
			Available: req.PurchaseOrderAvailable(),
			Number:    req.PurchaseOrderNumber(),
		},
		Receipt:           req.Receipt,
		ReceiptValidation: req.ReceiptValidation,
		ReceiptAdvisory:   req.ReceiptAdvisory,
		ReceiptWarning:    req.ReceiptWarning,
		ReceiptFlagged:    req.ReceiptFlagged,
		Approvals:         approvals,
		ApprovalProgress:  workflow.ProgressOf(req.Approvals),
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}
