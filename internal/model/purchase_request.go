package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the three-way request status derived from the approval ledger.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	}
	return "", false
}

// AdvisoryState tracks whether AI-derived data for a document is available.
type AdvisoryState string

const (
	AdvisoryNone        AdvisoryState = "none"
	AdvisoryPending     AdvisoryState = "pending"
	AdvisoryAvailable   AdvisoryState = "available"
	AdvisoryUnavailable AdvisoryState = "unavailable"
)

// DocumentRef points at a stored artifact.
type DocumentRef struct {
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// PurchaseRequest is a staff request moving through two-level approval.
// Status is written only by the approval engine.
type PurchaseRequest struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status      Status          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedBy   string          `gorm:"type:varchar(64);not null;index" json:"created_by"`

	Proforma           *DocumentRef        `gorm:"type:jsonb;serializer:json" json:"proforma"`
	ProformaExtraction *ProformaExtraction `gorm:"type:jsonb;serializer:json" json:"proforma_extraction"`
	ProformaAdvisory   AdvisoryState       `gorm:"type:varchar(20);not null;default:'none'" json:"proforma_advisory"`
	ProformaWarning    string              `gorm:"type:text" json:"proforma_warning,omitempty"`

	Receipt           *DocumentRef       `gorm:"type:jsonb;serializer:json" json:"receipt"`
	ReceiptValidation *ReceiptValidation `gorm:"type:jsonb;serializer:json" json:"receipt_validation"`
	ReceiptAdvisory   AdvisoryState      `gorm:"type:varchar(20);not null;default:'none'" json:"receipt_advisory"`
	ReceiptWarning    string             `gorm:"type:text" json:"receipt_warning,omitempty"`
	ReceiptFlagged    bool               `gorm:"default:false;index" json:"receipt_flagged"`

	Approvals []Approval `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"approvals"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PurchaseOrderAvailable is derived from status, never stored.
func (r *PurchaseRequest) PurchaseOrderAvailable() bool {
	return r.Status == StatusApproved
}

// PurchaseOrderNumber is the reference the purchase order carries once approved.
func (r *PurchaseRequest) PurchaseOrderNumber() string {
	if !r.PurchaseOrderAvailable() {
		return ""
	}
	return PurchaseOrderNumberFor(r.ID)
}

func PurchaseOrderNumberFor(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return "PO-" + strings.ToUpper(hex[:8])
}

// Clone returns a deep copy safe to hand out from in-memory stores.
func (r *PurchaseRequest) Clone() *PurchaseRequest {
	c := *r
	if r.Proforma != nil {
		p := *r.Proforma
		c.Proforma = &p
	}
	if r.Receipt != nil {
		p := *r.Receipt
		c.Receipt = &p
	}
	if r.ProformaExtraction != nil {
		c.ProformaExtraction = r.ProformaExtraction.Clone()
	}
	if r.ReceiptValidation != nil {
		c.ReceiptValidation = r.ReceiptValidation.Clone()
	}
	if r.Approvals != nil {
		c.Approvals = append([]Approval(nil), r.Approvals...)
	}
	return &c
}
