// Package document talks to the AI collaborators that read proformas and check receipts. Their
// output is advisory and never drives workflow state.
package document

import (
	"context"
	"errors"

	"procurement/internal/model"

	"github.com/shopspring/decimal"
)

// ErrUnavailable means no analysis could be produced. Callers degrade to "no advisory data".
var ErrUnavailable = errors.New("document analysis unavailable")

// Document is an uploaded file handed to a collaborator.
type Document struct {
	Filename    string
	ContentType string
	Digest      string
	Data        []byte
}

// ReceiptExpectation is what the receipt should match: the purchase order and the proforma data.
type ReceiptExpectation struct {
	PurchaseOrderNumber string                    `json:"purchase_order_number"`
	Title               string                    `json:"title"`
	Description         string                    `json:"description"`
	Amount              decimal.Decimal           `json:"amount"`
	Proforma            *model.ProformaExtraction `json:"proforma,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, doc Document) (*model.ProformaExtraction, error)
}

type ReceiptValidator interface {
	ValidateReceipt(ctx context.Context, doc Document, want ReceiptExpectation) (*model.ReceiptValidation, error)
}

// Unavailable is used when no collaborator is configured.
type Unavailable struct{}

func (Unavailable) Extract(context.Context, Document) (*model.ProformaExtraction, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ValidateReceipt(context.Context, Document, ReceiptExpectation) (*model.ReceiptValidation, error) {
	return nil, ErrUnavailable
}
