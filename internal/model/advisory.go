package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one extracted proforma line.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// ProformaExtraction is advisory data read from a proforma invoice.
type ProformaExtraction struct {
	Vendor      string           `json:"vendor"`
	Currency    string           `json:"currency,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	LineItems   []LineItem       `json:"line_items"`
	Confidence  float64          `json:"confidence"`
	ExtractedAt time.Time        `json:"extracted_at"`
}

func (e *ProformaExtraction) Clone() *ProformaExtraction {
	c := *e
	c.LineItems = append([]LineItem(nil), e.LineItems...)
	if e.Total != nil {
		t := *e.Total
		c.Total = &t
	}
	return &c
}

// ReceiptValidation compares a receipt against the purchase order. It never changes request status.
type ReceiptValidation struct {
	VendorMatch   bool      `json:"vendor_match"`
	AmountMatch   bool      `json:"amount_match"`
	ItemsMatch    bool      `json:"items_match"`
	Discrepancies []string  `json:"discrepancies"`
	Confidence    float64   `json:"confidence"`
	ValidatedAt   time.Time `json:"validated_at"`
}

// Flagged reports a mismatch that finance and staff should review.
func (v *ReceiptValidation) Flagged() bool {
	return !v.VendorMatch || !v.AmountMatch || !v.ItemsMatch
}

func (v *ReceiptValidation) Clone() *ReceiptValidation {
	c := *v
	c.Discrepancies = append([]string(nil), v.Discrepancies...)
	return &c
}
