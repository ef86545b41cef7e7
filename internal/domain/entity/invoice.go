package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesInvoice is the local view of the ERP's commercial invoice. The
// surrounding application owns the document; this service only reads it and
// writes back FiscalStatus.
type SalesInvoice struct {
	ID           string
	Name         string
	CustomerID   string
	DocStatus    int
	Currency     string
	GrandTotal   decimal.Decimal
	FiscalStatus string // derived; recomputed on every relevant mutation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Submitted reports whether the invoice is in the submitted lifecycle stage.
func (s *SalesInvoice) Submitted() bool {
	return s.DocStatus == DocStatusSubmitted
}
