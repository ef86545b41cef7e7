package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Document lifecycle ─────────────────────────────────────────────────────────

// Local document lifecycle stages, shared by invoices and e-Factura records.
const (
	DocStatusDraft     = 0
	DocStatusSubmitted = 1
	DocStatusCancelled = 2
)

// ── Registry status codes ──────────────────────────────────────────────────────

// Status codes assigned by the e-Factura registry. Pending is the local
// placeholder before the registry has said anything.
const (
	RemoteStatusPending          = -1
	RemoteStatusDraft            = 0
	RemoteStatusSignedBySupplier = 1
	RemoteStatusRejected         = 2
	RemoteStatusAccepted         = 3
	RemoteStatusCancelled        = 5
	RemoteStatusSent             = 7
	RemoteStatusSignedByCustomer = 8
	RemoteStatusSentAlt          = 9
	RemoteStatusInTransport      = 10
)

// CheckableRemoteStatuses are the codes still worth polling: everything else
// is terminal or advanced by the counterparty, not by us.
var CheckableRemoteStatuses = []int{
	RemoteStatusDraft,
	RemoteStatusSignedBySupplier,
	RemoteStatusAccepted,
	RemoteStatusSent,
}

// SearchStatusOrder is the order in which status-filtered registry searches
// probe for a document, most likely first. The registry refuses searches
// without a status filter.
var SearchStatusOrder = []int{0, 1, 7, 8, 3, 2, 5, 10, 4, 6, 9}

// StatusUnrecognized labels a code the registry sent that we do not know.
const StatusUnrecognized = "Unrecognized"

var remoteStatusLabels = map[int]string{
	RemoteStatusPending:          "Pending",
	RemoteStatusDraft:            "Draft",
	RemoteStatusSignedBySupplier: "Signed by Supplier",
	RemoteStatusRejected:         "Rejected by Customer",
	RemoteStatusAccepted:         "Accepted by Customer",
	RemoteStatusCancelled:        "Canceled by Supplier",
	RemoteStatusSent:             "Sent to Customer",
	RemoteStatusSignedByCustomer: "Signed by Customer",
	RemoteStatusSentAlt:          "Sent to Customer",
	RemoteStatusInTransport:      "Transported",
}

// IsRemoteStatusKnown reports whether code is one the integration understands.
func IsRemoteStatusKnown(code int) bool {
	_, ok := remoteStatusLabels[code]
	return ok
}

// ── Entities ───────────────────────────────────────────────────────────────────

// Party is one taxpayer block on an e-Factura document. Blocks are refreshed
// from the registry on save; manual edits do not survive an autofill.
type Party struct {
	IDNO         string
	VATID        string
	Name         string
	Address      string
	TaxpayerType string
	BankAccount  string
	BankName     string
	BankCode     string
}

// Empty reports whether the block carries no identity at all.
func (p Party) Empty() bool { return p.IDNO == "" }

// EFacturaItem is one merchandise row of the fiscal document.
type EFacturaItem struct {
	ID         string
	EFacturaID string
	Idx        int
	ItemCode   string
	ItemName   string
	UOM        string
	Qty        decimal.Decimal
	Rate       decimal.Decimal // ERP unit price; VAT treatment depends on settings
	NetRate    decimal.Decimal // unit price without VAT
	NetAmount  decimal.Decimal
	VATRate    decimal.Decimal // percent, whole number on the wire
	VATAmount  decimal.Decimal
	Amount     decimal.Decimal // gross row total
}

// Document types. Transfer changes the registry creation motive.
const (
	EFacturaTypeInvoice  = "Invoice"
	EFacturaTypeTransfer = "Transfer"
)

// EFactura is the local mirror of one fiscal document. Name doubles as the
// correlation id sent to the registry, so a record that lost its series and
// number can still be found server-side.
type EFactura struct {
	ID        string
	Name      string
	InvoiceID string
	DocStatus int

	RemoteSeries string
	RemoteNumber string
	RemoteStatus int
	LastChecked  *time.Time

	IssueDate    time.Time
	DeliveryDate time.Time
	Type         string
	Currency     string

	Supplier    Party
	Customer    Party
	Transporter Party

	Items []EFacturaItem

	NetTotal decimal.Decimal
	VATTotal decimal.Decimal
	Total    decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registered reports whether the registry has assigned an identity.
func (e *EFactura) Registered() bool {
	return e.RemoteSeries != "" && e.RemoteNumber != ""
}

// CancellableLocally reports whether the record may be cancelled without a
// registry round-trip: either the registry never saw it, or the supplier
// already cancelled it there.
func (e *EFactura) CancellableLocally() bool {
	return e.RemoteStatus == RemoteStatusPending || e.RemoteStatus == RemoteStatusCancelled
}

// StatusLabel renders the user-facing status of the record.
//
// Drafts are always "Draft" regardless of any stale remote code; cancelled
// documents are always "Canceled". Submitted documents show the registry's
// view, or Unrecognized for a code outside the known set.
func (e *EFactura) StatusLabel() string {
	switch e.DocStatus {
	case DocStatusDraft:
		return "Draft"
	case DocStatusCancelled:
		return "Canceled"
	}
	if label, ok := remoteStatusLabels[e.RemoteStatus]; ok {
		return label
	}
	return StatusUnrecognized
}
