package repository

import (
	"context"
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// Party roles accepted by SetParty.
const (
	PartySupplier    = "supplier"
	PartyCustomer    = "customer"
	PartyTransporter = "transporter"
)

// EFacturaRepository is the persistence port for e-Factura records.
type EFacturaRepository interface {
	GetByID(ctx context.Context, id string) (*entity.EFactura, error)
	GetByName(ctx context.Context, name string) (*entity.EFactura, error)

	// ListByInvoice returns all non-cancelled records linked to the invoice.
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.EFactura, error)

	// ListCheckable returns up to limit submitted, registered records whose
	// remote status is in statuses, never-checked first, then oldest-checked
	// first. The ordering is the fairness guarantee of the batch poller.
	ListCheckable(ctx context.Context, statuses []int, limit int) ([]*entity.EFactura, error)

	// ListUnregisteredDrafts returns submitted records in remote draft status
	// with no series/number assigned (posted unsigned, not yet processed).
	ListUnregisteredDrafts(ctx context.Context) ([]*entity.EFactura, error)

	// FindBySeriesNumber locates a submitted record by its registry identity.
	// Returns apperrors.ErrNotFound when the pair is not tracked locally.
	FindBySeriesNumber(ctx context.Context, series, number string) (*entity.EFactura, error)

	// SetRemoteStatus writes the registry code and the check timestamp.
	SetRemoteStatus(ctx context.Context, id string, status int, checkedAt time.Time) error

	// TouchChecked records a status check that produced no change.
	TouchChecked(ctx context.Context, id string, checkedAt time.Time) error

	// AdoptRegistration stores the series/number/status adopted from a
	// correlation-id search (draft promotion).
	AdoptRegistration(ctx context.Context, id, series, number string, status int) error

	// ClearRegistration drops series/number after an unsigned post: the
	// registry assigns them only once the document is signed.
	ClearRegistration(ctx context.Context, id string, status int) error

	// SetParty overwrites one autofilled taxpayer block
	// (role is "supplier", "customer" or "transporter").
	SetParty(ctx context.Context, id, role string, p entity.Party) error

	// SetDates updates issue and delivery dates (allowed only before
	// registration; the caller enforces that).
	SetDates(ctx context.Context, id string, issue, delivery time.Time) error

	// Cancel moves the record to the cancelled lifecycle stage (terminal).
	// The caller enforces the remote-status guard.
	Cancel(ctx context.Context, id string) error
}
