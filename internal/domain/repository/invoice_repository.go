package repository

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// InvoiceRepository is the port to the ERP's sales invoice documents. The
// documents are owned by the surrounding application; this service reads them
// and writes back only the derived fiscal status.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*entity.SalesInvoice, error)
	GetByName(ctx context.Context, name string) (*entity.SalesInvoice, error)
	// SetFiscalStatus persists the derived status without touching anything
	// else on the document (idempotent, last write wins).
	SetFiscalStatus(ctx context.Context, id string, status string) error
}
