package sync

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
)

// Gateway is the slice of the registry client the reconciliation strategies
// use. The concrete implementation is efactura.Client; tests inject fakes.
type Gateway interface {
	// CheckStatus returns the registry status per identity; absent keys mean
	// the registry did not report on that identity.
	CheckStatus(ctx context.Context, ids []efactura.InvoiceIdentifier) (map[efactura.InvoiceIdentifier]int, error)

	// SearchInvoices runs one status-filtered search.
	SearchInvoices(ctx context.Context, actorRole int, params efactura.SearchParameters) ([]efactura.SearchMatch, error)

	// SearchByCorrelationID walks the status enum looking for the registry
	// record created from the named local document.
	SearchByCorrelationID(ctx context.Context, correlationID string) (*efactura.SearchMatch, error)
}

// FiscalRefresher recomputes and persists the fiscal status of the invoice
// an e-Factura record points at. Implemented by invoicing.FiscalStatusService.
type FiscalRefresher interface {
	RefreshInvoice(ctx context.Context, invoiceID string) error
}
