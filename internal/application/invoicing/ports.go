package invoicing

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
)

// Gateway is the slice of the registry client the invoicing use cases need.
// Implemented by efactura.Client; tests inject fakes.
type Gateway interface {
	PostInvoices(ctx context.Context, correlationID string, actorRole int, invoicesXML string, xmlStatus int) (*efactura.PostResult, error)
	CheckStatus(ctx context.Context, ids []efactura.InvoiceIdentifier) (map[efactura.InvoiceIdentifier]int, error)
	SearchByCorrelationID(ctx context.Context, correlationID string) (*efactura.SearchMatch, error)
	ReserveSeriaAndNumbers(ctx context.Context, count int) ([]efactura.InvoiceIdentifier, error)
	GetPrintContent(ctx context.Context, id efactura.InvoiceIdentifier, orientation int) ([]byte, error)
	GetTaxpayersInfo(ctx context.Context, fiscalCodes []string) ([]efactura.TaxpayerInfo, error)
	GetBankAccountInfo(ctx context.Context, idno, accountNumber string) ([]efactura.BankAccountInfo, error)
}
