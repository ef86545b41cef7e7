// Package invoicing holds the use cases behind the HTTP surface: fiscal
// status actualization, the e-Factura record workflow (send, sign, cancel,
// refresh, downloads) and party autofill from the registry.
package invoicing

import (
	"context"
	"errors"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/fiscal"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// FiscalStatusService loads everything fiscal.Resolve needs, resolves, and
// persists the outcome on the invoice. It is the single write path for the
// fiscal status field.
type FiscalStatusService struct {
	invoices    repository.InvoiceRepository
	customers   repository.CustomerRepository
	territories repository.TerritoryRepository
	efacturas   repository.EFacturaRepository
	scopeName   string // configured root territory, empty when unset
	log         *logger.Logger
}

func NewFiscalStatusService(
	invoices repository.InvoiceRepository,
	customers repository.CustomerRepository,
	territories repository.TerritoryRepository,
	efacturas repository.EFacturaRepository,
	scopeName string,
	log *logger.Logger,
) *FiscalStatusService {
	return &FiscalStatusService{
		invoices:    invoices,
		customers:   customers,
		territories: territories,
		efacturas:   efacturas,
		scopeName:   scopeName,
		log:         log,
	}
}

// RefreshInvoice recomputes and persists the invoice's fiscal status.
// Resolving to StatusNone (invoice not submitted) clears the stored label.
// Configuration errors propagate so interactive callers can surface them.
func (s *FiscalStatusService) RefreshInvoice(ctx context.Context, invoiceID string) error {
	status, err := s.resolve(ctx, invoiceID)
	if err != nil {
		return err
	}
	return s.invoices.SetFiscalStatus(ctx, invoiceID, string(status))
}

// Resolve computes the invoice's fiscal status without persisting it.
func (s *FiscalStatusService) Resolve(ctx context.Context, invoiceID string) (fiscal.Status, error) {
	return s.resolve(ctx, invoiceID)
}

func (s *FiscalStatusService) resolve(ctx context.Context, invoiceID string) (fiscal.Status, error) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return fiscal.StatusNone, err
	}

	in := fiscal.Input{Invoice: invoice}

	customer, err := s.customers.GetByID(ctx, invoice.CustomerID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fiscal.StatusNone, err
	}
	in.Customer = customer

	if s.scopeName != "" {
		root, err := s.territories.Get(ctx, s.scopeName)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fiscal.StatusNone, err
		}
		if root != nil {
			in.Scope = fiscal.Scope{Configured: true, Root: *root}
		}
	}

	if customer != nil && customer.Territory != "" {
		t, err := s.territories.Get(ctx, customer.Territory)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fiscal.StatusNone, err
		}
		in.CustomerTerritory = t
	}

	records, err := s.efacturas.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return fiscal.StatusNone, err
	}
	in.Records = records

	return fiscal.Resolve(in)
}

// ActualizeByName is the interactive entry point: it resolves the invoice by
// its document name, persists, and returns the computed status so the UI can
// show it immediately.
func (s *FiscalStatusService) ActualizeByName(ctx context.Context, invoiceName string) (fiscal.Status, error) {
	invoice, err := s.invoices.GetByName(ctx, invoiceName)
	if err != nil {
		return fiscal.StatusNone, err
	}
	status, err := s.resolve(ctx, invoice.ID)
	if err != nil {
		return fiscal.StatusNone, err
	}
	if err := s.invoices.SetFiscalStatus(ctx, invoice.ID, string(status)); err != nil {
		return fiscal.StatusNone, err
	}
	return status, nil
}
