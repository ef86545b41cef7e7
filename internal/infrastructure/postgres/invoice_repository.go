package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo pgx implementation of InvoiceRepository (usable with pool or tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository builds the adapter. Pass a pool or a tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `id, name, customer_id, docstatus, currency, grand_total, fiscal_status, created_at, updated_at`

// GetByID fetches a sales invoice by primary key.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.SalesInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM sales_invoices WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByName fetches a sales invoice by its human-readable name.
func (r *InvoiceRepo) GetByName(ctx context.Context, name string) (*entity.SalesInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM sales_invoices WHERE name = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, name))
}

// SetFiscalStatus persists only the derived status field.
func (r *InvoiceRepo) SetFiscalStatus(ctx context.Context, id string, status string) error {
	query := `UPDATE sales_invoices SET fiscal_status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, nullIfEmpty(status), time.Now())
	if err != nil {
		return fmt.Errorf("set fiscal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *InvoiceRepo) scanOne(row pgx.Row) (*entity.SalesInvoice, error) {
	var si entity.SalesInvoice
	var fiscalStatus *string
	err := row.Scan(
		&si.ID, &si.Name, &si.CustomerID, &si.DocStatus, &si.Currency,
		&si.GrandTotal, &fiscalStatus, &si.CreatedAt, &si.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get sales invoice: %w", err)
	}
	if fiscalStatus != nil {
		si.FiscalStatus = *fiscalStatus
	}
	return &si, nil
}
