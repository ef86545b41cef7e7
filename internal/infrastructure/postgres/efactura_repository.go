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

var _ repository.EFacturaRepository = (*EFacturaRepo)(nil)

// EFacturaRepo pgx implementation of EFacturaRepository.
type EFacturaRepo struct {
	q Querier
}

func NewEFacturaRepository(q Querier) *EFacturaRepo {
	return &EFacturaRepo{q: q}
}

const efacturaColumns = `
	id, name, invoice_id, docstatus,
	remote_series, remote_number, remote_status, last_checked,
	issue_date, delivery_date, doc_type, currency,
	supplier_idno, supplier_vat_id, supplier_name, supplier_address, supplier_taxpayer_type,
	supplier_bank_account, supplier_bank_name, supplier_bank_code,
	customer_idno, customer_vat_id, customer_name, customer_address, customer_taxpayer_type,
	customer_bank_account, customer_bank_name, customer_bank_code,
	transporter_idno, transporter_name, transporter_address,
	net_total, vat_total, total,
	created_at, updated_at`

// GetByID fetches a fiscal document with its line items.
func (r *EFacturaRepo) GetByID(ctx context.Context, id string) (*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + ` FROM efacturas WHERE id = $1`
	ef, err := r.scanOne(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ef); err != nil {
		return nil, err
	}
	return ef, nil
}

// GetByName fetches a fiscal document by its document name.
func (r *EFacturaRepo) GetByName(ctx context.Context, name string) (*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + ` FROM efacturas WHERE name = $1`
	ef, err := r.scanOne(r.q.QueryRow(ctx, query, name))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ef); err != nil {
		return nil, err
	}
	return ef, nil
}

// ListByInvoice returns every non-cancelled fiscal document linked to an invoice.
func (r *EFacturaRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + `
		FROM efacturas
		WHERE invoice_id = $1 AND docstatus <> 2
		ORDER BY created_at`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list efacturas by invoice: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListCheckable returns registered submitted documents whose remote status is
// in the given set, never-checked ones first, then oldest check first.
func (r *EFacturaRepo) ListCheckable(ctx context.Context, statuses []int, limit int) ([]*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + `
		FROM efacturas
		WHERE docstatus = 1
		  AND remote_series <> ''
		  AND remote_number <> ''
		  AND remote_status = ANY($1)
		ORDER BY CASE WHEN last_checked IS NULL THEN 0 ELSE 1 END, last_checked ASC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkable efacturas: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListUnregisteredDrafts returns submitted records still in remote draft
// status with no registry identity. Candidates for promotion by search.
func (r *EFacturaRepo) ListUnregisteredDrafts(ctx context.Context) ([]*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + `
		FROM efacturas
		WHERE docstatus = 1
		  AND remote_status = $1
		  AND (remote_series = '' OR remote_number = '')
		ORDER BY created_at`
	rows, err := r.q.Query(ctx, query, entity.RemoteStatusDraft)
	if err != nil {
		return nil, fmt.Errorf("list unregistered drafts: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// FindBySeriesNumber locates a document by its registry identity.
func (r *EFacturaRepo) FindBySeriesNumber(ctx context.Context, series, number string) (*entity.EFactura, error) {
	query := `SELECT ` + efacturaColumns + `
		FROM efacturas
		WHERE remote_series = $1 AND remote_number = $2 AND docstatus = 1`
	return r.scanOne(r.q.QueryRow(ctx, query, series, number))
}

// SetRemoteStatus updates the registry status and the check timestamp together.
func (r *EFacturaRepo) SetRemoteStatus(ctx context.Context, id string, status int, checkedAt time.Time) error {
	query := `UPDATE efacturas SET remote_status = $2, last_checked = $3, updated_at = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status, checkedAt)
	if err != nil {
		return fmt.Errorf("set remote status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// TouchChecked records a status check that brought no new information, so the
// document rotates to the back of the polling queue.
func (r *EFacturaRepo) TouchChecked(ctx context.Context, id string, checkedAt time.Time) error {
	query := `UPDATE efacturas SET last_checked = $2 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, checkedAt)
	if err != nil {
		return fmt.Errorf("touch checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// AdoptRegistration attaches a registry identity found server-side to a local
// draft and records its current status.
func (r *EFacturaRepo) AdoptRegistration(ctx context.Context, id, series, number string, status int) error {
	query := `UPDATE efacturas
		SET remote_series = $2, remote_number = $3, remote_status = $4, updated_at = $5
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, series, number, status, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Validation("series",
				fmt.Sprintf("identity %s %s already belongs to another document", series, number))
		}
		return fmt.Errorf("adopt registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ClearRegistration detaches the registry identity from a document and sets
// the given remote status.
func (r *EFacturaRepo) ClearRegistration(ctx context.Context, id string, status int) error {
	query := `UPDATE efacturas
		SET remote_series = '', remote_number = '', remote_status = $2, updated_at = $3
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("clear registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetParty overwrites the stored party block for the given role
// (supplier, customer or transporter).
func (r *EFacturaRepo) SetParty(ctx context.Context, id, role string, p entity.Party) error {
	var set string
	switch role {
	case repository.PartySupplier, repository.PartyCustomer:
		set = fmt.Sprintf(`%[1]s_idno = $2, %[1]s_vat_id = $3, %[1]s_name = $4, %[1]s_address = $5,
			%[1]s_taxpayer_type = $6, %[1]s_bank_account = $7, %[1]s_bank_name = $8, %[1]s_bank_code = $9,
			updated_at = $10`, role)
	case repository.PartyTransporter:
		return r.setTransporter(ctx, id, p)
	default:
		return apperrors.Validation("role", "unknown party role "+role)
	}
	query := `UPDATE efacturas SET ` + set + ` WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id,
		p.IDNO, p.VATID, p.Name, p.Address, p.TaxpayerType,
		p.BankAccount, p.BankName, p.BankCode, time.Now())
	if err != nil {
		return fmt.Errorf("set %s party: %w", role, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *EFacturaRepo) setTransporter(ctx context.Context, id string, p entity.Party) error {
	query := `UPDATE efacturas
		SET transporter_idno = $2, transporter_name = $3, transporter_address = $4, updated_at = $5
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, p.IDNO, p.Name, p.Address, time.Now())
	if err != nil {
		return fmt.Errorf("set transporter party: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetDates updates the issue and delivery dates of a draft.
func (r *EFacturaRepo) SetDates(ctx context.Context, id string, issue, delivery time.Time) error {
	query := `UPDATE efacturas SET issue_date = $2, delivery_date = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, issue, delivery, time.Now())
	if err != nil {
		return fmt.Errorf("set dates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Cancel marks the record cancelled. Terminal; records are never deleted.
func (r *EFacturaRepo) Cancel(ctx context.Context, id string) error {
	query := `UPDATE efacturas SET docstatus = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, entity.DocStatusCancelled, time.Now())
	if err != nil {
		return fmt.Errorf("cancel efactura: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ── internal scan helpers ──

func (r *EFacturaRepo) scanOne(row pgx.Row) (*entity.EFactura, error) {
	ef, err := scanEFactura(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get efactura: %w", err)
	}
	return ef, nil
}

func (r *EFacturaRepo) scanMany(rows pgx.Rows) ([]*entity.EFactura, error) {
	var out []*entity.EFactura
	for rows.Next() {
		ef, err := scanEFactura(rows)
		if err != nil {
			return nil, fmt.Errorf("scan efactura: %w", err)
		}
		out = append(out, ef)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate efacturas: %w", err)
	}
	return out, nil
}

func scanEFactura(row pgx.Row) (*entity.EFactura, error) {
	var ef entity.EFactura
	err := row.Scan(
		&ef.ID, &ef.Name, &ef.InvoiceID, &ef.DocStatus,
		&ef.RemoteSeries, &ef.RemoteNumber, &ef.RemoteStatus, &ef.LastChecked,
		&ef.IssueDate, &ef.DeliveryDate, &ef.Type, &ef.Currency,
		&ef.Supplier.IDNO, &ef.Supplier.VATID, &ef.Supplier.Name, &ef.Supplier.Address, &ef.Supplier.TaxpayerType,
		&ef.Supplier.BankAccount, &ef.Supplier.BankName, &ef.Supplier.BankCode,
		&ef.Customer.IDNO, &ef.Customer.VATID, &ef.Customer.Name, &ef.Customer.Address, &ef.Customer.TaxpayerType,
		&ef.Customer.BankAccount, &ef.Customer.BankName, &ef.Customer.BankCode,
		&ef.Transporter.IDNO, &ef.Transporter.Name, &ef.Transporter.Address,
		&ef.NetTotal, &ef.VATTotal, &ef.Total,
		&ef.CreatedAt, &ef.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ef, nil
}

func (r *EFacturaRepo) loadItems(ctx context.Context, ef *entity.EFactura) error {
	query := `SELECT id, efactura_id, idx, item_code, item_name, uom,
			qty, rate, net_rate, net_amount, vat_rate, vat_amount, amount
		FROM efactura_items
		WHERE efactura_id = $1
		ORDER BY idx`
	rows, err := r.q.Query(ctx, query, ef.ID)
	if err != nil {
		return fmt.Errorf("load efactura items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it entity.EFacturaItem
		if err := rows.Scan(
			&it.ID, &it.EFacturaID, &it.Idx, &it.ItemCode, &it.ItemName, &it.UOM,
			&it.Qty, &it.Rate, &it.NetRate, &it.NetAmount, &it.VATRate, &it.VATAmount, &it.Amount,
		); err != nil {
			return fmt.Errorf("scan efactura item: %w", err)
		}
		ef.Items = append(ef.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate efactura items: %w", err)
	}
	return nil
}
