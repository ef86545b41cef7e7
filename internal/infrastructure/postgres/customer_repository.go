package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
)

var (
	_ repository.CustomerRepository  = (*CustomerRepo)(nil)
	_ repository.TerritoryRepository = (*CustomerRepo)(nil)
)

// CustomerRepo reads ERP customers and the territory tree. Both live in the
// same schema, so one adapter serves both ports.
type CustomerRepo struct {
	q Querier
}

func NewCustomerRepository(q Querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// GetByID fetches a customer by primary key.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	query := `SELECT id, name, customer_type, territory, idno
		FROM customers WHERE id = $1`
	var c entity.Customer
	var territory, idno *string
	err := r.q.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Type, &territory, &idno)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if territory != nil {
		c.Territory = *territory
	}
	if idno != nil {
		c.IDNO = *idno
	}
	return &c, nil
}

// Get returns a territory's nested-set interval.
func (r *CustomerRepo) Get(ctx context.Context, name string) (*entity.Territory, error) {
	query := `SELECT name, lft, rgt FROM territories WHERE name = $1`
	var t entity.Territory
	err := r.q.QueryRow(ctx, query, name).Scan(&t.Name, &t.Left, &t.Right)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get territory: %w", err)
	}
	return &t, nil
}
