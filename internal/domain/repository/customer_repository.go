package repository

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// CustomerRepository reads ERP customers.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
}

// TerritoryRepository reads the ERP's territory tree as nested-set intervals.
type TerritoryRepository interface {
	// Get returns the territory's interval, or apperrors.ErrNotFound.
	Get(ctx context.Context, name string) (*entity.Territory, error)
}
