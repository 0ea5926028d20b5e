package repository

import (
	"context"

	"github.com/rpattn/importflow/internal/domain"
)

// CatalogRepository defines the catalog-side write surface used by the
// batch executor. Each upsert is an independent unit of work; rows never
// share a transaction.
type CatalogRepository interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
	GetBySKU(ctx context.Context, ownerID, sku string) (domain.Product, error)
	CountProducts(ctx context.Context, ownerID string) (int64, error)
}
