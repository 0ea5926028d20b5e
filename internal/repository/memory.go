package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/importflow/internal/domain"
)

// MemoryCatalog is an in-process CatalogRepository for tests and DB-less
// development runs.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product

	// FailSKUs simulates per-row write failures in tests.
	FailSKUs map[string]error
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]domain.Product)}
}

func (m *MemoryCatalog) key(ownerID, sku string) string {
	return ownerID + "/" + sku
}

func (m *MemoryCatalog) UpsertProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailSKUs[product.SKU]; ok {
		return err
	}
	now := time.Now()
	key := m.key(product.OwnerID, product.SKU)
	if existing, ok := m.products[key]; ok {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
	} else {
		if product.ID == uuid.Nil {
			product.ID = uuid.New()
		}
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	m.products[key] = product
	return nil
}

func (m *MemoryCatalog) GetBySKU(ctx context.Context, ownerID, sku string) (domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	product, ok := m.products[m.key(ownerID, sku)]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}

func (m *MemoryCatalog) CountProducts(ctx context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for key := range m.products {
		if len(key) > len(ownerID) && key[:len(ownerID)+1] == ownerID+"/" {
			count++
		}
	}
	return count, nil
}
