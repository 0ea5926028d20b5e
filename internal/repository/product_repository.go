package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/importflow/internal/domain"
)

// ErrProductNotFound is returned when no product matches an owner/sku pair.
var ErrProductNotFound = errors.New("product not found")

// productRepository is the PostgreSQL-backed catalog store.
type productRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository creates a catalog repository over a pgx pool.
func NewProductRepository(pool *pgxpool.Pool) CatalogRepository {
	return &productRepository{pool: pool}
}

func (r *productRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (
			id, owner_id, sku, name, description, price, sale_price,
			quantity, category, brand, status, weight, image_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (owner_id, sku) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			sale_price = EXCLUDED.sale_price,
			quantity = EXCLUDED.quantity,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			status = EXCLUDED.status,
			weight = EXCLUDED.weight,
			image_url = EXCLUDED.image_url,
			updated_at = now()`,
		product.ID, product.OwnerID, product.SKU, product.Name, product.Description,
		product.Price, product.SalePrice, product.Quantity, product.Category,
		product.Brand, product.Status, product.Weight, product.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", product.SKU, err)
	}
	return nil
}

func (r *productRepository) GetBySKU(ctx context.Context, ownerID, sku string) (domain.Product, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, sku, name, description, price, sale_price,
		       quantity, category, brand, status, weight, image_url,
		       created_at, updated_at
		FROM products
		WHERE owner_id = $1 AND sku = $2`,
		ownerID, sku,
	)
	var product domain.Product
	err := row.Scan(
		&product.ID, &product.OwnerID, &product.SKU, &product.Name,
		&product.Description, &product.Price, &product.SalePrice,
		&product.Quantity, &product.Category, &product.Brand, &product.Status,
		&product.Weight, &product.ImageURL, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("failed to load product %s: %w", sku, err)
	}
	return product, nil
}

func (r *productRepository) CountProducts(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
