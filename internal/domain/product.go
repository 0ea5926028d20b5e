package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog record as written by the batch executor. Only the
// executor crosses the import/catalog boundary.
type Product struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"ownerId"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	SalePrice   *float64  `json:"salePrice,omitempty"`
	Quantity    int64     `json:"quantity"`
	Category    string    `json:"category,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Status      string    `json:"status"`
	Weight      *float64  `json:"weight,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
