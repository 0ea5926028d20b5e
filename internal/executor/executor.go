// Package executor commits a fully-fixed session to the catalog store.
// It is the only component that crosses the import/catalog boundary.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/repository"
)

// RowFailure reports one row that could not be imported.
type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result summarizes an execution. Rows that succeeded stay imported even
// when others fail: at-least-once per row, never all-or-nothing.
type Result struct {
	RecordsImported int          `json:"recordsImported"`
	Failed          []RowFailure `json:"failed,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// Executor writes session rows to the durable catalog store.
type Executor struct {
	catalog repository.CatalogRepository
	schema  map[string]domain.FieldSpec
	log     *logrus.Logger
}

// New creates an executor writing to the given catalog repository.
func New(catalog repository.CatalogRepository, log *logrus.Logger) *Executor {
	return &Executor{
		catalog: catalog,
		schema:  domain.FieldSpecByName(domain.ProductSchema()),
		log:     log,
	}
}

// Execute imports every row of the session. It refuses sessions that are
// not preview-ready. Each row is an independent unit of work; a failed
// write is reported and does not roll back earlier rows. Unresolved
// warnings are surfaced in the result rather than dropped.
func (e *Executor) Execute(ctx context.Context, sess domain.ImportSession) (Result, error) {
	if sess.State != domain.StatePreviewReady {
		return Result{}, fmt.Errorf("session %s is %s, not %s: %w",
			sess.ID, sess.State, domain.StatePreviewReady, domain.ErrPreconditionFailed)
	}
	if blocking := sess.UnresolvedErrors(domain.SeverityError); len(blocking) > 0 {
		return Result{}, fmt.Errorf("%d unresolved blocking errors: %w", len(blocking), domain.ErrPreconditionFailed)
	}

	var result Result
	for rowIdx := range sess.Rows {
		product, err := e.buildProduct(sess, rowIdx)
		if err != nil {
			result.Failed = append(result.Failed, RowFailure{Row: rowIdx, Reason: err.Error()})
			continue
		}
		if err := e.catalog.UpsertProduct(ctx, product); err != nil {
			if e.log != nil {
				e.log.WithError(err).WithFields(logrus.Fields{
					"session": sess.ID,
					"row":     rowIdx,
				}).Warn("catalog write failed")
			}
			result.Failed = append(result.Failed, RowFailure{Row: rowIdx, Reason: err.Error()})
			continue
		}
		result.RecordsImported++
	}

	for _, ve := range sess.UnresolvedErrors(domain.SeverityWarning) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("row %d %s: %s", ve.Row, ve.Field, ve.Message))
	}
	return result, nil
}

// buildProduct maps one row through the confirmed field mappings and
// coerces values into the catalog record shape.
func (e *Executor) buildProduct(sess domain.ImportSession, rowIdx int) (domain.Product, error) {
	product := domain.Product{OwnerID: sess.OwnerID}

	sku, _ := sess.ValueAt(rowIdx, "sku")
	product.SKU = strings.TrimSpace(sku)
	if product.SKU == "" {
		return domain.Product{}, fmt.Errorf("missing sku")
	}
	name, _ := sess.ValueAt(rowIdx, "name")
	product.Name = strings.TrimSpace(name)
	if product.Name == "" {
		return domain.Product{}, fmt.Errorf("missing name")
	}

	price, err := e.floatField(sess, rowIdx, "price")
	if err != nil {
		return domain.Product{}, err
	}
	if price == nil {
		return domain.Product{}, fmt.Errorf("missing price")
	}
	product.Price = *price

	if product.SalePrice, err = e.floatField(sess, rowIdx, "sale_price"); err != nil {
		return domain.Product{}, err
	}
	if product.Weight, err = e.floatField(sess, rowIdx, "weight"); err != nil {
		return domain.Product{}, err
	}

	if raw, _ := sess.ValueAt(rowIdx, "quantity"); strings.TrimSpace(raw) != "" {
		quantity, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return domain.Product{}, fmt.Errorf("quantity %q is not an integer", raw)
		}
		product.Quantity = quantity
	}

	description, _ := sess.ValueAt(rowIdx, "description")
	product.Description = strings.TrimSpace(description)
	category, _ := sess.ValueAt(rowIdx, "category")
	product.Category = strings.TrimSpace(category)
	brand, _ := sess.ValueAt(rowIdx, "brand")
	product.Brand = strings.TrimSpace(brand)
	imageURL, _ := sess.ValueAt(rowIdx, "image_url")
	product.ImageURL = strings.TrimSpace(imageURL)

	status, _ := sess.ValueAt(rowIdx, "status")
	product.Status = strings.ToLower(strings.TrimSpace(status))
	if product.Status == "" {
		product.Status = e.schema["status"].Default
	}
	return product, nil
}

func (e *Executor) floatField(sess domain.ImportSession, rowIdx int, field string) (*float64, error) {
	raw, _ := sess.ValueAt(rowIdx, field)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a number", field, raw)
	}
	return &parsed, nil
}
