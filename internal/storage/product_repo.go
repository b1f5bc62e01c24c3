package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_product_store.go -package=mocks productsearch/internal/storage ProductStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"productsearch/internal/catalog"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// maxQueryParams keeps IN clauses below SQLite's host parameter limit.
const maxQueryParams = 500

// ProductStore defines the interface for product metadata storage operations.
type ProductStore interface {
	// Upsert inserts new products or replaces existing ones by product id.
	Upsert(ctx context.Context, products []catalog.Product) (int, error)
	// GetByID gets a product by id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ProductRecord, error)
	// GetByIDs returns the products found for ids keyed by id. Missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	// ListAll returns all products ordered by id.
	ListAll(ctx context.Context) ([]catalog.Product, error)
	// Count returns the number of products.
	Count(ctx context.Context) (int, error)
}

// ProductRepo provides methods for product operations.
// It implements the ProductStore interface.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

const productColumns = "product_id, name, category, price, about, specification, image_field"

// Upsert inserts new products or replaces existing ones by product id in a single transaction.
func (r *ProductRepo) Upsert(ctx context.Context, products []catalog.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (`+productColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(product_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			price = excluded.price,
			about = excluded.about,
			specification = excluded.specification,
			image_field = excluded.image_field,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, p := range products {
		if p.ID == "" {
			return 0, fmt.Errorf("product with empty id")
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Category, p.Price, p.About, p.Specification, p.ImageField); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit products: %w", err)
	}
	return len(products), nil
}

// GetByID gets a product by id. Returns ErrNotFound if not found.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*ProductRecord, error) {
	var rec ProductRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT "+productColumns+", updated_at FROM products WHERE product_id = ?",
		id,
	).Scan(&rec.ID, &rec.Name, &rec.Category, &rec.Price, &rec.About, &rec.Specification, &rec.ImageField, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return &rec, nil
}

// GetByIDs returns the products found for ids keyed by id.
func (r *ProductRepo) GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	result := make(map[string]catalog.Product, len(ids))

	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := r.db.QueryContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE product_id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query products: %w", err)
		}
		products, err := scanProducts(rows)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			result[p.ID] = p
		}
	}

	return result, nil
}

// ListAll returns all products ordered by id.
func (r *ProductRepo) ListAll(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return scanProducts(rows)
}

// Count returns the number of products.
func (r *ProductRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

func scanProducts(rows *sql.Rows) ([]catalog.Product, error) {
	defer func() {
		_ = rows.Close()
	}()

	var products []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.About, &p.Specification, &p.ImageField); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}
