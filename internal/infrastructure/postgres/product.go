package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
)

// ProductRepository implements product.Repository on postgres. The stock
// reservation is a conditional UPDATE, so the check-and-decrement happens
// atomically inside the database and the quantity check constraint can never
// be violated by racing callers.
//
// Schema:
//
//	CREATE TABLE products (
//	    id          TEXT PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    price       NUMERIC(12,2) NOT NULL,
//	    images      TEXT[] NOT NULL DEFAULT '{}',
//	    category    TEXT NOT NULL DEFAULT '',
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE product_stock (
//	    product_id TEXT NOT NULL REFERENCES products (id),
//	    size       TEXT NOT NULL,
//	    quantity   INT  NOT NULL CHECK (quantity >= 0),
//	    PRIMARY KEY (product_id, size)
//	);
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	p := &domain.Product{ID: productID, Stock: make(map[string]int)}

	var price string
	err := r.pool.QueryRow(ctx,
		`SELECT name, description, price::text, images, category, created_at, updated_at
		   FROM products WHERE id = $1`,
		productID,
	).Scan(&p.Name, &p.Description, &price, &p.Images, &p.Category, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load product: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("postgres: parse price: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT size, quantity FROM product_stock WHERE product_id = $1`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load stock: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var size string
		var qty int
		if err := rows.Scan(&size, &qty); err != nil {
			return nil, fmt.Errorf("postgres: scan stock: %w", err)
		}
		p.Stock[size] = qty
	}
	return p, rows.Err()
}

func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO products (id, name, description, price, images, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    price = EXCLUDED.price,
		    images = EXCLUDED.images,
		    category = EXCLUDED.category,
		    updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Images, p.Category, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert product: %w", err)
	}

	for size, qty := range p.Stock {
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_stock (product_id, size, quantity)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (product_id, size) DO UPDATE SET quantity = EXCLUDED.quantity`,
			p.ID, size, qty,
		); err != nil {
			return fmt.Errorf("postgres: upsert stock: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ProductRepository) ReserveStock(ctx context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if size == "" {
		size = domain.SizeUnsized
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE product_stock
		    SET quantity = quantity - $3
		  WHERE product_id = $1 AND size = $2 AND quantity >= $3`,
		productID, size, qty,
	)
	if err != nil {
		return fmt.Errorf("postgres: reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, productID, size)
	}
	return nil
}

func (r *ProductRepository) ReleaseStock(ctx context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if size == "" {
		size = domain.SizeUnsized
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE product_stock
		    SET quantity = quantity + $3
		  WHERE product_id = $1 AND size = $2`,
		productID, size, qty,
	)
	if err != nil {
		return fmt.Errorf("postgres: release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, productID, size)
	}
	return nil
}

// classifyMiss distinguishes a missing row from an insufficient counter so
// callers get the precise domain error.
func (r *ProductRepository) classifyMiss(ctx context.Context, productID, size string) error {
	var quantity int
	err := r.pool.QueryRow(ctx,
		`SELECT quantity FROM product_stock WHERE product_id = $1 AND size = $2`,
		productID, size,
	).Scan(&quantity)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if probeErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`,
			productID,
		).Scan(&exists); probeErr != nil {
			return fmt.Errorf("postgres: probe product: %w", probeErr)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrSizeNotFound
	case err != nil:
		return fmt.Errorf("postgres: probe stock: %w", err)
	default:
		return domain.ErrInsufficientStock
	}
}
