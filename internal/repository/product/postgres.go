package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"chowfast/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const selectColumns = `
SELECT p.id, p.name, p.description, p.price::text, p.category, p.items, p.image, p.created_at
FROM products p
JOIN categories c ON c.key = p.category
`

func (r *postgresRepo) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`ORDER BY c.position, p.price, p.id`)
	if err != nil {
		r.logger.Printf("product repo: list error=%v", err)
		return nil, err
	}
	result, err := collect(rows)
	if err != nil {
		r.logger.Printf("product repo: list rows error=%v", err)
		return nil, err
	}
	r.logger.Printf("product repo: list count=%d", len(result))
	return result, nil
}

func (r *postgresRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`WHERE p.category = $1 ORDER BY p.price, p.id`, category)
	if err != nil {
		r.logger.Printf("product repo: list category=%s error=%v", category, err)
		return nil, err
	}
	result, err := collect(rows)
	if err != nil {
		r.logger.Printf("product repo: list rows category=%s error=%v", category, err)
		return nil, err
	}
	r.logger.Printf("product repo: list category=%s count=%d", category, len(result))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, selectColumns+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Printf("product repo: get id=%s not found", id)
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("product repo: get id=%s error=%v", id, err)
		return nil, err
	}
	r.logger.Printf("product repo: get id=%s price=%s", id, p.Price)
	return p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, name, description, price, category, items, image)
VALUES ($1, $2, $3, $4::numeric, $5, COALESCE($6::text[], '{}'), $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price = EXCLUDED.price,
    category = EXCLUDED.category,
    items = EXCLUDED.items,
    image = EXCLUDED.image
RETURNING created_at
`
	if product.ID == "" {
		return nil, domain.Invalid("id", "required")
	}
	if product.Price.IsNegative() {
		return nil, domain.Invalid("price", "must be non-negative")
	}
	res := product
	res.Items = append([]string(nil), product.Items...)
	err := r.pool.QueryRow(ctx, q,
		product.ID,
		product.Name,
		product.Description,
		product.Price.String(),
		product.Category,
		product.Items,
		product.Image,
	).Scan(&res.CreatedAt)
	if err != nil {
		r.logger.Printf("product repo: upsert id=%s error=%v", product.ID, err)
		return nil, fmt.Errorf("upsert product %s: %w", product.ID, err)
	}
	r.logger.Printf("product repo: upserted id=%s category=%s", res.ID, res.Category)
	return &res, nil
}

func collect(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category, &p.Items, &p.Image, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return &p, nil
}
