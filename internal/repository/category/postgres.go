package category

import (
	"context"

	"chowfast/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) List(ctx context.Context) ([]domain.Category, error) {
	const q = `
SELECT key, title, description, price_range, position, created_at
FROM categories
ORDER BY position ASC, key ASC
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.Key, &c.Title, &c.Description, &c.PriceRange, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, c domain.Category) (*domain.Category, error) {
	const q = `
INSERT INTO categories (key, title, description, price_range, position)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key) DO UPDATE
SET title = EXCLUDED.title,
    description = COALESCE(NULLIF(EXCLUDED.description, ''), categories.description),
    price_range = COALESCE(NULLIF(EXCLUDED.price_range, ''), categories.price_range),
    position = EXCLUDED.position
RETURNING description, price_range, created_at
`
	out := c
	err := r.pool.QueryRow(ctx, q, c.Key, c.Title, c.Description, c.PriceRange, c.Position).
		Scan(&out.Description, &out.PriceRange, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
