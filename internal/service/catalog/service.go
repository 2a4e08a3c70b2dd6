// Package catalog serves the read-only product bundles and their categories.
package catalog

import (
	"context"
	"strings"

	"chowfast/internal/domain"
	categoryrepo "chowfast/internal/repository/category"
	productrepo "chowfast/internal/repository/product"
)

type Service struct {
	products   productrepo.Repository
	categories categoryrepo.Repository
}

func New(products productrepo.Repository, categories categoryrepo.Repository) *Service {
	return &Service{products: products, categories: categories}
}

// ListProducts returns all products, or only those in category when it is set.
func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return s.products.List(ctx)
	}
	return s.products.ListByCategory(ctx, category)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid("productId", "required")
	}
	return s.products.GetByID(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

func (s *Service) UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	return s.products.Upsert(ctx, p)
}

func (s *Service) UpsertCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	return s.categories.Upsert(ctx, c)
}
