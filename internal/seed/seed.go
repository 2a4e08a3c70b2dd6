package seed

import (
	"context"
	"fmt"

	"chowfast/internal/domain"
	categoryrepo "chowfast/internal/repository/category"
	productrepo "chowfast/internal/repository/product"
	"chowfast/internal/service/catalog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Writer stores catalog entries. *catalog.Service satisfies it.
type Writer interface {
	UpsertCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
	UpsertProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
}

// Apply inserts the ChowFast catalog. It is idempotent via ON CONFLICT.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	svc := catalog.New(productrepo.NewPostgres(pool, nil), categoryrepo.NewPostgres(pool))
	return ApplyTo(ctx, svc)
}

// ApplyTo writes categories first so products can reference them.
func ApplyTo(ctx context.Context, w Writer) error {
	for _, c := range Categories() {
		if _, err := w.UpsertCategory(ctx, c); err != nil {
			return fmt.Errorf("upsert category %s: %w", c.Key, err)
		}
	}
	for _, p := range Products() {
		if _, err := w.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return nil
}

func Categories() []domain.Category {
	return []domain.Category{
		{
			Key:         "budget",
			Title:       "Budget-Friendly Packages",
			Description: "For students and quick, affordable snacks",
			PriceRange:  "0.000016-0.00004 ETH",
			Position:    0,
		},
		{
			Key:         "middle",
			Title:       "Middle-Class Packages",
			Description: "Better quality snacks and drinks",
			PriceRange:  "0.000064-0.00012 ETH",
			Position:    1,
		},
		{
			Key:         "bulk",
			Title:       "Bulk/Event Packages",
			Description: "For parties, meetings, and events",
			PriceRange:  "0.0008+ ETH",
			Position:    2,
		},
	}
}

func Products() []domain.Product {
	p := func(id, name, desc, price, category string, items ...string) domain.Product {
		return domain.Product{
			ID:          id,
			Name:        name,
			Description: desc,
			Price:       decimal.RequireFromString(price),
			Category:    category,
			Items:       items,
			Image:       "/images/packages/" + id + ".jpg",
		}
	}
	return []domain.Product{
		p("budget-a", "Quick Refresh Package", "Perfect for a quick snack break", "0.000016", "budget",
			"Sachet water", "Packet of biscuits (Shortcake/Digestive)"),
		p("budget-b", "Energy Boost Package", "Get energized with this combo", "0.000032", "budget",
			"Gala (beef roll)", "Soft drink (Coke/Pepsi/Fanta)"),
		p("budget-c", "Morning Starter Package", "Start your day right", "0.00004", "budget",
			"Small loaf of bread", "Sachet water", "Small butter spread"),
		p("middle-d", "Premium Snack Package", "Quality snacks for your break", "0.000064", "middle",
			"Vega milk", "Meat pie", "Bottled water"),
		p("middle-e", "Nutritious Combo", "Healthy and delicious", "0.000096", "middle",
			"Nutri milk", "Sausage roll", "Juice box"),
		p("middle-f", "Complete Meal Package", "Everything you need", "0.00012", "middle",
			"Yogurt drink", "Chicken roll", "Fresh fruit (banana/apple)"),
		p("bulk-g", "Drinks Party Package", "Perfect for your party", "0.0008", "bulk",
			"50 bottles of soft drinks (mixed flavors)"),
		p("bulk-h", "Mega Snacks Package", "Feed your entire event", "0.00128", "bulk",
			"100 meat pies", "100 small chops"),
		p("bulk-i", "Complete Event Package", "Everything for your event", "0.0024", "bulk",
			"Cake", "200 drinks", "200 assorted snacks"),
	}
}
