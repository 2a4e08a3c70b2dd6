package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"chowfast/internal/migrate"
	categoryrepo "chowfast/internal/repository/category"
	productrepo "chowfast/internal/repository/product"
	"chowfast/internal/seed"
	"chowfast/internal/service/catalog"
	"chowfast/internal/service/session"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestCatalogHandlers_IntegrationSeededCatalog(t *testing.T) {
	ctx := context.Background()
	pool := catalogPool(ctx, t)
	defer pool.Close()
	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE products, categories CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if err := seed.Apply(ctx, pool); err != nil {
		t.Fatalf("seed: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	svc := catalog.New(productrepo.NewPostgres(pool, logger), categoryrepo.NewPostgres(pool))
	router, err := buildRouter(logger, Deps{
		CatalogSvc:  svc,
		SessionSvc:  session.New(0, nil),
		CheckoutSvc: &stubCheckout{},
		Orders:      &stubOrders{},
	}, Options{ReadyChecks: []Check{{Name: "catalog", Ping: pool.Ping}}})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	var categories struct {
		Count   int `json:"count"`
		Results []struct {
			Key string `json:"key"`
		} `json:"results"`
	}
	getJSON(t, router, "/categories", &categories)
	if categories.Count != 3 || categories.Results[0].Key != "budget" || categories.Results[2].Key != "bulk" {
		t.Fatalf("unexpected categories %+v", categories)
	}

	var products struct {
		Count   int           `json:"count"`
		Results []productView `json:"results"`
	}
	getJSON(t, router, "/products?category=middle", &products)
	if products.Count != 3 {
		t.Fatalf("expected 3 middle packages, got %d", products.Count)
	}

	var product productView
	getJSON(t, router, "/products/middle-e", &product)
	if product.Price.Wei != "96000000000000" || len(product.Items) != 3 {
		t.Fatalf("unexpected product %+v", product)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rec.Code)
	}
}

func getJSON(t *testing.T, h http.Handler, path string, out interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d body=%s", path, rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("GET %s: unmarshal: %v", path, err)
	}
}

func catalogPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	return pool
}
