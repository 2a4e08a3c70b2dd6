package httpserver

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"chowfast/internal/domain"
	"chowfast/internal/service/checkout"
	"chowfast/internal/service/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CatalogService interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type SessionService interface {
	Issue(ctx context.Context) (string, *session.Session, error)
	Lookup(ctx context.Context, token string) (*session.Session, error)
	TTLSeconds() int
}

type CheckoutService interface {
	Checkout(ctx context.Context, sess *session.Session, deliveryInfo string) (*checkout.Result, error)
	LastOrder(ctx context.Context, sess *session.Session) (*domain.LastOrder, error)
	Cancel(ctx context.Context, sess *session.Session, orderID *big.Int) (*types.Receipt, error)
	Fee() *big.Int
	Wallet() (common.Address, bool)
}

type OrderReader interface {
	ByTxHash(ctx context.Context, hash common.Hash) (*domain.OrderRecord, error)
	ByOrderID(ctx context.Context, orderID *big.Int) (*domain.OrderRecord, error)
	ListByBuyer(ctx context.Context, buyer common.Address, fromBlock uint64) ([]domain.OrderRecord, error)
}

// Deps holds the services the API is built on.
type Deps struct {
	CatalogSvc  CatalogService
	SessionSvc  SessionService
	CheckoutSvc CheckoutService
	Orders      OrderReader
}

type Options struct {
	ExplorerURL string
	CORSOrigins []string
	// LookupRatePerSecond limits order lookups per client. Zero disables the limit.
	LookupRatePerSecond float64
	// ReadyChecks back /readyz. Without any the service never reports ready.
	ReadyChecks  []Check
	ReadyTimeout time.Duration
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, deps Deps, opts Options) (*gin.Engine, error) {
	if deps.CatalogSvc == nil || deps.SessionSvc == nil || deps.CheckoutSvc == nil || deps.Orders == nil {
		return nil, errors.New("httpserver: missing service dependency")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", sessionHeader},
			ExposeHeaders:    []string{sessionHeader},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &handlers{
		catalog:  deps.CatalogSvc,
		sessions: deps.SessionSvc,
		checkout: deps.CheckoutSvc,
		orders:   deps.Orders,
		explorer: opts.ExplorerURL,
		logger:   logger,
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(opts.ReadyChecks, opts.ReadyTimeout, logger))

	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)
	router.GET("/categories", h.listCategories)

	router.POST("/sessions", h.createSession)

	withSession := router.Group("/", sessionMiddleware(deps.SessionSvc))
	withSession.GET("/cart", h.getCart)
	withSession.POST("/cart/items", h.addCartItem)
	withSession.PUT("/cart/items/:productId", h.updateCartItem)
	withSession.DELETE("/cart/items/:productId", h.removeCartItem)
	withSession.DELETE("/cart", h.clearCart)
	withSession.POST("/checkout", h.placeOrder)
	withSession.GET("/checkout/status", h.checkoutStatus)
	withSession.POST("/checkout/reset", h.resetCheckout)
	withSession.GET("/orders/last", h.lastOrder)
	withSession.POST("/orders/:id/cancel", h.cancelOrder)

	lookups := router.Group("/orders")
	if opts.LookupRatePerSecond > 0 {
		lookups.Use(newLookupLimiter(opts.LookupRatePerSecond, time.Now).middleware())
	}
	lookups.GET("", h.listOrders)
	lookups.GET("/tx/:hash", h.orderByTx)
	lookups.GET("/:id", h.orderByID)

	return router, nil
}

type handlers struct {
	catalog  CatalogService
	sessions SessionService
	checkout CheckoutService
	orders   OrderReader
	explorer string
	logger   *log.Logger
}
