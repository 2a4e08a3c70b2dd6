package main

import (
	"context"
	"errors"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chowfast/internal/chain"
	"chowfast/internal/config"
	"chowfast/internal/db"
	"chowfast/internal/httpserver"
	"chowfast/internal/lastorder"
	"chowfast/internal/money"
	"chowfast/internal/orchestrator"
	"chowfast/internal/reconstruct"
	categoryrepo "chowfast/internal/repository/category"
	productrepo "chowfast/internal/repository/product"
	"chowfast/internal/service/catalog"
	"chowfast/internal/service/checkout"
	"chowfast/internal/service/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, cfg.Pool("chowfast-api"))
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	if !common.IsHexAddress(cfg.ContractAddress) {
		logger.Fatalf("CONTRACT_ADDRESS must be a hex address, got %q", cfg.ContractAddress)
	}
	chainID := big.NewInt(cfg.ChainID)
	rpc, err := chain.Dial(ctx, cfg.RPCURL, chainID)
	if err != nil {
		logger.Fatalf("connect to rpc: %v", err)
	}
	defer rpc.Close()
	contract := chain.NewContract(common.HexToAddress(cfg.ContractAddress), rpc)

	identity, err := chain.LoadIdentity(cfg.WalletPrivateKey, cfg.WalletKeystore, cfg.WalletPassphrase, chainID)
	if err != nil {
		logger.Fatalf("load wallet: %v", err)
	}
	if identity == nil {
		logger.Printf("no wallet configured, checkout is disabled")
	} else {
		logger.Printf("signing as %s", identity.Address().Hex())
	}

	feeEther, err := money.ParseEther(cfg.TransactionFee)
	if err != nil {
		logger.Fatalf("TRANSACTION_FEE: %v", err)
	}
	fee, err := money.ToWei(feeEther)
	if err != nil {
		logger.Fatalf("TRANSACTION_FEE: %v", err)
	}

	lastOrders, redisCheck, closeStore := lastOrderStore(ctx, cfg, logger)
	defer closeStore()

	checks := []httpserver.Check{
		{Name: "catalog", Ping: dbpool.Ping},
		{Name: "rpc", Ping: func(ctx context.Context) error {
			_, err := rpc.BlockNumber(ctx)
			return err
		}},
	}
	if redisCheck != nil {
		checks = append(checks, *redisCheck)
	}

	catalogService := catalog.New(productrepo.NewPostgres(dbpool, logger), categoryrepo.NewPostgres(dbpool))
	sessionService := session.New(cfg.SessionTTL, func() *orchestrator.Orchestrator {
		return orchestrator.New(contract, cfg.ConfirmTimeout, logger)
	})
	checkoutService := checkout.New(contract, identity, lastOrders, checkout.Config{
		Fee:         fee,
		SettleDelay: cfg.SettleDelay,
	}, logger)
	reconstructor := reconstruct.New(contract, reconstruct.BreakerSettings{}, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		CatalogSvc:  catalogService,
		SessionSvc:  sessionService,
		CheckoutSvc: checkoutService,
		Orders:      reconstructor,
	}, httpserver.Options{
		ExplorerURL:         cfg.ExplorerURL,
		CORSOrigins:         cfg.CORSOrigins,
		LookupRatePerSecond: cfg.LookupRatePerSecond,
		ReadyChecks:         checks,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeSessions(purgeCtx, sessionService, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}

// lastOrderStore uses Redis when REDIS_ADDR is set and memory otherwise.
func lastOrderStore(ctx context.Context, cfg config.Config, logger *log.Logger) (lastorder.Store, *httpserver.Check, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not set, keeping last orders in memory")
		return lastorder.NewMemory(cfg.LastOrderTTL), nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatalf("connect to redis: %v", err)
	}
	check := &httpserver.Check{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
	return lastorder.NewRedis(client, cfg.LastOrderTTL), check, func() { _ = client.Close() }
}

func purgeSessions(ctx context.Context, sessions *session.Service, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Purge(); n > 0 {
				logger.Printf("purged %d expired sessions", n)
			}
		}
	}
}
