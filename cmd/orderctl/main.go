package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"chowfast/internal/chain"
	"chowfast/internal/config"
	"chowfast/internal/domain"
	"chowfast/internal/money"
	"chowfast/internal/orchestrator"
	"chowfast/internal/reconstruct"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func main() {
	var (
		txHash    string
		orderID   string
		buyer     string
		fromBlock uint64
		cancelID  string
	)
	flag.StringVar(&txHash, "tx", "", "Rebuild the order created by this transaction hash")
	flag.StringVar(&orderID, "id", "", "Read the on-chain order with this id")
	flag.StringVar(&buyer, "buyer", "", "List orders created by this buyer address")
	flag.Uint64Var(&fromBlock, "from", 0, "First block to scan with -buyer")
	flag.StringVar(&cancelID, "cancel", "", "Cancel the paid order with this id using the configured wallet")
	flag.Parse()

	if txHash == "" && orderID == "" && buyer == "" && cancelID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "[orderctl] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	orders := reconstruct.New(contract, reconstruct.BreakerSettings{}, logger)

	switch {
	case cancelID != "":
		err = cancel(ctx, cfg, chainID, contract, cancelID, logger)
	case txHash != "":
		var rec *domain.OrderRecord
		if rec, err = orders.ByTxHash(ctx, common.HexToHash(txHash)); err == nil {
			err = printJSON(toOutput(*rec, cfg.ExplorerURL))
		}
	case orderID != "":
		id, ok := new(big.Int).SetString(orderID, 10)
		if !ok {
			logger.Fatalf("invalid order id %q", orderID)
		}
		var rec *domain.OrderRecord
		if rec, err = orders.ByOrderID(ctx, id); err == nil {
			err = printJSON(toOutput(*rec, cfg.ExplorerURL))
		}
	case buyer != "":
		if !common.IsHexAddress(buyer) {
			logger.Fatalf("invalid buyer address %q", buyer)
		}
		var recs []domain.OrderRecord
		if recs, err = orders.ListByBuyer(ctx, common.HexToAddress(buyer), fromBlock); err == nil {
			out := make([]output, 0, len(recs))
			for _, r := range recs {
				out = append(out, toOutput(r, cfg.ExplorerURL))
			}
			err = printJSON(out)
		}
	}
	if err != nil {
		logger.Fatalf("%s", chain.Describe(err))
	}
}

func cancel(ctx context.Context, cfg config.Config, chainID *big.Int, contract *chain.Contract, rawID string, logger *log.Logger) error {
	id, ok := new(big.Int).SetString(rawID, 10)
	if !ok || id.Sign() <= 0 {
		return domain.Invalid("orderId", "must be a positive integer")
	}
	identity, err := chain.LoadIdentity(cfg.WalletPrivateKey, cfg.WalletKeystore, cfg.WalletPassphrase, chainID)
	if err != nil {
		return err
	}
	if identity == nil {
		return domain.Invalid("wallet", chain.ErrNoIdentity.Error())
	}

	tx := orchestrator.New(contract, cfg.ConfirmTimeout, logger)
	receipt, err := tx.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		opts, err := identity.TransactOpts(ctx)
		if err != nil {
			return nil, err
		}
		return contract.CancelOrder(opts, id)
	})
	if err != nil {
		return err
	}
	fmt.Printf("order %s cancelled in %s\n", id, receipt.TxHash.Hex())
	return nil
}

type output struct {
	OrderID      string       `json:"orderId"`
	Buyer        string       `json:"buyer"`
	Total        string       `json:"total"`
	CreatedAt    string       `json:"createdAt"`
	DeliveryInfo string       `json:"deliveryInfo"`
	Status       string       `json:"status,omitempty"`
	Items        []outputItem `json:"items,omitempty"`
	TxHash       string       `json:"txHash,omitempty"`
	Explorer     string       `json:"explorer,omitempty"`
}

type outputItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity uint64 `json:"quantity"`
}

func toOutput(r domain.OrderRecord, explorer string) output {
	out := output{
		Buyer:        r.Buyer.Hex(),
		Total:        money.FormatWithSuffix(money.FromWei(r.Total)),
		CreatedAt:    r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		DeliveryInfo: r.DeliveryInfo,
	}
	if r.OrderID != nil {
		out.OrderID = r.OrderID.String()
	}
	if r.Status != nil {
		out.Status = r.Status.String()
	}
	for _, it := range r.Items {
		out.Items = append(out.Items, outputItem{
			ID:       it.ProductID,
			Name:     it.ProductName,
			Price:    money.FormatWithSuffix(money.FromWei(it.UnitPrice)),
			Quantity: it.Quantity,
		})
	}
	if r.TxHash != (common.Hash{}) {
		out.TxHash = r.TxHash.Hex()
		if explorer != "" {
			out.Explorer = explorer + "/tx/" + out.TxHash
		}
	}
	return out
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
