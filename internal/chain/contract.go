// Package chain binds the ChowFastOrder contract.
package chain

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"math/big"

	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	MethodCreateOrder    = "createOrder"
	MethodGetOrder       = "getOrder"
	MethodCancelOrder    = "cancelOrder"
	MethodGetTotalOrders = "getTotalOrders"

	EventOrderCreated       = "OrderCreated"
	EventOrderStatusUpdated = "OrderStatusUpdated"
	EventPaymentReceived    = "PaymentReceived"
	EventFundsWithdrawn     = "FundsWithdrawn"
)

//go:embed abi/ChowFastOrder.json
var abiJSON []byte

var contractABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("parse ChowFastOrder abi: %v", err))
	}
	return parsed
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return contractABI
}

// Backend is the chain client surface the contract needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Contract is a ChowFastOrder deployment.
type Contract struct {
	address common.Address
	backend Backend
	bound   *bind.BoundContract
}

func NewContract(address common.Address, backend Backend) *Contract {
	return &Contract{
		address: address,
		backend: backend,
		bound:   bind.NewBoundContract(address, contractABI, backend, backend, backend),
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

// CreateOrder sends createOrder with req.Value attached.
func (c *Contract) CreateOrder(opts *bind.TransactOpts, req *domain.OrderRequest) (*types.Transaction, error) {
	o := *opts
	o.Value = new(big.Int).Set(req.Value)
	return c.bound.Transact(&o, MethodCreateOrder,
		req.ProductIDs,
		req.ProductNames,
		req.UnitPrices,
		req.Quantities,
		req.Subtotal,
		req.DeliveryInfo,
	)
}

// CancelOrder sends cancelOrder. No value is attached.
func (c *Contract) CancelOrder(opts *bind.TransactOpts, orderID *big.Int) (*types.Transaction, error) {
	o := *opts
	o.Value = nil
	return c.bound.Transact(&o, MethodCancelOrder, orderID)
}

// OrderTuple is the positional result of getOrder.
type OrderTuple struct {
	Buyer        common.Address
	Subtotal     *big.Int
	Fee          *big.Int
	Total        *big.Int
	Timestamp    *big.Int
	Status       uint8
	DeliveryInfo string
	ItemCount    *big.Int
}

// GetOrder calls getOrder and decodes the tuple field by field.
func (c *Contract) GetOrder(ctx context.Context, orderID *big.Int) (*OrderTuple, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetOrder, orderID); err != nil {
		if isUnpackError(err) {
			return nil, &domain.DecodeError{What: "getOrder result", Err: err}
		}
		return nil, err
	}
	if len(out) != 8 {
		return nil, &domain.DecodeError{What: "getOrder result", Err: fmt.Errorf("expected 8 fields, got %d", len(out))}
	}

	var (
		t  OrderTuple
		ok bool
	)
	if t.Buyer, ok = out[0].(common.Address); !ok {
		return nil, fieldError("buyer", out[0])
	}
	if t.Subtotal, ok = out[1].(*big.Int); !ok {
		return nil, fieldError("subtotal", out[1])
	}
	if t.Fee, ok = out[2].(*big.Int); !ok {
		return nil, fieldError("fee", out[2])
	}
	if t.Total, ok = out[3].(*big.Int); !ok {
		return nil, fieldError("total", out[3])
	}
	if t.Timestamp, ok = out[4].(*big.Int); !ok {
		return nil, fieldError("timestamp", out[4])
	}
	if t.Status, ok = out[5].(uint8); !ok {
		return nil, fieldError("status", out[5])
	}
	if t.DeliveryInfo, ok = out[6].(string); !ok {
		return nil, fieldError("deliveryInfo", out[6])
	}
	if t.ItemCount, ok = out[7].(*big.Int); !ok {
		return nil, fieldError("itemCount", out[7])
	}
	return &t, nil
}

// TotalOrders returns the contract's order counter.
func (c *Contract) TotalOrders(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetTotalOrders); err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, &domain.DecodeError{What: "getTotalOrders result", Err: fmt.Errorf("expected 1 field, got %d", len(out))}
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fieldError("total orders", out[0])
	}
	return n, nil
}

// Receipt fetches a transaction receipt. Unknown hashes return ethereum.NotFound.
func (c *Contract) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.backend.TransactionReceipt(ctx, hash)
}

// WaitMined blocks until tx has a receipt or ctx is done.
func (c *Contract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

// FilterOrderCreated returns OrderCreated logs from fromBlock on, optionally for one buyer.
func (c *Contract) FilterOrderCreated(ctx context.Context, buyer *common.Address, fromBlock uint64) ([]types.Log, error) {
	topics := [][]common.Hash{{contractABI.Events[EventOrderCreated].ID}, nil}
	if buyer != nil {
		topics = append(topics, []common.Hash{common.BytesToHash(buyer.Bytes())})
	}
	return c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.address},
		Topics:    topics,
	})
}

func fieldError(field string, got interface{}) error {
	return &domain.DecodeError{What: "getOrder " + field, Err: fmt.Errorf("unexpected type %T", got)}
}
