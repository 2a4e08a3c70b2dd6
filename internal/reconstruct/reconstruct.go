// Package reconstruct rebuilds order records from chain data.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"time"

	"chowfast/internal/chain"
	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// Reader is the chain surface the reconstructor reads. *chain.Contract satisfies it.
type Reader interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	GetOrder(ctx context.Context, orderID *big.Int) (*chain.OrderTuple, error)
	FilterOrderCreated(ctx context.Context, buyer *common.Address, fromBlock uint64) ([]types.Log, error)
	DecodeLog(l types.Log) chain.Event
}

// BreakerSettings tunes the circuit breaker guarding remote reads.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Zero means 30s.
	OpenTimeout time.Duration
	// SharedReadTimeout bounds a lookup shared by concurrent callers. Zero means 30s.
	SharedReadTimeout time.Duration
}

type Reconstructor struct {
	reader        Reader
	breaker       *gobreaker.CircuitBreaker[any]
	group         singleflight.Group
	sharedTimeout time.Duration
	logger        *log.Logger
}

func New(reader Reader, settings BreakerSettings, logger *log.Logger) *Reconstructor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.SharedReadTimeout == 0 {
		settings.SharedReadTimeout = 30 * time.Second
	}
	r := &Reconstructor{reader: reader, sharedTimeout: settings.SharedReadTimeout, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "chain-reads",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !chain.IsNetworkError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("breaker %s: %s -> %s", name, from, to)
		},
	})
	return r
}

// ByTxHash rebuilds the order created by the transaction hash.
// Concurrent lookups of the same hash share one remote read.
// A caller whose ctx ends stops waiting without failing the others.
func (r *Reconstructor) ByTxHash(ctx context.Context, hash common.Hash) (*domain.OrderRecord, error) {
	ch := r.group.DoChan(hash.Hex(), func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sharedTimeout)
		defer cancel()
		return r.byTxHash(readCtx, hash)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRecord(res.Val.(*domain.OrderRecord)), nil
	}
}

func (r *Reconstructor) byTxHash(ctx context.Context, hash common.Hash) (*domain.OrderRecord, error) {
	v, err := r.read(func() (any, error) {
		return r.reader.Receipt(ctx, hash)
	})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), domain.ErrNotFound)
		}
		return nil, err
	}
	receipt := v.(*types.Receipt)

	// The first OrderCreated log wins. The contract emits one per transaction.
	var created *chain.OrderCreated
	matches := 0
	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		ev, ok := r.reader.DecodeLog(*l).(*chain.OrderCreated)
		if !ok {
			continue
		}
		matches++
		if created == nil {
			created = ev
		}
	}
	if created == nil {
		return nil, &domain.DecodeError{What: "receipt " + hash.Hex(), Err: errors.New("no OrderCreated event")}
	}
	if matches > 1 {
		r.logger.Printf("receipt %s has %d OrderCreated events, using the first", hash.Hex(), matches)
	}

	rec, err := recordFromEvent(created)
	if err != nil {
		return nil, err
	}
	rec.TxHash = receipt.TxHash
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return rec, nil
}

// ByOrderID reads the stored order summary. Items are not stored on chain
// and are left empty.
func (r *Reconstructor) ByOrderID(ctx context.Context, orderID *big.Int) (*domain.OrderRecord, error) {
	if orderID == nil || orderID.Sign() <= 0 {
		return nil, domain.Invalid("orderId", "must be a positive integer")
	}
	v, err := r.read(func() (any, error) {
		return r.reader.GetOrder(ctx, orderID)
	})
	if err != nil {
		if reason, ok := chain.RevertReason(err); ok && isOrderNotFound(reason) {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return nil, err
	}
	t := v.(*chain.OrderTuple)
	if t.Buyer == (common.Address{}) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if !t.Timestamp.IsInt64() || !t.ItemCount.IsUint64() {
		return nil, &domain.DecodeError{What: "order " + orderID.String(), Err: errors.New("field out of range")}
	}
	status := domain.OrderStatus(t.Status)
	return &domain.OrderRecord{
		OrderID:      new(big.Int).Set(orderID),
		Buyer:        t.Buyer,
		Total:        t.Total,
		CreatedAt:    time.Unix(t.Timestamp.Int64(), 0).UTC(),
		DeliveryInfo: t.DeliveryInfo,
		Subtotal:     t.Subtotal,
		Fee:          t.Fee,
		Status:       &status,
		ItemCount:    t.ItemCount.Uint64(),
	}, nil
}

// ListByBuyer rebuilds every order buyer created from fromBlock on, oldest first.
// Logs that fail to decode are skipped.
func (r *Reconstructor) ListByBuyer(ctx context.Context, buyer common.Address, fromBlock uint64) ([]domain.OrderRecord, error) {
	v, err := r.read(func() (any, error) {
		return r.reader.FilterOrderCreated(ctx, &buyer, fromBlock)
	})
	if err != nil {
		return nil, err
	}
	logs := v.([]types.Log)

	out := make([]domain.OrderRecord, 0, len(logs))
	for _, l := range logs {
		ev, ok := r.reader.DecodeLog(l).(*chain.OrderCreated)
		if !ok || ev.Buyer != buyer {
			continue
		}
		rec, err := recordFromEvent(ev)
		if err != nil {
			r.logger.Printf("skip log %s/%d: %v", l.TxHash.Hex(), l.Index, err)
			continue
		}
		rec.TxHash = l.TxHash
		rec.BlockNumber = l.BlockNumber
		out = append(out, *rec)
	}
	return out, nil
}

// read runs fn through the breaker. An open breaker and transport failures
// surface as domain.ErrRemoteUnavailable.
func (r *Reconstructor) read(fn func() (any, error)) (any, error) {
	v, err := r.breaker.Execute(fn)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	case chain.IsNetworkError(err):
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	default:
		return nil, err
	}
}

// isOrderNotFound matches the revert the contract uses for unknown ids.
func isOrderNotFound(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), "Order not found")
}

func recordFromEvent(e *chain.OrderCreated) (*domain.OrderRecord, error) {
	what := "OrderCreated " + e.OrderId.String()
	if !e.Timestamp.IsInt64() {
		return nil, &domain.DecodeError{What: what, Err: errors.New("timestamp out of range")}
	}
	items := make([]domain.OrderItem, len(e.ProductIds))
	for i := range e.ProductIds {
		if !e.Quantities[i].IsUint64() {
			return nil, &domain.DecodeError{What: what, Err: fmt.Errorf("quantity %d out of range", i)}
		}
		items[i] = domain.OrderItem{
			ProductID:   e.ProductIds[i],
			ProductName: e.ProductNames[i],
			UnitPrice:   e.Prices[i],
			Quantity:    e.Quantities[i].Uint64(),
		}
	}
	return &domain.OrderRecord{
		OrderID:      e.OrderId,
		Buyer:        e.Buyer,
		Total:        e.Total,
		CreatedAt:    time.Unix(e.Timestamp.Int64(), 0).UTC(),
		DeliveryInfo: e.DeliveryInfo,
		Items:        items,
	}, nil
}

func cloneRecord(rec *domain.OrderRecord) *domain.OrderRecord {
	out := *rec
	out.Items = append([]domain.OrderItem(nil), rec.Items...)
	return &out
}
