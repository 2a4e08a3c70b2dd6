// Package orchestrator drives one on-chain transaction at a time through
// idle, pending and a terminal success or error state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"chowfast/internal/chain"
	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrSubmitInFlight is returned when a submit is attempted while another is pending.
var ErrSubmitInFlight = errors.New("a transaction is already pending")

// SendFunc signs and broadcasts a transaction.
type SendFunc func(ctx context.Context) (*types.Transaction, error)

// Waiter blocks until a transaction is mined. *chain.Contract satisfies it.
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type Orchestrator struct {
	waiter  Waiter
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu    sync.Mutex
	state domain.TxState
}

// New returns an idle orchestrator. A zero timeout waits for the receipt as
// long as ctx allows.
func New(waiter Waiter, timeout time.Duration, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o := &Orchestrator{
		waiter:  waiter,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	o.state = domain.TxState{Status: domain.TxStatusIdle, UpdatedAt: o.now().UTC()}
	return o
}

// State returns a snapshot of the current attempt.
func (o *Orchestrator) State() domain.TxState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset returns a terminal orchestrator to idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Status == domain.TxStatusPending {
		return ErrSubmitInFlight
	}
	o.state = domain.TxState{Status: domain.TxStatusIdle, UpdatedAt: o.now().UTC()}
	return nil
}

// Submit sends a transaction and blocks until it is confirmed or fails.
// It reports success only for a mined receipt with a successful status.
// Errors are classified with chain.Classify.
func (o *Orchestrator) Submit(ctx context.Context, send SendFunc) (receipt *types.Receipt, err error) {
	o.mu.Lock()
	if o.state.Status == domain.TxStatusPending {
		o.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	o.state = domain.TxState{Status: domain.TxStatusPending, UpdatedAt: o.now().UTC()}
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submit panicked: %v", r)
			receipt = nil
		}
		o.finish(receipt, err)
	}()

	return o.run(ctx, send)
}

func (o *Orchestrator) run(ctx context.Context, send SendFunc) (*types.Receipt, error) {
	tx, err := send(ctx)
	if err != nil {
		return nil, chain.Classify(err)
	}
	o.logger.Printf("tx %s broadcast, waiting for confirmation", tx.Hash().Hex())

	waitCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	receipt, err := o.waiter.WaitMined(waitCtx, tx)
	if err != nil {
		if o.timeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), domain.ErrConfirmationTimeout)
		}
		return nil, chain.Classify(err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("tx %s: no receipt", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &domain.RevertError{Reason: "transaction failed in block " + receipt.BlockNumber.String()}
	}
	return receipt, nil
}

func (o *Orchestrator) finish(receipt *types.Receipt, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now().UTC()
	if err != nil {
		o.state = domain.TxState{
			Status:    domain.TxStatusError,
			Error:     chain.Describe(err),
			Kind:      chain.Kind(err),
			UpdatedAt: now,
		}
		o.logger.Printf("tx failed (%s): %v", o.state.Kind, err)
		return
	}
	o.state = domain.TxState{
		Status:    domain.TxStatusSuccess,
		TxHash:    receipt.TxHash,
		UpdatedAt: now,
	}
	o.logger.Printf("tx %s confirmed in block %s", receipt.TxHash.Hex(), receipt.BlockNumber)
}
