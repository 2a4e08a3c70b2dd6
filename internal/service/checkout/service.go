// Package checkout places and cancels orders for a session.
package checkout

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"time"

	"chowfast/internal/chain"
	"chowfast/internal/domain"
	"chowfast/internal/lastorder"
	"chowfast/internal/money"
	"chowfast/internal/order"
	"chowfast/internal/service/session"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contract is the write side of the order contract. *chain.Contract satisfies it.
type Contract interface {
	CreateOrder(opts *bind.TransactOpts, req *domain.OrderRequest) (*types.Transaction, error)
	CancelOrder(opts *bind.TransactOpts, orderID *big.Int) (*types.Transaction, error)
}

type Config struct {
	// Fee is the transaction fee in wei. Nil means money.DefaultFee.
	Fee *big.Int
	// SettleDelay is waited after confirmation before the cart is cleared.
	SettleDelay time.Duration
}

type Service struct {
	contract   Contract
	identity   chain.Identity
	lastOrders lastorder.Store
	fee        *big.Int
	settle     time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// New returns a checkout service. A nil identity leaves the service without a
// wallet: every checkout fails validation on the wallet field.
func New(contract Contract, identity chain.Identity, lastOrders lastorder.Store, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	fee := cfg.Fee
	if fee == nil {
		fee = money.MustWei(money.DefaultFee)
	}
	return &Service{
		contract:   contract,
		identity:   identity,
		lastOrders: lastOrders,
		fee:        new(big.Int).Set(fee),
		settle:     cfg.SettleDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Result describes a confirmed checkout.
type Result struct {
	Receipt   *types.Receipt
	Request   *domain.OrderRequest
	LastOrder domain.LastOrder
}

// Fee returns a copy of the configured transaction fee in wei.
func (s *Service) Fee() *big.Int {
	return new(big.Int).Set(s.fee)
}

// Wallet returns the signing address, if a wallet is configured.
func (s *Service) Wallet() (common.Address, bool) {
	if s.identity == nil {
		return common.Address{}, false
	}
	return s.identity.Address(), true
}

// Checkout submits the session's cart as a createOrder transaction and blocks
// until it is confirmed. On success the last-order hand-off is written and the
// placed lines are deducted from the cart, so items added meanwhile are kept.
// On any failure the cart is left untouched.
func (s *Service) Checkout(ctx context.Context, sess *session.Session, deliveryInfo string) (*Result, error) {
	if s.identity == nil {
		return nil, domain.Invalid("wallet", chain.ErrNoIdentity.Error())
	}
	if strings.TrimSpace(deliveryInfo) == "" {
		return nil, domain.Invalid("deliveryInfo", "delivery information is required")
	}
	if sess.Cart.IsEmpty() {
		return nil, domain.Invalid("cart", "cart is empty")
	}

	lines := sess.Cart.Lines()
	req, err := order.Assemble(lines, deliveryInfo, s.fee)
	if err != nil {
		return nil, err
	}

	receipt, err := sess.Tx.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		opts, err := s.identity.TransactOpts(ctx)
		if err != nil {
			return nil, err
		}
		return s.contract.CreateOrder(opts, req)
	})
	if err != nil {
		s.logger.Printf("checkout session=%s items=%d error=%v", sess.ID, req.Len(), err)
		return nil, err
	}
	s.logger.Printf("checkout session=%s tx=%s value=%s", sess.ID, receipt.TxHash.Hex(), req.Value)

	s.waitSettle(ctx)

	last := domain.LastOrder{
		TxHash:    receipt.TxHash.Hex(),
		Items:     make([]domain.LastOrderItem, 0, len(lines)),
		Total:     money.FromWei(req.Value).String(),
		Timestamp: s.now().UnixMilli(),
	}
	for _, line := range lines {
		last.Items = append(last.Items, domain.LastOrderItem{
			ID:       line.Product.ID,
			Name:     line.Product.Name,
			Price:    line.Product.Price.String(),
			Quantity: line.Quantity,
		})
	}
	if s.lastOrders != nil {
		// outlives the request context
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.lastOrders.Save(saveCtx, sess.ID, last); err != nil {
			s.logger.Printf("checkout session=%s save last order error=%v", sess.ID, err)
		}
		cancel()
	}

	sess.Cart.Deduct(lines)
	return &Result{Receipt: receipt, Request: req, LastOrder: last}, nil
}

// LastOrder consumes the session's last-order hand-off.
func (s *Service) LastOrder(ctx context.Context, sess *session.Session) (*domain.LastOrder, error) {
	if s.lastOrders == nil {
		return nil, domain.ErrNotFound
	}
	return s.lastOrders.Consume(ctx, sess.ID)
}

// Cancel submits cancelOrder through the session's orchestrator.
func (s *Service) Cancel(ctx context.Context, sess *session.Session, orderID *big.Int) (*types.Receipt, error) {
	if s.identity == nil {
		return nil, domain.Invalid("wallet", chain.ErrNoIdentity.Error())
	}
	if orderID == nil || orderID.Sign() <= 0 {
		return nil, domain.Invalid("orderId", "must be a positive integer")
	}
	receipt, err := sess.Tx.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		opts, err := s.identity.TransactOpts(ctx)
		if err != nil {
			return nil, err
		}
		return s.contract.CancelOrder(opts, orderID)
	})
	if err != nil {
		s.logger.Printf("cancel session=%s order=%s error=%v", sess.ID, orderID, err)
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	s.logger.Printf("cancel session=%s order=%s tx=%s", sess.ID, orderID, receipt.TxHash.Hex())
	return receipt, nil
}

// waitSettle gives the chain a moment before the cart is cleared. The
// transaction is already confirmed, so a cancelled ctx only shortens the wait.
func (s *Service) waitSettle(ctx context.Context) {
	if s.settle <= 0 {
		return
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
