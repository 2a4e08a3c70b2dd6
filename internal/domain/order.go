package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderRequest is the exact argument shape of the contract's createOrder call.
// The four item slices are parallel and follow cart line order.
type OrderRequest struct {
	ProductIDs   []string
	ProductNames []string
	UnitPrices   []*big.Int
	Quantities   []*big.Int
	Subtotal     *big.Int
	Fee          *big.Int
	// Value is attached to the call: Subtotal + Fee.
	Value        *big.Int
	DeliveryInfo string
}

// Len returns the number of items in the request.
func (r *OrderRequest) Len() int {
	return len(r.ProductIDs)
}

// OrderStatus mirrors the contract's order status enum.
type OrderStatus uint8

const (
	OrderStatusPending OrderStatus = iota
	OrderStatusPaid
	OrderStatusConfirmed
	OrderStatusCompleted
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusPaid:
		return "paid"
	case OrderStatusConfirmed:
		return "confirmed"
	case OrderStatusCompleted:
		return "completed"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type OrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   *big.Int
	Quantity    uint64
}

// OrderRecord is an order rebuilt from chain data.
// Records read by transaction hash carry Items; records read by order ID carry
// Subtotal, Fee, Status and ItemCount instead.
type OrderRecord struct {
	OrderID      *big.Int
	Buyer        common.Address
	Total        *big.Int
	CreatedAt    time.Time
	DeliveryInfo string
	Items        []OrderItem

	Subtotal  *big.Int
	Fee       *big.Int
	Status    *OrderStatus
	ItemCount uint64

	TxHash      common.Hash
	BlockNumber uint64
}

// LastOrder is the hand-off written after a successful checkout and consumed once by the confirmation view.
type LastOrder struct {
	TxHash    string          `json:"txHash"`
	Items     []LastOrderItem `json:"items"`
	Total     string          `json:"total"`
	Timestamp int64           `json:"timestamp"`
}

type LastOrderItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}
