// Package cart holds the session-owned cart ledger.
package cart

import (
	"strings"
	"sync"

	"chowfast/internal/domain"
	"chowfast/internal/money"
	"github.com/shopspring/decimal"
)

// Ledger is an ordered set of cart lines with at most one line per product ID.
// Totals are recomputed from the lines on every call.
type Ledger struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// AddItem appends a line for product or increases the quantity of its existing line.
func (l *Ledger) AddItem(product domain.Product, qty int) error {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Invalid("productId", "required")
	}
	if qty <= 0 {
		return domain.Invalid("quantity", "must be positive")
	}
	if _, err := money.ToWei(product.Price); err != nil {
		return domain.Invalid("price", err.Error())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexOf(product.ID); i >= 0 {
		l.lines[i].Quantity += qty
		return nil
	}
	l.lines = append(l.lines, domain.CartLine{Product: product, Quantity: qty})
	return nil
}

// RemoveItem deletes the line for productID. Absent IDs are ignored.
func (l *Ledger) RemoveItem(productID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remove(productID)
}

// UpdateQuantity sets the line quantity. A quantity of zero or less removes the line.
// It returns domain.ErrNotFound when a positive quantity targets a product not in the cart.
func (l *Ledger) UpdateQuantity(productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if qty <= 0 {
		l.remove(productID)
		return nil
	}
	i := l.indexOf(productID)
	if i < 0 {
		return domain.ErrNotFound
	}
	l.lines[i].Quantity = qty
	return nil
}

func (l *Ledger) Subtotal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, line := range l.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

func (l *Ledger) TotalItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		n += line.Quantity
	}
	return n
}

// GrandTotal is Subtotal plus the transaction fee.
func (l *Ledger) GrandTotal(fee decimal.Decimal) decimal.Decimal {
	return l.Subtotal().Add(fee)
}

// Lines returns a copy of the lines in ledger order.
func (l *Ledger) Lines() []domain.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func (l *Ledger) IsEmpty() bool {
	return l.Len() == 0
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.lines = nil
	l.mu.Unlock()
}

// Deduct subtracts the quantities in placed from the ledger, dropping lines
// that reach zero. Lines added or raised after placed was taken survive.
func (l *Ledger) Deduct(placed []domain.CartLine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range placed {
		i := l.indexOf(p.Product.ID)
		if i < 0 {
			continue
		}
		l.lines[i].Quantity -= p.Quantity
		if l.lines[i].Quantity <= 0 {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
		}
	}
}

func (l *Ledger) indexOf(productID string) int {
	for i := range l.lines {
		if l.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func (l *Ledger) remove(productID string) {
	i := l.indexOf(productID)
	if i < 0 {
		return
	}
	l.lines = append(l.lines[:i], l.lines[i+1:]...)
}
