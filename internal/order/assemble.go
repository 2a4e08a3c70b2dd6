// Package order turns a cart snapshot into the createOrder call arguments.
package order

import (
	"fmt"
	"math/big"
	"strings"

	"chowfast/internal/domain"
	"chowfast/internal/money"
)

// Assemble builds the createOrder arguments for lines in ledger order.
// Prices are converted to wei before summing so the attached value equals the
// subtotal and fee the contract computes, with no rounding.
func Assemble(lines []domain.CartLine, deliveryInfo string, fee *big.Int) (*domain.OrderRequest, error) {
	if len(lines) == 0 {
		return nil, domain.Invalid("cart", "cart is empty")
	}
	if strings.TrimSpace(deliveryInfo) == "" {
		return nil, domain.Invalid("deliveryInfo", "delivery information is required")
	}
	if fee == nil || fee.Sign() < 0 {
		return nil, domain.Invalid("fee", "transaction fee must be non-negative")
	}

	req := &domain.OrderRequest{
		ProductIDs:   make([]string, 0, len(lines)),
		ProductNames: make([]string, 0, len(lines)),
		UnitPrices:   make([]*big.Int, 0, len(lines)),
		Quantities:   make([]*big.Int, 0, len(lines)),
		Subtotal:     new(big.Int),
		Fee:          new(big.Int).Set(fee),
		DeliveryInfo: deliveryInfo,
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.Invalid("quantity", fmt.Sprintf("quantity for %q must be a positive integer", line.Product.ID))
		}
		price, err := money.ToWei(line.Product.Price)
		if err != nil {
			return nil, domain.Invalid("price", fmt.Sprintf("price for %q: %v", line.Product.ID, err))
		}
		qty := big.NewInt(int64(line.Quantity))

		req.ProductIDs = append(req.ProductIDs, line.Product.ID)
		req.ProductNames = append(req.ProductNames, line.Product.Name)
		req.UnitPrices = append(req.UnitPrices, price)
		req.Quantities = append(req.Quantities, qty)
		req.Subtotal.Add(req.Subtotal, new(big.Int).Mul(price, qty))
	}

	req.Value = new(big.Int).Add(req.Subtotal, req.Fee)
	return req, nil
}
