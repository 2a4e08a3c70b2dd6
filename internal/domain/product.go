package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a fixed-price bundle from the catalog. Price is in ether.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Items       []string        `json:"items,omitempty"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
