package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"chowfast/internal/chain"
	"chowfast/internal/domain"
	"chowfast/internal/money"
	"chowfast/internal/orchestrator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// amountView carries an amount both exactly (wei) and for display.
type amountView struct {
	Wei     string `json:"wei"`
	Ether   string `json:"ether"`
	Display string `json:"display"`
}

func newAmount(wei *big.Int) amountView {
	if wei == nil {
		wei = new(big.Int)
	}
	ether := money.FromWei(wei)
	return amountView{
		Wei:     wei.String(),
		Ether:   ether.String(),
		Display: money.FormatWithSuffix(ether),
	}
}

// priceWei converts a product price to wei. Prices finer than one wei are an
// error rather than being truncated.
func priceWei(p domain.Product) (*big.Int, error) {
	wei, err := money.ToWei(p.Price)
	if err != nil {
		return nil, fmt.Errorf("product %s price %s: %w", p.ID, p.Price, err)
	}
	return wei, nil
}

type productView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Price       amountView `json:"price"`
	Category    string     `json:"category"`
	Items       []string   `json:"items"`
	Image       string     `json:"image,omitempty"`
}

func toProductView(p domain.Product) (productView, error) {
	price, err := priceWei(p)
	if err != nil {
		return productView{}, err
	}
	items := p.Items
	if items == nil {
		items = []string{}
	}
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       newAmount(price),
		Category:    p.Category,
		Items:       items,
		Image:       p.Image,
	}, nil
}

type cartLineView struct {
	ProductID string     `json:"productId"`
	Name      string     `json:"name"`
	Image     string     `json:"image,omitempty"`
	Quantity  int        `json:"quantity"`
	UnitPrice amountView `json:"unitPrice"`
	LineTotal amountView `json:"lineTotal"`
}

type cartView struct {
	Lines     []cartLineView `json:"lines"`
	ItemCount int            `json:"itemCount"`
	Subtotal  amountView     `json:"subtotal"`
	Fee       amountView     `json:"fee"`
	Total     amountView     `json:"total"`
}

func toCartView(lines []domain.CartLine, fee *big.Int) (cartView, error) {
	view := cartView{Lines: make([]cartLineView, 0, len(lines))}
	subtotal := new(big.Int)
	for _, line := range lines {
		unit, err := priceWei(line.Product)
		if err != nil {
			return cartView{}, err
		}
		lineTotal := new(big.Int).Mul(unit, big.NewInt(int64(line.Quantity)))
		subtotal.Add(subtotal, lineTotal)
		view.ItemCount += line.Quantity
		view.Lines = append(view.Lines, cartLineView{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Image:     line.Product.Image,
			Quantity:  line.Quantity,
			UnitPrice: newAmount(unit),
			LineTotal: newAmount(lineTotal),
		})
	}
	view.Subtotal = newAmount(subtotal)
	view.Fee = newAmount(fee)
	view.Total = newAmount(new(big.Int).Add(subtotal, fee))
	return view, nil
}

type txStateView struct {
	Status      domain.TxStatus  `json:"status"`
	TxHash      string           `json:"txHash,omitempty"`
	Error       string           `json:"error,omitempty"`
	Kind        domain.ErrorKind `json:"kind,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	ExplorerURL string           `json:"explorerUrl,omitempty"`
}

func (h *handlers) toTxStateView(s domain.TxState) txStateView {
	view := txStateView{
		Status:    s.Status,
		Error:     s.Error,
		Kind:      s.Kind,
		UpdatedAt: s.UpdatedAt,
	}
	if s.TxHash != (common.Hash{}) {
		view.TxHash = s.TxHash.Hex()
		view.ExplorerURL = h.txLink(s.TxHash)
	}
	return view
}

type orderItemView struct {
	ProductID string     `json:"productId"`
	Name      string     `json:"name"`
	UnitPrice amountView `json:"unitPrice"`
	Quantity  uint64     `json:"quantity"`
	LineTotal amountView `json:"lineTotal"`
}

type orderView struct {
	OrderID      string          `json:"orderId"`
	Buyer        string          `json:"buyer"`
	Total        amountView      `json:"total"`
	CreatedAt    time.Time       `json:"createdAt"`
	DeliveryInfo string          `json:"deliveryInfo"`
	Items        []orderItemView `json:"items,omitempty"`
	Subtotal     *amountView     `json:"subtotal,omitempty"`
	Fee          *amountView     `json:"fee,omitempty"`
	Status       string          `json:"status,omitempty"`
	ItemCount    uint64          `json:"itemCount,omitempty"`
	TxHash       string          `json:"txHash,omitempty"`
	BlockNumber  uint64          `json:"blockNumber,omitempty"`
	ExplorerURL  string          `json:"explorerUrl,omitempty"`
}

func (h *handlers) toOrderView(r domain.OrderRecord) orderView {
	view := orderView{
		Buyer:        r.Buyer.Hex(),
		Total:        newAmount(r.Total),
		CreatedAt:    r.CreatedAt.UTC(),
		DeliveryInfo: r.DeliveryInfo,
		ItemCount:    r.ItemCount,
		BlockNumber:  r.BlockNumber,
	}
	if r.OrderID != nil {
		view.OrderID = r.OrderID.String()
	}
	for _, it := range r.Items {
		price := it.UnitPrice
		if price == nil {
			price = new(big.Int)
		}
		view.Items = append(view.Items, orderItemView{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			UnitPrice: newAmount(price),
			Quantity:  it.Quantity,
			LineTotal: newAmount(new(big.Int).Mul(price, new(big.Int).SetUint64(it.Quantity))),
		})
	}
	if r.Subtotal != nil {
		v := newAmount(r.Subtotal)
		view.Subtotal = &v
	}
	if r.Fee != nil {
		v := newAmount(r.Fee)
		view.Fee = &v
	}
	if r.Status != nil {
		view.Status = r.Status.String()
	}
	if r.TxHash != (common.Hash{}) {
		view.TxHash = r.TxHash.Hex()
		view.ExplorerURL = h.txLink(r.TxHash)
	}
	return view
}

func (h *handlers) txLink(hash common.Hash) string {
	if h.explorer == "" {
		return ""
	}
	return h.explorer + "/tx/" + hash.Hex()
}

func errorBody(message, kind string) gin.H {
	body := gin.H{"error": message}
	if kind != "" {
		body["kind"] = kind
	}
	return body
}

// writeError maps service errors to HTTP statuses.
func (h *handlers) writeError(c *gin.Context, err error) {
	var (
		verr   *domain.ValidationError
		decErr *domain.DecodeError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason, "field": verr.Field, "kind": string(domain.ErrorKindValidation)})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("not found", ""))
	case errors.Is(err, orchestrator.ErrSubmitInFlight):
		c.JSON(http.StatusConflict, errorBody(err.Error(), ""))
	case errors.Is(err, domain.ErrRemoteUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody("chain reads are temporarily unavailable", string(domain.ErrorKindNetwork)))
	case errors.As(err, &decErr):
		h.logger.Printf("decode error: %v", err)
		c.JSON(http.StatusBadGateway, errorBody(err.Error(), "decode"))
	case errors.Is(err, domain.ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, errorBody(chain.Describe(err), string(domain.ErrorKindTimeout)))
	default:
		kind := chain.Kind(err)
		switch kind {
		case domain.ErrorKindRevert, domain.ErrorKindRejected, domain.ErrorKindNetwork:
			c.JSON(http.StatusBadGateway, errorBody(chain.Describe(err), string(kind)))
		default:
			h.logger.Printf("internal error: %v", err)
			c.JSON(http.StatusInternalServerError, errorBody("internal error", ""))
		}
	}
}
