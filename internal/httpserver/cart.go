package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chowfast/internal/domain"
	"chowfast/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	ExpiresIn int    `json:"expiresIn"`
	Wallet    string `json:"wallet,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	DeliveryInfo string `json:"deliveryInfo"`
}

type checkoutResponse struct {
	TxHash      string           `json:"txHash"`
	BlockNumber uint64           `json:"blockNumber"`
	ExplorerURL string           `json:"explorerUrl,omitempty"`
	Total       amountView       `json:"total"`
	LastOrder   domain.LastOrder `json:"lastOrder"`
}

func (h *handlers) createSession(c *gin.Context) {
	token, sess, err := h.sessions.Issue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := sessionResponse{
		Token:     token,
		SessionID: sess.ID,
		ExpiresIn: h.sessions.TTLSeconds(),
	}
	if addr, ok := h.checkout.Wallet(); ok {
		resp.Wallet = addr.Hex()
	}
	c.Header(sessionHeader, token)
	c.JSON(http.StatusCreated, resp)
}

func (h *handlers) getCart(c *gin.Context) {
	h.writeCart(c, http.StatusOK)
}

func (h *handlers) writeCart(c *gin.Context, status int) {
	view, err := toCartView(sessionFrom(c).Cart.Lines(), h.checkout.Fee())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, view)
}

// cartLocked rejects cart edits while the session's transaction is pending.
func (h *handlers) cartLocked(c *gin.Context) bool {
	if sessionFrom(c).Tx.State().Status != domain.TxStatusPending {
		return false
	}
	h.writeError(c, fmt.Errorf("cart is locked: %w", orchestrator.ErrSubmitInFlight))
	return true
}

func (h *handlers) addCartItem(c *gin.Context) {
	if h.cartLocked(c) {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid JSON body", string(domain.ErrorKindValidation)))
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		h.writeError(c, domain.Invalid("productId", "required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(c, domain.Invalid("productId", "unknown product"))
			return
		}
		h.writeError(c, err)
		return
	}
	if err := sessionFrom(c).Cart.AddItem(*product, qty); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeCart(c, http.StatusOK)
}

func (h *handlers) updateCartItem(c *gin.Context) {
	if h.cartLocked(c) {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		h.writeError(c, domain.Invalid("quantity", "required"))
		return
	}
	if err := sessionFrom(c).Cart.UpdateQuantity(c.Param("productId"), *req.Quantity); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeCart(c, http.StatusOK)
}

func (h *handlers) removeCartItem(c *gin.Context) {
	if h.cartLocked(c) {
		return
	}
	sessionFrom(c).Cart.RemoveItem(c.Param("productId"))
	h.writeCart(c, http.StatusOK)
}

func (h *handlers) clearCart(c *gin.Context) {
	if h.cartLocked(c) {
		return
	}
	sessionFrom(c).Cart.Clear()
	h.writeCart(c, http.StatusOK)
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid JSON body", string(domain.ErrorKindValidation)))
		return
	}
	res, err := h.checkout.Checkout(c.Request.Context(), sessionFrom(c), req.DeliveryInfo)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := checkoutResponse{
		TxHash:      res.Receipt.TxHash.Hex(),
		ExplorerURL: h.txLink(res.Receipt.TxHash),
		Total:       newAmount(res.Request.Value),
		LastOrder:   res.LastOrder,
	}
	if res.Receipt.BlockNumber != nil {
		resp.BlockNumber = res.Receipt.BlockNumber.Uint64()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) checkoutStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.toTxStateView(sessionFrom(c).Tx.State()))
}

func (h *handlers) resetCheckout(c *gin.Context) {
	sess := sessionFrom(c)
	if err := sess.Tx.Reset(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toTxStateView(sess.Tx.State()))
}
