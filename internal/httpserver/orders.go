package httpserver

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

func (h *handlers) lastOrder(c *gin.Context) {
	last, err := h.checkout.LastOrder(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, last)
}

func (h *handlers) cancelOrder(c *gin.Context) {
	id, err := parseOrderID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	receipt, err := h.checkout.Cancel(c.Request.Context(), sessionFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":     id.String(),
		"txHash":      receipt.TxHash.Hex(),
		"explorerUrl": h.txLink(receipt.TxHash),
	})
}

func (h *handlers) orderByTx(c *gin.Context) {
	hash, err := parseTxHash(c.Param("hash"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	rec, err := h.orders.ByTxHash(c.Request.Context(), hash)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toOrderView(*rec))
}

func (h *handlers) orderByID(c *gin.Context) {
	id, err := parseOrderID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	rec, err := h.orders.ByOrderID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toOrderView(*rec))
}

// listOrders returns OrderCreated records for a buyer. Without a buyer
// parameter the configured wallet is used.
func (h *handlers) listOrders(c *gin.Context) {
	var buyer common.Address
	if raw := strings.TrimSpace(c.Query("buyer")); raw != "" {
		if !common.IsHexAddress(raw) {
			h.writeError(c, domain.Invalid("buyer", "must be a hex address"))
			return
		}
		buyer = common.HexToAddress(raw)
	} else if addr, ok := h.checkout.Wallet(); ok {
		buyer = addr
	} else {
		h.writeError(c, domain.Invalid("buyer", "required"))
		return
	}

	var fromBlock uint64
	if raw := strings.TrimSpace(c.Query("fromBlock")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(c, domain.Invalid("fromBlock", "must be a non-negative integer"))
			return
		}
		fromBlock = n
	}

	records, err := h.orders.ListByBuyer(c.Request.Context(), buyer, fromBlock)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]orderView, 0, len(records))
	for _, r := range records {
		out = append(out, h.toOrderView(r))
	}
	c.JSON(http.StatusOK, gin.H{"buyer": buyer.Hex(), "count": len(out), "results": out})
}

func parseOrderID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || id.Sign() <= 0 {
		return nil, domain.Invalid("orderId", "must be a positive integer")
	}
	return id, nil
}

func parseTxHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, domain.Invalid("hash", "must be a 32-byte hex transaction hash")
	}
	return common.BytesToHash(b), nil
}
