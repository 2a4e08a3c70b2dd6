package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *handlers) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), strings.TrimSpace(c.Query("category")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		view, err := toProductView(p)
		if err != nil {
			h.writeError(c, err)
			return
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "results": out})
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	view, err := toProductView(*p)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if categories == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "results": []struct{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(categories), "results": categories})
}
