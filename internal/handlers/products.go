package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/hairtype-api/internal/apperr"
	"github.com/Brownie44l1/hairtype-api/internal/service"
)

type ProductHandler struct {
	svc *service.ProductService
}

func NewProductHandler(svc *service.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List handles GET /api/products
func (h *ProductHandler) List(c *gin.Context) {
	data, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Get handles GET /api/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	data, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetEngagement handles GET /api/products/:id/engagement
func (h *ProductHandler) GetEngagement(c *gin.Context) {
	stats, err := h.svc.Engagement(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UpdateEngagement handles PUT /api/products/:id/engagement. The body is a
// flat object of counter name to delta.
func (h *ProductHandler) UpdateEngagement(c *gin.Context) {
	limitBody(c)

	deltas, err := decodeDeltas(c)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.InvalidInput, "products.UpdateEngagement", "Request must be a JSON object", err))
		return
	}

	p, err := h.svc.UpdateEngagement(c.Request.Context(), c.Param("id"), deltas)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// InitializeEngagement handles POST /api/products/initialize-engagement
func (h *ProductHandler) InitializeEngagement(c *gin.Context) {
	n, err := h.svc.InitializeEngagement(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Initialized engagement stats for %d products", n),
	})
}

func decodeDeltas(c *gin.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var deltas map[string]any
	if err := dec.Decode(&deltas); err != nil {
		return nil, err
	}
	if deltas == nil {
		return nil, fmt.Errorf("body is null")
	}
	return deltas, nil
}
