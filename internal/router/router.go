package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/hairtype-api/internal/handlers"
	"github.com/Brownie44l1/hairtype-api/internal/metrics"
	"github.com/Brownie44l1/hairtype-api/internal/middleware"
)

// New builds the engine with the middleware chain and all routes. m may be
// nil, in which case no metrics are collected or served.
func New(h *handlers.Handler, ph *handlers.ProductHandler, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(m.Middleware())
	_ = r.SetTrustedProxies(nil)

	api := r.Group("/api")
	RegisterRoutes(api, h, ph)

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	return r
}

func RegisterRoutes(api *gin.RouterGroup, h *handlers.Handler, ph *handlers.ProductHandler) {
	api.GET("/health", h.Health)
	api.POST("/analyze", h.Analyze)

	products := api.Group("/products")
	{
		products.GET("", ph.List)
		products.POST("/initialize-engagement", ph.InitializeEngagement)
		products.GET("/:id", ph.Get)
		products.GET("/:id/engagement", ph.GetEngagement)
		products.PUT("/:id/engagement", ph.UpdateEngagement)
	}
}

// Endpoints lists the routes for the startup banner.
var Endpoints = []string{
	"GET  /api/health",
	"POST /api/analyze",
	"GET  /api/products",
	"GET  /api/products/:id",
	"GET  /api/products/:id/engagement",
	"PUT  /api/products/:id/engagement",
	"POST /api/products/initialize-engagement",
	"GET  /metrics",
}
