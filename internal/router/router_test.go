package router

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/hairtype-api/internal/handlers"
	"github.com/Brownie44l1/hairtype-api/internal/metrics"
	"github.com/Brownie44l1/hairtype-api/internal/middleware"
	"github.com/Brownie44l1/hairtype-api/internal/model"
	"github.com/Brownie44l1/hairtype-api/internal/product"
	"github.com/Brownie44l1/hairtype-api/internal/service"
)

type fixedClassifier struct{}

func (fixedClassifier) Predict(context.Context, image.Image) (model.Classification, error) {
	return model.Classification{"curly": 0.7, "straight": 0.3}, nil
}
func (fixedClassifier) Labels() []string { return []string{"curly", "straight"} }
func (fixedClassifier) Path() string     { return "fixed.onnx" }
func (fixedClassifier) Loaded() bool     { return true }

func newTestRouter(t *testing.T, m *metrics.Metrics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"p1"}]`), 0o644))

	svc := service.NewProductService(product.NewFileStore(path), service.WithMetrics(m))
	return New(handlers.NewHandler(fixedClassifier{}, m), handlers.NewProductHandler(svc), m)
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t, metrics.New())

	tests := []struct {
		method string
		target string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodPost, "/api/analyze", `{}`, http.StatusBadRequest},
		{http.MethodGet, "/api/products", "", http.StatusOK},
		{http.MethodGet, "/api/products/p1", "", http.StatusOK},
		{http.MethodGet, "/api/products/p1/engagement", "", http.StatusOK},
		{http.MethodPut, "/api/products/p1/engagement", `{"views":1}`, http.StatusOK},
		{http.MethodPost, "/api/products/initialize-engagement", "", http.StatusOK},
		{http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, metrics.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/p1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/products/:id"`)
	assert.Contains(t, w.Body.String(), "hairtype_store_operations_total")
}

func TestMetricsDisabled(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoutesAnswerJSON(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/api/nothing", http.StatusNotFound},
		{http.MethodGet, "/", http.StatusNotFound},
		{http.MethodDelete, "/api/products/p1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/analyze", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
			assert.NotEmpty(t, body["error"])
		})
	}
}
