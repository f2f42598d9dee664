package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/hairtype-api/internal/apperr"
	"github.com/Brownie44l1/hairtype-api/internal/metrics"
	"github.com/Brownie44l1/hairtype-api/internal/middleware"
	"github.com/Brownie44l1/hairtype-api/internal/model"
)

type Handler struct {
	classifier model.Classifier
	metrics    *metrics.Metrics
}

func NewHandler(classifier model.Classifier, m *metrics.Metrics) *Handler {
	return &Handler{
		classifier: classifier,
		metrics:    m,
	}
}

// Health runs a full prediction on a synthetic image, so a model that loads
// but cannot be invoked is reported as unhealthy.
func (h *Handler) Health(c *gin.Context) {
	err := model.SyntheticCheck(c.Request.Context(), h.classifier)
	h.metrics.ObserveHealthCheck(err)

	if err != nil {
		middleware.Logger.Error().Err(err).Msg("health check prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":       "unhealthy",
			"error":        err.Error(),
			"model_loaded": h.classifier.Loaded(),
			"model_path":   h.classifier.Path(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": true,
		"model_path":   h.classifier.Path(),
	})
}

// Analyze classifies a base64 image and returns the probability of every label.
func (h *Handler) Analyze(c *gin.Context) {
	limitBody(c)

	var req model.AnalyzeRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, apperr.New(apperr.InvalidInput, "analyze", "Image is too large"))
			return
		}
		writeError(c, apperr.New(apperr.InvalidInput, "analyze", "Request must be JSON"))
		return
	}
	if req.Image == "" {
		writeError(c, apperr.New(apperr.InvalidInput, "analyze", "No image provided"))
		return
	}

	img, format, err := model.DecodeBase64Image(req.Image)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.InvalidInput, "analyze", "Invalid image format", err))
		return
	}

	middleware.Logger.Debug().
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("decoded image")

	start := time.Now()
	result, err := h.classifier.Predict(c.Request.Context(), img)
	h.metrics.ObservePrediction(time.Since(start), err)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.ClassificationFailure, "analyze", "Classification failed", err))
		return
	}

	c.JSON(http.StatusOK, model.AnalyzeResponse{Classification: result})
}
