package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/hairtype-api/internal/apperr"
	"github.com/Brownie44l1/hairtype-api/internal/middleware"
)

// maxBodyBytes caps request bodies; base64 images are the largest payloads.
const maxBodyBytes = 20 << 20

func writeError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		middleware.Logger.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("route", c.FullPath()).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
}
