package handler

import (
	"errors"
	"net/http"

	"coin-digest/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// PreviewDigest godoc
// @Summary      Preview the digest
// @Description  Fetches fresh market data and returns the composed message without sending it
// @Tags         digest
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/digest/preview [get]
func (h *Handler) PreviewDigest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.preview-digest")
	defer span.End()

	if h.digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "digest service unavailable"})
		return
	}

	text, err := h.digest.Preview(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": text})
}

// LastDigest godoc
// @Summary      Last delivered digest
// @Description  Returns the most recently delivered message from the cache
// @Tags         digest
// @Produce      json
// @Success      200  {object}  domain.DigestSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /api/digest/last [get]
func (h *Handler) LastDigest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.last-digest")
	defer span.End()

	if h.digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "digest service unavailable"})
		return
	}

	snap, ok, err := h.digest.LastDigest(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no digest delivered yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SendDigest godoc
// @Summary      Send the digest now
// @Description  Runs one fetch, compose and deliver cycle
// @Tags         digest
// @Produce      json
// @Param        X-API-Key  header  string  false  "API key when HTTP_API_KEY is set"
// @Success      200  {object}  domain.DeliveryRecord
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/digest/send [post]
func (h *Handler) SendDigest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.send-digest")
	defer span.End()

	if h.digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "digest service unavailable"})
		return
	}

	rec, err := h.digest.Run(ctx)
	span.SetAttributes(attribute.String("run_id", rec.RunID.String()))
	if err != nil {
		status := http.StatusInternalServerError
		var deliveryErr *domain.DeliveryError
		if errors.As(err, &deliveryErr) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error(), "run_id": rec.RunID, "status": rec.Status})
		return
	}
	c.JSON(http.StatusOK, rec)
}
