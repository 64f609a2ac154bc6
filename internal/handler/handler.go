package handler

import (
	"context"

	"coin-digest/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// DigestAPI is the part of the digest service exposed over HTTP.
type DigestAPI interface {
	Preview(ctx context.Context) (string, error)
	Run(ctx context.Context) (domain.DeliveryRecord, error)
	LastDigest(ctx context.Context) (domain.DigestSnapshot, bool, error)
}

type Handler struct {
	tracer trace.Tracer
	digest DigestAPI
}

func New(tracer trace.Tracer, digest DigestAPI) *Handler {
	return &Handler{
		tracer: tracer,
		digest: digest,
	}
}

// RegisterRoutes mounts the API. apiKey guards the send endpoint; empty disables auth.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api/digest")
	api.GET("/preview", h.PreviewDigest)
	api.GET("/last", h.LastDigest)
	api.POST("/send", APIKeyAuth(apiKey), h.SendDigest)
}
