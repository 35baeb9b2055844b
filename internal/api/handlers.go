package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leafsii/blinks-backend/internal/actions"
	"github.com/leafsii/blinks-backend/internal/upstream"
	"go.uber.org/zap"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	RecordTransactionBuilt(ctx context.Context, action string)
}

// ActionResolver builds the transaction behind each action.
type ActionResolver interface {
	Deposit(ctx context.Context, account solana.PublicKey, amount string) (*actions.Result, error)
	BuyDomain(ctx context.Context, account solana.PublicKey, handle string) (*actions.Result, error)
	BuyNFTByMint(ctx context.Context, account solana.PublicKey, mint string) (*actions.Result, error)
}

// HealthSource reports upstream health for readiness checks.
type HealthSource interface {
	Snapshot() map[string]upstream.Health
	Unhealthy() []string
}

// CacheProbe is the part of the collection cache readiness cares about.
type CacheProbe interface {
	Ping(ctx context.Context) error
	IsInMemoryMode() bool
}

type Handler struct {
	resolver    ActionResolver
	descriptors *actions.Descriptors
	health      HealthSource
	cache       CacheProbe
	logger      *zap.SugaredLogger
	metrics     MetricsInterface
}

func NewHandler(
	resolver ActionResolver,
	descriptors *actions.Descriptors,
	health HealthSource,
	cache CacheProbe,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		resolver:    resolver,
		descriptors: descriptors,
		health:      health,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
	}
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// Readyz fails while any upstream's last call failed or the cache does not answer.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	dto := ReadinessDTO{Status: "ready", Cache: "disabled"}
	if h.health != nil {
		dto.Upstreams = h.health.Snapshot()
		dto.Unhealthy = h.health.Unhealthy()
	}
	if h.cache != nil {
		dto.Cache = "ok"
		dto.CacheMode = "redis"
		if h.cache.IsInMemoryMode() {
			dto.CacheMode = "memory"
		}
		if err := h.cache.Ping(r.Context()); err != nil {
			h.logger.Warnw("Cache ping failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
			dto.Cache = "error"
		}
	}

	status := http.StatusOK
	if len(dto.Unhealthy) > 0 || dto.Cache == "error" {
		dto.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, dto)
}

// ActionsManifest serves /actions.json.
func (h *Handler) ActionsManifest(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, actions.Manifest())
}

// MethodNotAllowed answers a known path requested with an unsupported method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", middleware.GetReqID(r.Context()))
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("Failed to encode response", "status", status, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, requestID string) {
	h.logger.Infow("Sending error response",
		"request_id", requestID,
		"status", status,
		"message", message,
	)
	h.writeJSON(w, status, ErrorResponse{Message: message})
}
