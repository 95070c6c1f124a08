package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opensource-finance/kite/internal/alerting"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/repository"
)

// defaultTokenLifetime applies when an onboarding request carries no
// explicit token expiry.
const defaultTokenLifetime = 90 * 24 * time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	processor *alerting.Processor
	validate  *validator.Validate
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *alerting.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		processor: processor,
		validate:  validator.New(),
		version:   version,
	}
}

// CreateUserRequest is the request body for POST /users. Submitting an
// account reference that is already onboarded refreshes the record.
type CreateUserRequest struct {
	AccountRef    string    `json:"accountRef" validate:"required"`
	AccessToken   string    `json:"accessToken" validate:"required"`
	ValidUntil    time.Time `json:"validUntil,omitempty"`
	Notifications *bool     `json:"notifications,omitempty"`
	Tier          string    `json:"tier,omitempty"`
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	tier := domain.RiskTier(req.Tier)
	if !tier.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown tier: " + req.Tier,
		})
		return
	}

	notifications := true
	if req.Notifications != nil {
		notifications = *req.Notifications
	}

	validUntil := req.ValidUntil
	if validUntil.IsZero() {
		validUntil = time.Now().UTC().Add(defaultTokenLifetime)
	}

	user := &domain.User{
		ID:            uuid.New().String(),
		AccessToken:   req.AccessToken,
		ValidUntil:    validUntil,
		AccountRef:    req.AccountRef,
		Notifications: notifications,
		Tier:          tier,
	}

	if err := h.repo.SaveUser(ctx, user); err != nil {
		h.writeRepoError(w, "failed to save user", err)
		return
	}

	// The upsert may have kept an existing id; return the stored row.
	stored, err := h.repo.GetUserByAccountRef(ctx, user.AccountRef)
	if err != nil {
		h.writeRepoError(w, "failed to load user", err)
		return
	}
	h.invalidateUserCache(r, stored.AccountRef)

	writeJSON(w, http.StatusCreated, stored)
}

// DeactivateUser handles DELETE /users/{id}: notifications off and
// token expired, so the account immediately drops out of alerting.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	user, err := h.repo.DeactivateUser(ctx, userID)
	if err != nil {
		h.writeRepoError(w, "failed to deactivate user", err)
		return
	}
	h.invalidateUserCache(r, user.AccountRef)

	writeJSON(w, http.StatusOK, user)
}

// UserConfigResponse is the alert policy view of a user.
type UserConfigResponse struct {
	UserID        string          `json:"userId"`
	AccountRef    string          `json:"accountRef"`
	Notifications bool            `json:"notifications"`
	Tier          domain.RiskTier `json:"tier"`
	Threshold     float64         `json:"threshold"`
}

// GetUserConfig handles GET /users/{id}/config.
func (h *Handler) GetUserConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		h.writeRepoError(w, "failed to get user", err)
		return
	}

	writeJSON(w, http.StatusOK, userConfig(user))
}

// UpdateUserConfigRequest is the request body for PUT /users/{id}/config.
type UpdateUserConfigRequest struct {
	Notifications *bool  `json:"notifications" validate:"required"`
	Tier          string `json:"tier,omitempty"`
}

// UpdateUserConfig handles PUT /users/{id}/config.
func (h *Handler) UpdateUserConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	var req UpdateUserConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	user, err := h.repo.UpdateUserPolicy(ctx, userID, *req.Notifications, domain.RiskTier(req.Tier))
	if err != nil {
		h.writeRepoError(w, "failed to update user config", err)
		return
	}
	h.invalidateUserCache(r, user.AccountRef)

	writeJSON(w, http.StatusOK, userConfig(user))
}

// ProcessBatch handles POST /process: scores every transaction in the
// batch and persists alerts for the ones that cross the owning user's
// threshold.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in alerting.BatchInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.processor.ProcessBatch(ctx, &in)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("batch processing aborted", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch processing failed",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// ListAlerts handles GET /alerts with optional accountRef, minScore
// and limit query parameters.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := domain.AlertFilter{
		AccountRef: r.URL.Query().Get("accountRef"),
	}

	if raw := r.URL.Query().Get("minScore"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "minScore must be a number",
			})
			return
		}
		filter.MinScore = &min
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.repo.ListAlerts(ctx, filter)
	if err != nil {
		h.writeRepoError(w, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func userConfig(user *domain.User) UserConfigResponse {
	return UserConfigResponse{
		UserID:        user.ID,
		AccountRef:    user.AccountRef,
		Notifications: user.Notifications,
		Tier:          user.Tier,
		Threshold:     user.Tier.Threshold(),
	}
}

// invalidateUserCache drops the cached policy after any user mutation.
func (h *Handler) invalidateUserCache(r *http.Request, accountRef string) {
	if h.cache == nil || accountRef == "" {
		return
	}
	if err := h.cache.Delete(r.Context(), "user:"+accountRef); err != nil {
		slog.Debug("user cache invalidation failed", "account_ref", accountRef, "error", err)
	}
}

func (h *Handler) writeRepoError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": msg,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
