package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type historyService interface {
	Sessions(ctx context.Context, userID uuid.UUID, page, limit int) (*models.SessionListResponse, error)
	Stats(ctx context.Context, userID uuid.UUID) (*models.UserStatsResponse, error)
	WordHistory(ctx context.Context, userID uuid.UUID, days int) (*models.WordHistoryResponse, error)
}

type HistoryHandler struct {
	history historyService
}

func NewHistoryHandler(history historyService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, okPage := queryInt(r, "page")
	limit, okLimit := queryInt(r, "limit")
	if !okPage || !okLimit {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "page and limit must be numbers", r))
		return
	}

	resp, err := h.history.Sessions(r.Context(), userID, page, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.history.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HistoryHandler) WordHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, ok := queryInt(r, "limit")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be a number", r))
		return
	}

	resp, err := h.history.WordHistory(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
