package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type sessionService interface {
	CreateSession(ctx context.Context, userID uuid.UUID, mode string, wordIDs []uuid.UUID) (*models.CreateSessionResponse, error)
	SendMessage(ctx context.Context, userID, sessionID uuid.UUID, text, mode string) (*models.SendMessageResponse, error)
	GetSessionDetail(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionDetail, error)
	TargetWords(ctx context.Context, userID, sessionID uuid.UUID) ([]string, error)
}

type ChatHandler struct {
	sessions sessionService
}

func NewChatHandler(sessions sessionService) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.CreateSession(r.Context(), userID, req.Mode, req.WordIDs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	detail, err := h.sessions.GetSessionDetail(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.SendMessage(r.Context(), userID, req.SessionID, req.Content, models.ModeChat)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
