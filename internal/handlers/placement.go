package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type levelTestService interface {
	Questions(ctx context.Context) (*models.LevelTestQuestionsResponse, error)
	Submit(ctx context.Context, userID uuid.UUID, answers []models.LevelTestAnswer) (*models.LevelTestResult, error)
}

type LevelTestHandler struct {
	levelTest levelTestService
}

func NewLevelTestHandler(levelTest levelTestService) *LevelTestHandler {
	return &LevelTestHandler{levelTest: levelTest}
}

func (h *LevelTestHandler) Questions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.levelTest.Questions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LevelTestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.LevelTestSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	result, err := h.levelTest.Submit(r.Context(), userID, req.Answers)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
