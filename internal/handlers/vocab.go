package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type vocabService interface {
	RandomWords(ctx context.Context, userID uuid.UUID, count int) ([]models.VocabularyWord, error)
}

type VocabHandler struct {
	vocab vocabService
}

func NewVocabHandler(vocab vocabService) *VocabHandler {
	return &VocabHandler{vocab: vocab}
}

func (h *VocabHandler) Random(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, ok := queryInt(r, "count")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "count must be a number", r))
		return
	}

	words, err := h.vocab.RandomWords(r.Context(), userID, count)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.RandomWordsResponse{Words: words})
}

// queryInt reads an optional integer query parameter. A missing parameter
// reads as zero.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
