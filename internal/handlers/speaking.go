package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

const (
	maxAudioBytes     = 10 << 20
	multipartOverhead = 1 << 20
	defaultAudioName  = "audio.webm"
)

type transcriber interface {
	TranscribeAndProcess(ctx context.Context, audio []byte, filename string, targetWords []string) (*models.TranscriptionResult, error)
}

// SpeakingHandler serves the premium speaking mode. Routes are expected to
// sit behind RequirePremium.
type SpeakingHandler struct {
	sessions    sessionService
	transcriber transcriber
}

func NewSpeakingHandler(sessions sessionService, transcriber transcriber) *SpeakingHandler {
	return &SpeakingHandler{sessions: sessions, transcriber: transcriber}
}

// Message runs a speaking turn from text the client already transcribed.
func (h *SpeakingHandler) Message(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.SpeakingMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.sessions.SendMessage(r.Context(), userID, req.SessionID, req.TranscribedText, models.ModeSpeaking)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Transcribe takes a multipart recording, transcribes it against the
// session's target words and runs a speaking turn with the result.
func (h *SpeakingHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Audio file too large (max 10MB)", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}

	sessionID, err := uuid.Parse(r.FormValue("session_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"session_id": "Valid session_id is required"}, r))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"audio": "Audio file is required"}, r))
		return
	}
	defer file.Close()

	if header.Size > maxAudioBytes {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Audio file too large (max 10MB)", r))
		return
	}
	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read audio file", r))
		return
	}
	if len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Empty audio file", r))
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = defaultAudioName
	}

	targetWords, err := h.sessions.TargetWords(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	transcript, err := h.transcriber.TranscribeAndProcess(r.Context(), audio, filename, targetWords)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	turn, err := h.sessions.SendMessage(r.Context(), userID, sessionID, transcript.Text, models.ModeSpeaking)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.SpeakingTurnResponse{
		SendMessageResponse: *turn,
		Transcription: models.TranscriptionDetail{
			Raw:       transcript.Raw,
			Processed: transcript.Processed,
		},
	})
}
