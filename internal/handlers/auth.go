package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
	"github.com/silano08/tokingtoking/internal/services"
	"github.com/silano08/tokingtoking/pkg/logger"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error)
	Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*models.UserInfo, error)
}

type AuthHandler struct {
	authService authService
}

func NewAuthHandler(authService authService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		var ue *services.UpstreamError
		if errors.As(err, &ue) {
			logger.FromContext(r.Context(), nil).Warn("Toss login failed", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, errorResp("LOGIN_FAILED", "토스 로그인에 실패했습니다. 다시 시도해주세요.", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"refresh_token": "Refresh token is required"}, r))
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout accepts an empty body; a refresh token in the body is revoked.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.authService.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	info, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *services.ValidationError
		conflict     *services.ConflictError
		notFound     *services.NotFoundError
		unauthorized *services.UnauthorizedError
		forbidden    *services.ForbiddenError
		rateLimit    *services.RateLimitError
		upstream     *services.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		msg := validation.Message
		if msg == "" {
			msg = "Validation failed"
		}
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", msg, validation.Fields, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &forbidden):
		resp := errorResp(forbidden.Code, forbidden.Message, r)
		resp.Error.Action = forbidden.Action
		writeJSON(w, http.StatusForbidden, resp)
	case errors.As(err, &rateLimit):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimit.Message, r))
	case errors.As(err, &upstream):
		logger.FromContext(r.Context(), nil).Error("Upstream call failed",
			zap.String("service", upstream.Service),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", "AI 서비스에 일시적인 문제가 있습니다. 잠시 후 다시 시도해주세요.", r))
	default:
		logger.FromContext(r.Context(), nil).Error("Unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", middleware.InternalErrorMessage, r))
	}
}
