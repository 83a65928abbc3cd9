package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type iapService interface {
	VerifyAndActivate(ctx context.Context, userID uuid.UUID, req models.VerifyPurchaseRequest) (*models.VerifyPurchaseResponse, error)
	SubscriptionStatus(ctx context.Context, userID uuid.UUID) (*models.SubscriptionStatusResponse, error)
}

type IAPHandler struct {
	iap iapService
}

func NewIAPHandler(iap iapService) *IAPHandler {
	return &IAPHandler{iap: iap}
}

func (h *IAPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.VerifyPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.iap.VerifyAndActivate(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *IAPHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.iap.SubscriptionStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
