package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
)

// PremiumChecker reports whether a user may use premium-only features.
type PremiumChecker interface {
	CheckPremium(ctx context.Context, userID uuid.UUID) error
}

// RequirePremium rejects requests from users without an active premium
// subscription. It must run after the auth middleware.
func RequirePremium(checker PremiumChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checker.CheckPremium(r.Context(), middleware.GetUserID(r.Context())); err != nil {
				handleServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
