package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/models"
)

type entitlementStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ExpirePremium(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// EntitlementService gates premium features and lazily expires stale
// premium flags when they are checked.
type EntitlementService struct {
	users entitlementStore
	now   func() time.Time
	log   *zap.Logger
}

func NewEntitlementService(users entitlementStore, log *zap.Logger) *EntitlementService {
	return &EntitlementService{users: users, now: time.Now, log: log}
}

func premiumRequired() error {
	return &ForbiddenError{
		Code:    CodePremiumRequired,
		Message: "스피킹 학습은 프리미엄 구독이 필요합니다.",
		Action:  ActionRedirectSubscribe,
	}
}

// CheckPremium returns nil for an active premium user and a ForbiddenError
// otherwise. A premium flag whose expiry has passed is cleared before the
// error is returned.
func (s *EntitlementService) CheckPremium(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return premiumRequired()
		}
		return err
	}
	if !user.IsPremium {
		return premiumRequired()
	}

	now := s.now()
	if user.PremiumExpiresAt != nil && user.PremiumExpiresAt.Before(now) {
		if err := s.users.ExpirePremium(ctx, userID, now); err != nil {
			return err
		}
		s.log.Info("Premium subscription expired", zap.String("user_id", userID.String()))
		return &ForbiddenError{
			Code:    CodeSubscriptionExpired,
			Message: "구독이 만료되었습니다. 갱신해주세요.",
			Action:  ActionRedirectSubscribe,
		}
	}
	return nil
}

// hasActivePremium reports whether user is premium at now without touching
// the store.
func hasActivePremium(user *models.User, now time.Time) bool {
	if !user.IsPremium {
		return false
	}
	return user.PremiumExpiresAt == nil || !user.PremiumExpiresAt.Before(now)
}
