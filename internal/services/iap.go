package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/models"
)

const defaultPremiumDuration = 30 * 24 * time.Hour

var productDurations = map[string]time.Duration{
	"monthly_premium": 30 * 24 * time.Hour,
	"yearly_premium":  365 * 24 * time.Hour,
}

// Order statuses that count as a completed purchase.
var verifiedOrderStatuses = map[string]bool{
	"PURCHASED":         true,
	"PAYMENT_COMPLETED": true,
}

type orderStatusChecker interface {
	GetOrderStatus(ctx context.Context, orderID, userKey string) (string, error)
}

type subscriptionStore interface {
	Activate(ctx context.Context, sub *models.Subscription) error
	LatestActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type IAPService struct {
	users  userReader
	subs   subscriptionStore
	orders orderStatusChecker
	now    func() time.Time
	log    *zap.Logger
}

func NewIAPService(users userReader, subs subscriptionStore, orders orderStatusChecker, log *zap.Logger) *IAPService {
	return &IAPService{users: users, subs: subs, orders: orders, now: time.Now, log: log}
}

// VerifyAndActivate confirms an order with Toss and, when it is paid, grants
// premium for the product's duration. An unpaid order is reported as
// unverified rather than as an error.
func (s *IAPService) VerifyAndActivate(ctx context.Context, userID uuid.UUID, req models.VerifyPurchaseRequest) (*models.VerifyPurchaseResponse, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.OrderID) == "" {
		fieldErrors["order_id"] = "Order ID is required"
	}
	if strings.TrimSpace(req.ProductID) == "" {
		fieldErrors["product_id"] = "Product ID is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}

	status, err := s.orders.GetOrderStatus(ctx, req.OrderID, user.TossUserKey)
	if err != nil {
		return nil, upstreamErr("toss", err)
	}
	if !verifiedOrderStatuses[status] {
		s.log.Warn("Purchase not verified",
			zap.String("user_id", userID.String()),
			zap.String("order_id", req.OrderID),
			zap.String("order_status", status),
		)
		return &models.VerifyPurchaseResponse{Verified: false}, nil
	}

	duration, ok := productDurations[req.ProductID]
	if !ok {
		duration = defaultPremiumDuration
	}
	sub := &models.Subscription{
		UserID:    userID,
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Status:    models.SubscriptionActive,
		ExpiresAt: s.now().Add(duration),
	}
	if err := s.subs.Activate(ctx, sub); err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	s.log.Info("Premium activated",
		zap.String("user_id", userID.String()),
		zap.String("product_id", req.ProductID),
		zap.Time("expires_at", sub.ExpiresAt),
	)

	return &models.VerifyPurchaseResponse{
		Verified: true,
		Subscription: &models.SubscriptionInfo{
			Status:    sub.Status,
			ProductID: sub.ProductID,
			ExpiresAt: sub.ExpiresAt,
		},
	}, nil
}

func (s *IAPService) SubscriptionStatus(ctx context.Context, userID uuid.UUID) (*models.SubscriptionStatusResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	if !hasActivePremium(user, s.now()) {
		return &models.SubscriptionStatusResponse{IsPremium: false}, nil
	}

	sub, err := s.subs.LatestActive(ctx, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &models.SubscriptionStatusResponse{IsPremium: true, Subscription: sub}, nil
}
