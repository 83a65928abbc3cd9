package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
	SubscriptionRefunded  = "refunded"
)

type Subscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type VerifyPurchaseRequest struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
}

type SubscriptionInfo struct {
	Status    string    `json:"status"`
	ProductID string    `json:"product_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VerifyPurchaseResponse struct {
	Verified     bool              `json:"verified"`
	Subscription *SubscriptionInfo `json:"subscription"`
}

type SubscriptionStatusResponse struct {
	IsPremium    bool          `json:"is_premium"`
	Subscription *Subscription `json:"subscription"`
}
