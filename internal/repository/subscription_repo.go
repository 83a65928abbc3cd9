package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

// Activate appends an active subscription row and grants premium until its
// expiry in a single transaction.
func (r *SubscriptionRepo) Activate(ctx context.Context, sub *models.Subscription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sub.Status = models.SubscriptionActive
	err = tx.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, order_id, product_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, sub.UserID, sub.OrderID, sub.ProductID, sub.Status, sub.ExpiresAt).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE users SET is_premium = TRUE, premium_expires_at = $1 WHERE id = $2`,
		sub.ExpiresAt, sub.UserID)
	if err != nil {
		return fmt.Errorf("grant premium: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grant premium: user %s not found", sub.UserID)
	}

	return tx.Commit(ctx)
}

// LatestActive returns pgx.ErrNoRows when the user has no active subscription row.
func (r *SubscriptionRepo) LatestActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, order_id, product_id, status, expires_at, created_at
		FROM subscriptions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, models.SubscriptionActive).Scan(
		&sub.ID, &sub.UserID, &sub.OrderID, &sub.ProductID, &sub.Status, &sub.ExpiresAt, &sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
