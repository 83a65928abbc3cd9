package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, toss_user_key, level, is_premium, premium_expires_at, total_sessions, streak_days, last_study_date, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var expires pgtype.Timestamptz
	var lastStudy pgtype.Date
	err := row.Scan(
		&user.ID, &user.TossUserKey, &user.Level, &user.IsPremium, &expires,
		&user.TotalSessions, &user.StreakDays, &lastStudy, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.PremiumExpiresAt = timestamptzPtr(expires)
	user.LastStudyDate = datePtr(lastStudy)
	return user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByTossUserKey(ctx context.Context, key string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE toss_user_key = $1`, key))
}

// FindOrCreateByTossUserKey returns the user for key, inserting a beginner
// account on first login. created reports whether a row was inserted.
func (r *UserRepo) FindOrCreateByTossUserKey(ctx context.Context, key string) (*models.User, bool, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (toss_user_key)
		VALUES ($1)
		ON CONFLICT (toss_user_key) DO NOTHING
		RETURNING `+userColumns, key))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	user, err = r.GetByTossUserKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// UpdateLevel returns pgx.ErrNoRows when the user does not exist.
func (r *UserRepo) UpdateLevel(ctx context.Context, userID uuid.UUID, level string) error {
	tag, err := r.pool.Exec(ctx, "UPDATE users SET level = $1 WHERE id = $2", level, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExpirePremium clears the premium flag if the stored expiry is still before now.
func (r *UserRepo) ExpirePremium(ctx context.Context, userID uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET is_premium = FALSE
		WHERE id = $1 AND is_premium AND premium_expires_at IS NOT NULL AND premium_expires_at < $2
	`, userID, now)
	return err
}

// ApplyStudyStats locks the user row, passes the current stats to fn and
// writes back what it returns, all in one transaction.
func (r *UserRepo) ApplyStudyStats(ctx context.Context, userID uuid.UUID, fn func(models.StudyStats) models.StudyStats) (models.StudyStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.StudyStats{}, err
	}
	defer tx.Rollback(ctx)

	var current models.StudyStats
	var lastStudy pgtype.Date
	err = tx.QueryRow(ctx, `
		SELECT total_sessions, streak_days, last_study_date
		FROM users WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&current.TotalSessions, &current.StreakDays, &lastStudy)
	if err != nil {
		return models.StudyStats{}, err
	}
	current.LastStudyDate = datePtr(lastStudy)

	next := fn(current)

	var nextDate pgtype.Date
	if next.LastStudyDate != nil {
		nextDate = pgtype.Date{Time: *next.LastStudyDate, Valid: true}
	}
	_, err = tx.Exec(ctx, `
		UPDATE users SET total_sessions = $1, streak_days = $2, last_study_date = $3
		WHERE id = $4
	`, next.TotalSessions, next.StreakDays, nextDate, userID)
	if err != nil {
		return models.StudyStats{}, fmt.Errorf("update study stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.StudyStats{}, err
	}
	return next, nil
}

func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}
