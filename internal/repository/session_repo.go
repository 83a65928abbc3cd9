package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

// ErrVersionConflict means the session row changed since it was read.
var ErrVersionConflict = errors.New("study session was modified concurrently")

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, mode, target_words::text[], words_used, is_completed, version, started_at, completed_at, updated_at`

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	var targets []string
	var usage []byte
	var completed pgtype.Timestamptz
	err := row.Scan(&s.ID, &s.UserID, &s.Mode, &targets, &usage, &s.IsCompleted,
		&s.Version, &s.StartedAt, &completed, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.TargetWordIDs, err = parseUUIDs(targets); err != nil {
		return nil, fmt.Errorf("session %s target words: %w", s.ID, err)
	}
	if err := json.Unmarshal(usage, &s.WordsUsed); err != nil {
		return nil, fmt.Errorf("session %s words_used: %w", s.ID, err)
	}
	s.CompletedAt = timestamptzPtr(completed)
	return s, nil
}

// Create inserts the session and its opening assistant message together.
func (r *SessionRepo) Create(ctx context.Context, s *models.StudySession, opening *models.ChatMessage) error {
	usage, err := json.Marshal(s.WordsUsed)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO study_sessions (user_id, mode, target_words, words_used, started_at, updated_at)
		VALUES ($1, $2, $3::uuid[], $4, $5, $5)
		RETURNING id, version
	`, s.UserID, s.Mode, uuidStrings(s.TargetWordIDs), usage, s.StartedAt).Scan(&s.ID, &s.Version)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	s.UpdatedAt = s.StartedAt

	opening.SessionID = s.ID
	if err := insertMessage(ctx, tx, opening); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetForUser returns pgx.ErrNoRows unless the session exists and belongs to userID.
func (r *SessionRepo) GetForUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID))
}

// ListMessages returns a session's messages in creation order.
func (r *SessionRepo) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, role, content, feedback, word_usage_snapshot, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var feedback, snapshot []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &feedback, &snapshot, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(feedback) > 0 && string(feedback) != "null" {
			m.Feedback = &models.SpeakingFeedback{}
			if err := json.Unmarshal(feedback, m.Feedback); err != nil {
				return nil, fmt.Errorf("message %d feedback: %w", m.ID, err)
			}
		}
		if err := json.Unmarshal(snapshot, &m.WordUsageSnapshot); err != nil {
			return nil, fmt.Errorf("message %d snapshot: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SaveTurn appends msgs and writes the session's new state in one
// transaction. The update only applies while the stored version still equals
// s.Version; otherwise nothing is written and ErrVersionConflict is returned.
// On success s.Version is advanced.
func (r *SessionRepo) SaveTurn(ctx context.Context, s *models.StudySession, msgs []*models.ChatMessage) error {
	usage, err := json.Marshal(s.WordsUsed)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var completedAt pgtype.Timestamptz
	if s.CompletedAt != nil {
		completedAt = pgtype.Timestamptz{Time: *s.CompletedAt, Valid: true}
	}
	tag, err := tx.Exec(ctx, `
		UPDATE study_sessions
		SET words_used = $1, is_completed = $2, completed_at = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`, usage, s.IsCompleted, completedAt, s.UpdatedAt, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	for _, m := range msgs {
		m.SessionID = s.ID
		if err := insertMessage(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.Version++
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, m *models.ChatMessage) error {
	snapshot, err := json.Marshal(m.WordUsageSnapshot)
	if err != nil {
		return err
	}
	var feedback []byte
	if m.Feedback != nil {
		if feedback, err = json.Marshal(m.Feedback); err != nil {
			return err
		}
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content, feedback, word_usage_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.SessionID, m.Role, m.Content, feedback, snapshot, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert %s message: %w", m.Role, err)
	}
	return nil
}

// CountStartedSince counts the user's sessions started at or after since.
func (r *SessionRepo) CountStartedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM study_sessions WHERE user_id = $1 AND started_at >= $2`, userID, since).Scan(&n)
	return n, err
}

// RecentTargetWordIDs returns the distinct target word ids of the user's
// most recent sessions.
func (r *SessionRepo) RecentTargetWordIDs(ctx context.Context, userID uuid.UUID, sessions int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT unnest(target_words)::text FROM (
			SELECT target_words FROM study_sessions
			WHERE user_id = $1
			ORDER BY started_at DESC
			LIMIT $2
		) recent
	`, userID, sessions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
