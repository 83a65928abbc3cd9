package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// ListSessions returns one page of the user's sessions, newest first, and
// the user's total session count.
func (r *HistoryRepo) ListSessions(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.SessionListItem, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM study_sessions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, mode, target_words::text[], words_used, is_completed, started_at, completed_at
		FROM study_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		OFFSET $2 LIMIT $3
	`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []models.SessionListItem{}
	for rows.Next() {
		var it models.SessionListItem
		var targets []string
		var usage []byte
		var completed pgtype.Timestamptz
		if err := rows.Scan(&it.ID, &it.Mode, &targets, &usage, &it.IsCompleted, &it.StartedAt, &completed); err != nil {
			return nil, 0, err
		}
		if it.TargetWords, err = parseUUIDs(targets); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(usage, &it.WordsUsed); err != nil {
			return nil, 0, fmt.Errorf("session %s words_used: %w", it.ID, err)
		}
		it.CompletedAt = timestamptzPtr(completed)
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *HistoryRepo) CountCompleted(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM study_sessions WHERE user_id = $1 AND is_completed`, userID).Scan(&n)
	return n, err
}

func (r *HistoryRepo) CountStartedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM study_sessions WHERE user_id = $1 AND started_at >= $2`, userID, since).Scan(&n)
	return n, err
}

// CompletedSessionWords returns the most recent completed sessions with
// their target words resolved. Words missing from the vocabulary are dropped.
func (r *HistoryRepo) CompletedSessionWords(ctx context.Context, userID uuid.UUID, limit int) ([]models.CompletedSessionWords, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT started_at, target_words::text[]
		FROM study_sessions
		WHERE user_id = $1 AND is_completed
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}

	type sessionRow struct {
		startedAt time.Time
		wordIDs   []uuid.UUID
	}
	var sessions []sessionRow
	seen := make(map[uuid.UUID]bool)
	var allIDs []uuid.UUID
	for rows.Next() {
		var sr sessionRow
		var raw []string
		if err := rows.Scan(&sr.startedAt, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		if sr.wordIDs, err = parseUUIDs(raw); err != nil {
			rows.Close()
			return nil, err
		}
		for _, id := range sr.wordIDs {
			if !seen[id] {
				seen[id] = true
				allIDs = append(allIDs, id)
			}
		}
		sessions = append(sessions, sr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	words := make(map[uuid.UUID]models.WordBrief, len(allIDs))
	if len(allIDs) > 0 {
		wrows, err := r.pool.Query(ctx,
			`SELECT id, word, pos, definition_ko FROM vocabularies WHERE id = ANY($1::uuid[])`, uuidStrings(allIDs))
		if err != nil {
			return nil, err
		}
		defer wrows.Close()
		for wrows.Next() {
			var w models.WordBrief
			if err := wrows.Scan(&w.ID, &w.Word, &w.PartOfSpeech, &w.DefinitionKo); err != nil {
				return nil, err
			}
			words[w.ID] = w
		}
		if err := wrows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]models.CompletedSessionWords, 0, len(sessions))
	for _, sr := range sessions {
		c := models.CompletedSessionWords{StartedAt: sr.startedAt}
		for _, id := range sr.wordIDs {
			if w, ok := words[id]; ok {
				c.Words = append(c.Words, w)
			}
		}
		out = append(out, c)
	}
	return out, nil
}
