package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

type LevelTestRepo struct {
	pool *pgxpool.Pool
}

func NewLevelTestRepo(pool *pgxpool.Pool) *LevelTestRepo {
	return &LevelTestRepo{pool: pool}
}

const questionColumns = `id, question_type, question_text, options, correct_answer, level, difficulty_score`

func scanQuestions(rows pgx.Rows) ([]models.LevelTestQuestion, error) {
	defer rows.Close()
	var qs []models.LevelTestQuestion
	for rows.Next() {
		var q models.LevelTestQuestion
		var options []byte
		if err := rows.Scan(&q.ID, &q.QuestionType, &q.QuestionText, &options,
			&q.CorrectAnswer, &q.Level, &q.DifficultyScore); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			q.Options = options
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// ListByLevel returns up to limit questions of level, easiest first.
func (r *LevelTestRepo) ListByLevel(ctx context.Context, level string, limit int) ([]models.LevelTestQuestion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+` FROM level_test_questions
		WHERE level = $1
		ORDER BY difficulty_score, id
		LIMIT $2
	`, level, limit)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

func (r *LevelTestRepo) GetByIDs(ctx context.Context, ids []string) ([]models.LevelTestQuestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM level_test_questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Upsert inserts or refreshes a seeded question.
func (r *LevelTestRepo) Upsert(ctx context.Context, q *models.LevelTestQuestion) error {
	var options []byte
	if len(q.Options) > 0 {
		options = q.Options
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO level_test_questions (id, question_type, question_text, options, correct_answer, level, difficulty_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			question_type = EXCLUDED.question_type,
			question_text = EXCLUDED.question_text,
			options = EXCLUDED.options,
			correct_answer = EXCLUDED.correct_answer,
			level = EXCLUDED.level,
			difficulty_score = EXCLUDED.difficulty_score
	`, q.ID, q.QuestionType, q.QuestionText, options, q.CorrectAnswer, q.Level, q.DifficultyScore)
	return err
}
