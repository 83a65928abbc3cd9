package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silano08/tokingtoking/internal/models"
)

type VocabRepo struct {
	pool *pgxpool.Pool
}

func NewVocabRepo(pool *pgxpool.Pool) *VocabRepo {
	return &VocabRepo{pool: pool}
}

const vocabColumns = `id, word, pos, definition_ko, definition_en, example_sentence, pronunciation, level`

func scanWords(rows pgx.Rows) ([]models.VocabularyWord, error) {
	defer rows.Close()
	var words []models.VocabularyWord
	for rows.Next() {
		var w models.VocabularyWord
		if err := rows.Scan(&w.ID, &w.Word, &w.PartOfSpeech, &w.DefinitionKo, &w.DefinitionEn,
			&w.ExampleSentence, &w.Pronunciation, &w.Level); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// GetByIDs returns the words found for ids in the order ids were given.
// Unknown ids are skipped, so callers compare lengths to detect them.
func (r *VocabRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.VocabularyWord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+vocabColumns+` FROM vocabularies WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	found, err := scanWords(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.VocabularyWord, len(found))
	for _, w := range found {
		byID[w.ID] = w
	}
	ordered := make([]models.VocabularyWord, 0, len(ids))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			ordered = append(ordered, w)
		}
	}
	return ordered, nil
}

// ListByLevel returns every word of level whose id is not in exclude.
func (r *VocabRepo) ListByLevel(ctx context.Context, level string, exclude []uuid.UUID) ([]models.VocabularyWord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+vocabColumns+` FROM vocabularies
		WHERE level = $1 AND NOT (id = ANY($2::uuid[]))
		ORDER BY word
	`, level, uuidStrings(exclude))
	if err != nil {
		return nil, err
	}
	return scanWords(rows)
}

// Upsert inserts or refreshes a seeded word keyed by (word, level).
func (r *VocabRepo) Upsert(ctx context.Context, w *models.VocabularyWord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO vocabularies (word, pos, definition_ko, definition_en, example_sentence, pronunciation, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (word, level) DO UPDATE SET
			pos = EXCLUDED.pos,
			definition_ko = EXCLUDED.definition_ko,
			definition_en = EXCLUDED.definition_en,
			example_sentence = EXCLUDED.example_sentence,
			pronunciation = EXCLUDED.pronunciation
		RETURNING id
	`, w.Word, w.PartOfSpeech, w.DefinitionKo, w.DefinitionEn, w.ExampleSentence, w.Pronunciation, w.Level).Scan(&w.ID)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
