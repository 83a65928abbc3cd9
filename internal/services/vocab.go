package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/silano08/tokingtoking/internal/models"
)

const (
	defaultWordCount    = 3
	maxWordCount        = 5
	recentSessionWindow = 10
)

type vocabStore interface {
	ListByLevel(ctx context.Context, level string, exclude []uuid.UUID) ([]models.VocabularyWord, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.VocabularyWord, error)
}

type recentWordReader interface {
	RecentTargetWordIDs(ctx context.Context, userID uuid.UUID, sessions int) ([]uuid.UUID, error)
}

type VocabService struct {
	words   vocabStore
	recent  recentWordReader
	users   userReader
	shuffle func(n int, swap func(i, j int))
}

func NewVocabService(words vocabStore, recent recentWordReader, users userReader) *VocabService {
	return &VocabService{words: words, recent: recent, users: users, shuffle: rand.Shuffle}
}

// RandomWords samples count words of the user's level, avoiding words from
// the user's recent sessions unless too few would remain.
func (s *VocabService) RandomWords(ctx context.Context, userID uuid.UUID, count int) ([]models.VocabularyWord, error) {
	if count == 0 {
		count = defaultWordCount
	}
	if count < 1 || count > maxWordCount {
		return nil, &ValidationError{
			Fields:  map[string]string{"count": fmt.Sprintf("Count must be between 1 and %d", maxWordCount)},
			Message: "Invalid count",
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}

	recent, err := s.recent.RecentTargetWordIDs(ctx, userID, recentSessionWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent words: %w", err)
	}

	pool, err := s.words.ListByLevel(ctx, user.Level, recent)
	if err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	if len(pool) < count && len(recent) > 0 {
		if pool, err = s.words.ListByLevel(ctx, user.Level, nil); err != nil {
			return nil, fmt.Errorf("list words: %w", err)
		}
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > count {
		pool = pool[:count]
	}
	if pool == nil {
		pool = []models.VocabularyWord{}
	}
	return pool, nil
}

// WordsByIDs returns the known words among ids in request order.
func (s *VocabService) WordsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.VocabularyWord, error) {
	return s.words.GetByIDs(ctx, ids)
}
