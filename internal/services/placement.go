package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/models"
)

const (
	questionsPerLevel = 5
	levelPassMark     = 3
)

var levelMessages = map[string]string{
	models.LevelBeginner:     "기초 레벨로 배정되었습니다! 일상 영어부터 시작해요 💪",
	models.LevelIntermediate: "중급 레벨로 배정되었습니다! 다양한 주제로 대화해봐요 📚",
	models.LevelAdvanced:     "고급 레벨로 배정되었습니다! 심화 어휘로 도전해봐요 🚀",
}

type questionStore interface {
	ListByLevel(ctx context.Context, level string, limit int) ([]models.LevelTestQuestion, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.LevelTestQuestion, error)
}

type levelUpdater interface {
	UpdateLevel(ctx context.Context, userID uuid.UUID, level string) error
}

// LevelTestService serves the placement test and assigns a level from it.
type LevelTestService struct {
	questions questionStore
	users     levelUpdater
	log       *zap.Logger
}

func NewLevelTestService(questions questionStore, users levelUpdater, log *zap.Logger) *LevelTestService {
	return &LevelTestService{questions: questions, users: users, log: log}
}

// Questions returns up to five questions per level, easiest level first,
// numbered from 1.
func (s *LevelTestService) Questions(ctx context.Context) (*models.LevelTestQuestionsResponse, error) {
	all := make([]models.LevelTestQuestion, 0, questionsPerLevel*len(models.Levels))
	for _, level := range models.Levels {
		qs, err := s.questions.ListByLevel(ctx, level, questionsPerLevel)
		if err != nil {
			return nil, fmt.Errorf("list %s questions: %w", level, err)
		}
		for _, q := range qs {
			q.Order = len(all) + 1
			all = append(all, q)
		}
	}
	return &models.LevelTestQuestionsResponse{Questions: all, TotalCount: len(all)}, nil
}

// AssignLevel picks the highest level with at least three correct answers.
func AssignLevel(levelScores map[string]int) string {
	switch {
	case levelScores[models.LevelAdvanced] >= levelPassMark:
		return models.LevelAdvanced
	case levelScores[models.LevelIntermediate] >= levelPassMark:
		return models.LevelIntermediate
	default:
		return models.LevelBeginner
	}
}

// Submit grades answers against the stored keys and updates the user's level.
// Only the first answer to a question counts.
func (s *LevelTestService) Submit(ctx context.Context, userID uuid.UUID, answers []models.LevelTestAnswer) (*models.LevelTestResult, error) {
	if len(answers) == 0 {
		return nil, &ValidationError{
			Fields:  map[string]string{"answers": "At least one answer is required"},
			Message: "At least one answer is required",
		}
	}

	seen := make(map[string]bool, len(answers))
	unique := make([]models.LevelTestAnswer, 0, len(answers))
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if a.QuestionID == "" || seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true
		unique = append(unique, a)
		ids = append(ids, a.QuestionID)
	}

	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[string]models.LevelTestQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	levelScores := map[string]int{}
	for _, level := range models.Levels {
		levelScores[level] = 0
	}
	score := 0
	for _, a := range unique {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(a.Answer), strings.TrimSpace(q.CorrectAnswer)) {
			levelScores[q.Level]++
			score++
		}
	}

	assigned := AssignLevel(levelScores)
	if err := s.users.UpdateLevel(ctx, userID, assigned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("update level: %w", err)
	}

	s.log.Info("Level assigned",
		zap.String("user_id", userID.String()),
		zap.String("level", assigned),
		zap.Int("score", score),
	)

	return &models.LevelTestResult{
		Score:         score,
		Total:         len(unique),
		LevelScores:   levelScores,
		AssignedLevel: assigned,
		Message:       levelMessages[assigned],
	}, nil
}
