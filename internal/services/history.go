package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/silano08/tokingtoking/internal/models"
)

const (
	defaultHistoryPageSize = 10
	maxHistoryPageSize     = 50
	defaultHistoryDays     = 30
	maxHistoryDays         = 90
	historySessionScan     = 100
)

type historyStore interface {
	ListSessions(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.SessionListItem, int, error)
	CountCompleted(ctx context.Context, userID uuid.UUID) (int, error)
	CountStartedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	CompletedSessionWords(ctx context.Context, userID uuid.UUID, limit int) ([]models.CompletedSessionWords, error)
}

// HistoryService reports a user's past sessions and study statistics.
type HistoryService struct {
	history historyStore
	users   userReader
	loc     *time.Location
	now     func() time.Time
}

func NewHistoryService(history historyStore, users userReader, loc *time.Location) *HistoryService {
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryService{history: history, users: users, loc: loc, now: time.Now}
}

// Sessions pages through the user's sessions, newest first. Zero page or
// limit take their defaults.
func (s *HistoryService) Sessions(ctx context.Context, userID uuid.UUID, page, limit int) (*models.SessionListResponse, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultHistoryPageSize
	}
	fieldErrors := make(map[string]string)
	if page < 1 {
		fieldErrors["page"] = "Page must be at least 1"
	}
	if limit < 1 || limit > maxHistoryPageSize {
		fieldErrors["limit"] = fmt.Sprintf("Limit must be between 1 and %d", maxHistoryPageSize)
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	items, total, err := s.history.ListSessions(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return &models.SessionListResponse{Sessions: items, Page: page, Limit: limit, Total: total}, nil
}

func (s *HistoryService) Stats(ctx context.Context, userID uuid.UUID) (*models.UserStatsResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	completed, err := s.history.CountCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count completed sessions: %w", err)
	}
	today, err := s.history.CountStartedSince(ctx, userID, startOfDay(s.now(), s.loc))
	if err != nil {
		return nil, fmt.Errorf("count today's sessions: %w", err)
	}

	return &models.UserStatsResponse{
		Level:             user.Level,
		TotalSessions:     user.TotalSessions,
		CompletedSessions: completed,
		TodaySessions:     today,
		StreakDays:        user.StreakDays,
		LastStudyDate:     models.FormatDate(user.LastStudyDate),
	}, nil
}

// WordHistory groups the words of completed sessions by the local date the
// session started, newest day first, keeping at most days entries.
func (s *HistoryService) WordHistory(ctx context.Context, userID uuid.UUID, days int) (*models.WordHistoryResponse, error) {
	if days == 0 {
		days = defaultHistoryDays
	}
	if days < 1 || days > maxHistoryDays {
		return nil, &ValidationError{
			Fields: map[string]string{"limit": fmt.Sprintf("Limit must be between 1 and %d", maxHistoryDays)},
		}
	}

	sessions, err := s.history.CompletedSessionWords(ctx, userID, historySessionScan)
	if err != nil {
		return nil, fmt.Errorf("load completed sessions: %w", err)
	}

	type dayBucket struct {
		sessions int
		words    map[uuid.UUID]models.WordBrief
	}
	buckets := make(map[string]*dayBucket)
	for _, cs := range sessions {
		day := cs.StartedAt.In(s.loc).Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &dayBucket{words: make(map[uuid.UUID]models.WordBrief)}
			buckets[day] = b
		}
		b.sessions++
		for _, w := range cs.Words {
			b.words[w.ID] = w
		}
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > days {
		dates = dates[:days]
	}

	history := make([]models.DayWords, 0, len(dates))
	for _, d := range dates {
		b := buckets[d]
		words := make([]models.WordBrief, 0, len(b.words))
		for _, w := range b.words {
			words = append(words, w)
		}
		sort.Slice(words, func(i, j int) bool { return words[i].Word < words[j].Word })
		history = append(history, models.DayWords{Date: d, SessionCount: b.sessions, Words: words})
	}
	return &models.WordHistoryResponse{History: history, TotalDays: len(history)}, nil
}
