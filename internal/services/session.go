package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/metrics"
	"github.com/silano08/tokingtoking/internal/models"
	"github.com/silano08/tokingtoking/internal/repository"
)

const (
	targetWordCount  = 3
	maxMessageRunes  = 500
	usedInMaxRunes   = 100
	usageFeedbackMsg = "자연스럽게 사용했어요!"
)

type sessionStore interface {
	Create(ctx context.Context, s *models.StudySession, opening *models.ChatMessage) error
	GetForUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error)
	SaveTurn(ctx context.Context, s *models.StudySession, msgs []*models.ChatMessage) error
	CountStartedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

type wordStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.VocabularyWord, error)
}

type userReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type statsRecorder interface {
	RecordCompletion(ctx context.Context, userID uuid.UUID) error
}

type premiumChecker interface {
	CheckPremium(ctx context.Context, userID uuid.UUID) error
}

// SessionOptions tunes the free tier. A DailyLimit of zero disables the cap.
type SessionOptions struct {
	DailyLimit int
	Location   *time.Location
}

// SessionService drives a study session from its opening turn to completion.
// A session is completed once every target word has been used; it stays
// open for conversation afterwards.
type SessionService struct {
	sessions sessionStore
	words    wordStore
	users    userReader
	llm      ChatGateway
	prompts  *PromptBook
	stats    statsRecorder
	premium  premiumChecker
	opts     SessionOptions
	metrics  *metrics.Metrics
	now      func() time.Time
	log      *zap.Logger
}

func NewSessionService(
	sessions sessionStore,
	words wordStore,
	users userReader,
	llm ChatGateway,
	prompts *PromptBook,
	stats statsRecorder,
	premium premiumChecker,
	opts SessionOptions,
	m *metrics.Metrics,
	log *zap.Logger,
) *SessionService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &SessionService{
		sessions: sessions,
		words:    words,
		users:    users,
		llm:      llm,
		prompts:  prompts,
		stats:    stats,
		premium:  premium,
		opts:     opts,
		metrics:  m,
		now:      time.Now,
		log:      log,
	}
}

func sessionNotFound() error {
	return &NotFoundError{Message: "Session not found"}
}

func validateWordIDs(ids []uuid.UUID) error {
	if len(ids) != targetWordCount {
		return &ValidationError{
			Fields:  map[string]string{"word_ids": "Exactly 3 words are required"},
			Message: "Exactly 3 words are required",
		}
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return &ValidationError{
				Fields:  map[string]string{"word_ids": "Words must be distinct"},
				Message: "Words must be distinct",
			}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ValidationError{
			Fields:  map[string]string{"content": "Message is required"},
			Message: "Message is required",
		}
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return "", &ValidationError{
			Fields:  map[string]string{"content": fmt.Sprintf("Message must be at most %d characters", maxMessageRunes)},
			Message: "Message is too long",
		}
	}
	return text, nil
}

// CreateSession starts a session over exactly three words and asks the model
// for an opening turn. Nothing is stored unless the opening turn succeeds.
func (s *SessionService) CreateSession(ctx context.Context, userID uuid.UUID, mode string, wordIDs []uuid.UUID) (*models.CreateSessionResponse, error) {
	if mode == "" {
		mode = models.ModeChat
	}
	if mode != models.ModeChat && mode != models.ModeSpeaking {
		return nil, &ValidationError{
			Fields:  map[string]string{"mode": "Mode must be chat or speaking"},
			Message: "Invalid mode",
		}
	}
	if err := validateWordIDs(wordIDs); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}

	if mode == models.ModeSpeaking {
		if err := s.premium.CheckPremium(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := s.checkDailyLimit(ctx, user); err != nil {
		return nil, err
	}

	words, err := s.words.GetByIDs(ctx, wordIDs)
	if err != nil {
		return nil, fmt.Errorf("load target words: %w", err)
	}
	if len(words) != len(wordIDs) {
		return nil, &NotFoundError{Message: "Word not found"}
	}

	usage := models.NewWordUsage(models.WordNames(words))
	system, err := s.prompts.SystemPrompt(mode, user.Level, usage)
	if err != nil {
		return nil, err
	}

	// The opening scene is always set by the chat model.
	raw, err := s.llm.Complete(ctx, ChatRequest{
		Mode:         models.ModeChat,
		SystemPrompt: system,
		Messages:     []ChatTurn{{Role: models.RoleUser, Content: openingUserPrompt}},
		Temperature:  conversationTemperature,
		JSON:         true,
	})
	if err != nil {
		return nil, upstreamErr("llm", err)
	}
	reply, err := ParseTurnReply(raw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.StudySession{
		UserID:        userID,
		Mode:          mode,
		TargetWordIDs: wordIDs,
		WordsUsed:     usage,
		StartedAt:     now,
	}
	opening := &models.ChatMessage{
		Role:              models.RoleAssistant,
		Content:           reply.Message,
		WordUsageSnapshot: usage,
		CreatedAt:         now,
	}
	if err := s.sessions.Create(ctx, session, opening); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.metrics.SessionEvent(mode, "created")
	s.log.Info("Study session created",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("mode", mode),
	)

	return &models.CreateSessionResponse{
		SessionID:   session.ID,
		Mode:        mode,
		TargetWords: models.TargetWords(words),
		InitialMessage: models.InitialMessage{
			Role:      models.RoleAssistant,
			Content:   reply.Message,
			WordUsage: usage,
		},
	}, nil
}

func (s *SessionService) checkDailyLimit(ctx context.Context, user *models.User) error {
	if s.opts.DailyLimit <= 0 {
		return nil
	}
	now := s.now()
	if hasActivePremium(user, now) {
		return nil
	}
	started, err := s.sessions.CountStartedSince(ctx, user.ID, startOfDay(now, s.opts.Location))
	if err != nil {
		return fmt.Errorf("count today's sessions: %w", err)
	}
	if started >= s.opts.DailyLimit {
		return &RateLimitError{Message: fmt.Sprintf("일일 무료 학습 횟수(%d회)를 초과했습니다. Premium으로 업그레이드하세요!", s.opts.DailyLimit)}
	}
	return nil
}

// SendMessage runs one conversation turn. mode selects the model variant and
// whether speaking feedback is kept on the reply.
func (s *SessionService) SendMessage(ctx context.Context, userID, sessionID uuid.UUID, text, mode string) (*models.SendMessageResponse, error) {
	text, err := validateMessage(text)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sessionNotFound()
		}
		return nil, err
	}
	words, err := s.words.GetByIDs(ctx, session.TargetWordIDs)
	if err != nil {
		return nil, fmt.Errorf("load target words: %w", err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	history, err := s.sessions.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	current := session.WordsUsed.Reconcile(models.WordNames(words))
	system, err := s.prompts.SystemPrompt(mode, user.Level, current)
	if err != nil {
		return nil, err
	}

	turns := make([]ChatTurn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, ChatTurn{Role: models.RoleUser, Content: text})

	raw, err := s.llm.Complete(ctx, ChatRequest{
		Mode:         mode,
		SystemPrompt: system,
		Messages:     turns,
		Temperature:  conversationTemperature,
		JSON:         true,
	})
	if err != nil {
		return nil, upstreamErr("llm", err)
	}
	reply, err := ParseTurnReply(raw)
	if err != nil {
		return nil, err
	}

	merged := current.Merge(reply.WordUsage)
	wasCompleted := session.IsCompleted
	firstCompletion := !wasCompleted && merged.IsComplete()

	now := s.now()
	session.WordsUsed = merged
	session.UpdatedAt = now
	if firstCompletion {
		session.IsCompleted = true
		session.CompletedAt = &now
	}

	feedback := reply.Feedback
	if mode != models.ModeSpeaking {
		feedback = nil
	}
	userMsg := &models.ChatMessage{
		Role:              models.RoleUser,
		Content:           text,
		WordUsageSnapshot: merged,
		CreatedAt:         now,
	}
	assistantMsg := &models.ChatMessage{
		Role:              models.RoleAssistant,
		Content:           reply.Message,
		Feedback:          feedback,
		WordUsageSnapshot: merged,
		CreatedAt:         now,
	}
	if err := s.sessions.SaveTurn(ctx, session, []*models.ChatMessage{userMsg, assistantMsg}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, &ConflictError{Message: "Session was updated by another request. Please retry."}
		}
		return nil, fmt.Errorf("save turn: %w", err)
	}
	s.metrics.SessionEvent(session.Mode, "turn")

	resp := &models.SendMessageResponse{
		Message: models.AssistantMessage{
			Role:      models.RoleAssistant,
			Content:   reply.Message,
			WordUsage: merged,
			Feedback:  feedback,
			Hint:      reply.Hint,
		},
		SessionStatus: models.StatusOf(merged),
	}

	if firstCompletion {
		s.metrics.SessionEvent(session.Mode, "completed")
		s.log.Info("Study session completed",
			zap.String("session_id", session.ID.String()),
			zap.String("user_id", userID.String()),
		)
		// The turn is already stored; a stats failure must not fail it.
		if err := s.stats.RecordCompletion(ctx, userID); err != nil {
			s.log.Error("Failed to record study stats",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		all := append(history, *userMsg, *assistantMsg)
		resp.Summary = buildSummary(session.ID, words, all)
	}

	return resp, nil
}

// GetSessionDetail returns a session with its full transcript.
func (s *SessionService) GetSessionDetail(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionDetail, error) {
	session, err := s.sessions.GetForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sessionNotFound()
		}
		return nil, err
	}
	words, err := s.words.GetByIDs(ctx, session.TargetWordIDs)
	if err != nil {
		return nil, fmt.Errorf("load target words: %w", err)
	}
	msgs, err := s.sessions.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}

	usage := session.WordsUsed.Reconcile(models.WordNames(words))
	status := models.StatusOf(usage)
	status.IsCompleted = session.IsCompleted

	return &models.SessionDetail{
		SessionID:     session.ID,
		Mode:          session.Mode,
		TargetWords:   models.TargetWords(words),
		Messages:      msgs,
		SessionStatus: status,
		StartedAt:     session.StartedAt,
		CompletedAt:   session.CompletedAt,
	}, nil
}

// TargetWords returns the surface forms of a session's target words, used
// to steer transcription.
func (s *SessionService) TargetWords(ctx context.Context, userID, sessionID uuid.UUID) ([]string, error) {
	session, err := s.sessions.GetForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sessionNotFound()
		}
		return nil, err
	}
	words, err := s.words.GetByIDs(ctx, session.TargetWordIDs)
	if err != nil {
		return nil, fmt.Errorf("load target words: %w", err)
	}
	return models.WordNames(words), nil
}

func buildSummary(sessionID uuid.UUID, words []models.VocabularyWord, msgs []models.ChatMessage) *models.SessionSummary {
	summary := &models.SessionSummary{
		SessionID:        sessionID,
		MessageCount:     len(msgs),
		WordUsageDetails: make([]models.WordUsageDetail, 0, len(words)),
	}
	if len(msgs) > 1 {
		d := msgs[len(msgs)-1].CreatedAt.Sub(msgs[0].CreatedAt)
		if d > 0 {
			summary.DurationSeconds = int(d.Seconds())
		}
	}

	// Only words found in a user message get a detail entry.
	for _, w := range words {
		needle := strings.ToLower(w.Word)
		for _, m := range msgs {
			if m.Role == models.RoleUser && strings.Contains(strings.ToLower(m.Content), needle) {
				summary.WordUsageDetails = append(summary.WordUsageDetails, models.WordUsageDetail{
					Word:     w.Word,
					UsedIn:   truncateRunes(m.Content, usedInMaxRunes),
					Feedback: usageFeedbackMsg,
				})
				break
			}
		}
	}
	return summary
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// upstreamErr keeps typed service errors as they are and wraps anything else
// from a provider as an UpstreamError.
func upstreamErr(service string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return upstream(service, err)
}
