package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/models"
	"github.com/silano08/tokingtoking/internal/repository"
)

type stubSessionStore struct {
	sessions      map[uuid.UUID]*models.StudySession
	messages      map[uuid.UUID][]models.ChatMessage
	startedToday  int
	conflict      bool
	nextMessageID int64
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{
		sessions: map[uuid.UUID]*models.StudySession{},
		messages: map[uuid.UUID][]models.ChatMessage{},
	}
}

func (s *stubSessionStore) Create(ctx context.Context, sess *models.StudySession, opening *models.ChatMessage) error {
	sess.ID = uuid.New()
	sess.UpdatedAt = sess.StartedAt
	cp := *sess
	s.sessions[sess.ID] = &cp
	opening.SessionID = sess.ID
	s.append(*opening)
	return nil
}

func (s *stubSessionStore) append(m models.ChatMessage) {
	s.nextMessageID++
	m.ID = s.nextMessageID
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
}

func (s *stubSessionStore) GetForUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.StudySession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessionStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

func (s *stubSessionStore) SaveTurn(ctx context.Context, sess *models.StudySession, msgs []*models.ChatMessage) error {
	if s.conflict {
		return repository.ErrVersionConflict
	}
	for _, m := range msgs {
		m.SessionID = sess.ID
		s.append(*m)
	}
	sess.Version++
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *stubSessionStore) CountStartedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	n := s.startedToday
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type stubWordStore struct {
	words map[uuid.UUID]models.VocabularyWord
}

func (s *stubWordStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.VocabularyWord, error) {
	var out []models.VocabularyWord
	for _, id := range ids {
		if w, ok := s.words[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

type stubUserReader struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUserReader) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

type stubStats struct{ calls int }

func (s *stubStats) RecordCompletion(ctx context.Context, userID uuid.UUID) error {
	s.calls++
	return nil
}

type stubPremium struct{ err error }

func (s *stubPremium) CheckPremium(ctx context.Context, userID uuid.UUID) error { return s.err }

// scriptedLLM replays canned replies and records every request.
type scriptedLLM struct {
	replies  []string
	err      error
	requests []ChatRequest
}

func (l *scriptedLLM) Complete(ctx context.Context, req ChatRequest) (string, error) {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return "", l.err
	}
	if len(l.replies) == 0 {
		return `{"message":"ok"}`, nil
	}
	r := l.replies[0]
	l.replies = l.replies[1:]
	return r, nil
}

type sessionFixture struct {
	svc     *SessionService
	store   *stubSessionStore
	llm     *scriptedLLM
	stats   *stubStats
	premium *stubPremium
	users   *stubUserReader
	userID  uuid.UUID
	wordIDs []uuid.UUID
	clock   time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	prompts, err := LoadPromptBook()
	if err != nil {
		t.Fatalf("LoadPromptBook: %v", err)
	}

	words := &stubWordStore{words: map[uuid.UUID]models.VocabularyWord{}}
	var ids []uuid.UUID
	for _, w := range []string{"apple", "borrow", "curious"} {
		id := uuid.New()
		words.words[id] = models.VocabularyWord{ID: id, Word: w, DefinitionKo: w + "-ko", Level: models.LevelBeginner}
		ids = append(ids, id)
	}

	userID := uuid.New()
	users := &stubUserReader{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Level: models.LevelBeginner},
	}}

	f := &sessionFixture{
		store:   newStubSessionStore(),
		llm:     &scriptedLLM{},
		stats:   &stubStats{},
		premium: &stubPremium{},
		users:   users,
		userID:  userID,
		wordIDs: ids,
		clock:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewSessionService(f.store, words, users, f.llm, prompts, f.stats, f.premium,
		SessionOptions{DailyLimit: 3, Location: time.UTC}, nil, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestCreateSessionValidation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		mode string
		ids  []uuid.UUID
	}{
		{"two words", models.ModeChat, f.wordIDs[:2]},
		{"four words", models.ModeChat, append(append([]uuid.UUID{}, f.wordIDs...), uuid.New())},
		{"duplicate word", models.ModeChat, []uuid.UUID{f.wordIDs[0], f.wordIDs[0], f.wordIDs[1]}},
		{"unknown mode", "debate", f.wordIDs},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSession(ctx, f.userID, tc.mode, tc.ids)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(f.llm.requests) != 0 {
		t.Fatalf("model called %d times for invalid input", len(f.llm.requests))
	}
}

func TestCreateSessionUnknownWord(t *testing.T) {
	f := newSessionFixture(t)
	ids := []uuid.UUID{f.wordIDs[0], f.wordIDs[1], uuid.New()}

	_, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, ids)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(f.store.sessions) != 0 {
		t.Fatal("session stored for unknown word")
	}
}

func TestCreateSessionOpeningTurn(t *testing.T) {
	f := newSessionFixture(t)
	f.llm.replies = []string{`{"message":"Welcome to the market!","word_usage":{"apple":true}}`}

	resp, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if resp.InitialMessage.Content != "Welcome to the market!" {
		t.Errorf("opening content = %q", resp.InitialMessage.Content)
	}
	// opening turns never mark words as used
	if resp.InitialMessage.WordUsage.UsedCount() != 0 {
		t.Errorf("opening usage = %v", resp.InitialMessage.WordUsage.UsedWords())
	}
	if len(resp.TargetWords) != 3 || resp.TargetWords[0].Word != "apple" || resp.TargetWords[2].Word != "curious" {
		t.Errorf("target words = %+v", resp.TargetWords)
	}

	req := f.llm.requests[0]
	if req.Mode != models.ModeChat || !req.JSON {
		t.Errorf("opening request mode=%q json=%v", req.Mode, req.JSON)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != openingUserPrompt {
		t.Errorf("opening messages = %+v", req.Messages)
	}
	if !strings.Contains(req.SystemPrompt, "already used correctly: none") {
		t.Errorf("system prompt should list no used words:\n%s", req.SystemPrompt)
	}

	msgs := f.store.messages[resp.SessionID]
	if len(msgs) != 1 || msgs[0].Role != models.RoleAssistant {
		t.Fatalf("stored messages = %+v", msgs)
	}
}

func TestCreateSessionModelFailureStoresNothing(t *testing.T) {
	f := newSessionFixture(t)
	f.llm.replies = []string{"sorry, I cannot do JSON"}

	_, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs)
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if len(f.store.sessions) != 0 {
		t.Fatal("session stored after model failure")
	}
}

func TestCreateSessionDailyLimit(t *testing.T) {
	t.Run("free user over the cap", func(t *testing.T) {
		f := newSessionFixture(t)
		f.store.startedToday = 3
		_, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs)
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
	})

	t.Run("free user under the cap", func(t *testing.T) {
		f := newSessionFixture(t)
		f.store.startedToday = 2
		if _, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	})

	t.Run("premium user is not capped", func(t *testing.T) {
		f := newSessionFixture(t)
		expires := f.clock.Add(24 * time.Hour)
		f.users.users[f.userID].IsPremium = true
		f.users.users[f.userID].PremiumExpiresAt = &expires
		f.store.startedToday = 10
		if _, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	})

	t.Run("lapsed premium user is capped", func(t *testing.T) {
		f := newSessionFixture(t)
		expired := f.clock.Add(-time.Hour)
		f.users.users[f.userID].IsPremium = true
		f.users.users[f.userID].PremiumExpiresAt = &expired
		f.store.startedToday = 3
		_, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeChat, f.wordIDs)
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
	})
}

func TestCreateSpeakingSessionRequiresPremium(t *testing.T) {
	f := newSessionFixture(t)
	f.premium.err = premiumRequired()

	_, err := f.svc.CreateSession(context.Background(), f.userID, models.ModeSpeaking, f.wordIDs)
	var fe *ForbiddenError
	if !errors.As(err, &fe) || fe.Code != CodePremiumRequired {
		t.Fatalf("expected PREMIUM_REQUIRED, got %v", err)
	}
}

func TestSessionConversationToCompletion(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateSession(ctx, f.userID, models.ModeChat, f.wordIDs)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := created.SessionID

	f.llm.replies = []string{
		`{"message":"Nice!","word_usage":{"apple":true,"borrow":false,"curious":false}}`,
		`{"message":"Keep going","word_usage":{"apple":false,"Borrow":true,"dragon":true}}`,
		`{"message":"All done!","word_usage":{"curious":true},"hint":"try again tomorrow"}`,
		`{"message":"Still here","word_usage":{}}`,
	}

	f.clock = f.clock.Add(time.Minute)
	r1, err := f.svc.SendMessage(ctx, f.userID, id, "  I ate an apple  ", models.ModeChat)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if r1.SessionStatus.CompletedCount != 1 || r1.SessionStatus.IsCompleted || r1.Summary != nil {
		t.Fatalf("turn 1 status = %+v summary=%v", r1.SessionStatus, r1.Summary)
	}

	f.clock = f.clock.Add(time.Minute)
	r2, err := f.svc.SendMessage(ctx, f.userID, id, "Can I borrow your pen?", models.ModeChat)
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !r2.Message.WordUsage.Used("apple") {
		t.Error("apple was cleared by a false report")
	}
	if r2.Message.WordUsage.Len() != 3 {
		t.Errorf("unknown word added to usage: %v", r2.Message.WordUsage.Words())
	}
	if r2.SessionStatus.CompletedCount != 2 {
		t.Errorf("turn 2 completed count = %d", r2.SessionStatus.CompletedCount)
	}
	sys := f.llm.requests[len(f.llm.requests)-1].SystemPrompt
	if !strings.Contains(sys, "already used correctly: apple\n") {
		t.Errorf("turn 2 prompt should list apple as used:\n%s", sys)
	}

	f.clock = f.clock.Add(time.Minute)
	r3, err := f.svc.SendMessage(ctx, f.userID, id, "I am CURIOUS about it", models.ModeChat)
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if !r3.SessionStatus.IsCompleted || r3.SessionStatus.CompletedCount != 3 {
		t.Fatalf("turn 3 status = %+v", r3.SessionStatus)
	}
	if r3.Summary == nil {
		t.Fatal("completion turn has no summary")
	}
	if r3.Summary.MessageCount != 7 {
		t.Errorf("message count = %d want 7", r3.Summary.MessageCount)
	}
	if r3.Summary.DurationSeconds != 180 {
		t.Errorf("duration = %d want 180", r3.Summary.DurationSeconds)
	}
	if r3.Message.Hint == nil || *r3.Message.Hint != "try again tomorrow" {
		t.Errorf("hint = %v", r3.Message.Hint)
	}
	details := r3.Summary.WordUsageDetails
	if len(details) != 3 || details[2].UsedIn != "I am CURIOUS about it" || details[0].UsedIn != "I ate an apple" {
		t.Errorf("details = %+v", details)
	}
	if f.stats.calls != 1 {
		t.Fatalf("stats recorded %d times", f.stats.calls)
	}

	// the model sees the full transcript in order
	last := f.llm.requests[len(f.llm.requests)-1]
	if len(last.Messages) != 6 || last.Messages[0].Role != models.RoleAssistant || last.Messages[5].Content != "I am CURIOUS about it" {
		t.Errorf("turn 3 transcript = %+v", last.Messages)
	}

	r4, err := f.svc.SendMessage(ctx, f.userID, id, "one more thing", models.ModeChat)
	if err != nil {
		t.Fatalf("turn 4: %v", err)
	}
	if r4.Summary != nil || !r4.SessionStatus.IsCompleted {
		t.Errorf("turn after completion: summary=%v status=%+v", r4.Summary, r4.SessionStatus)
	}
	if f.stats.calls != 1 {
		t.Fatalf("stats re-triggered: %d calls", f.stats.calls)
	}

	detail, err := f.svc.GetSessionDetail(ctx, f.userID, id)
	if err != nil {
		t.Fatalf("GetSessionDetail: %v", err)
	}
	if len(detail.Messages) != 9 || detail.CompletedAt == nil || !detail.SessionStatus.IsCompleted {
		t.Errorf("detail = %d messages completed_at=%v", len(detail.Messages), detail.CompletedAt)
	}
}

func TestSendMessageSpeakingFeedback(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateSession(ctx, f.userID, models.ModeSpeaking, f.wordIDs)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	reply := `{"message":"Good","word_usage":{},"feedback":{"pronunciation":"clear","grammar":"ok","vocabulary":"nice","score":8.5}}`

	f.llm.replies = []string{reply}
	resp, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, "hello there", models.ModeSpeaking)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Message.Feedback == nil || resp.Message.Feedback.Score != 8.5 {
		t.Fatalf("feedback = %+v", resp.Message.Feedback)
	}
	if f.llm.requests[len(f.llm.requests)-1].Mode != models.ModeSpeaking {
		t.Error("speaking turn did not use speaking model")
	}

	f.llm.replies = []string{reply}
	resp, err = f.svc.SendMessage(ctx, f.userID, created.SessionID, "hello again", models.ModeChat)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Message.Feedback != nil {
		t.Error("chat turn kept speaking feedback")
	}
}

func TestSendMessageErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateSession(ctx, f.userID, models.ModeChat, f.wordIDs)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	t.Run("empty text", func(t *testing.T) {
		_, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, "   ", models.ModeChat)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("too long", func(t *testing.T) {
		_, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, strings.Repeat("가", 501), models.ModeChat)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("exactly the limit", func(t *testing.T) {
		if _, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, strings.Repeat("가", 500), models.ModeChat); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	})

	t.Run("other user's session", func(t *testing.T) {
		_, err := f.svc.SendMessage(ctx, uuid.New(), created.SessionID, "hi", models.ModeChat)
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("malformed model reply", func(t *testing.T) {
		before := len(f.store.messages[created.SessionID])
		f.llm.replies = []string{`["not", "an", "object"]`}
		_, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, "hi", models.ModeChat)
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if len(f.store.messages[created.SessionID]) != before {
			t.Fatal("messages stored after malformed reply")
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		f.llm.err = errors.New("connection reset")
		defer func() { f.llm.err = nil }()
		_, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, "hi", models.ModeChat)
		var ue *UpstreamError
		if !errors.As(err, &ue) || ue.Service != "llm" {
			t.Fatalf("expected llm UpstreamError, got %v", err)
		}
	})

	t.Run("concurrent update", func(t *testing.T) {
		f.store.conflict = true
		defer func() { f.store.conflict = false }()
		_, err := f.svc.SendMessage(ctx, f.userID, created.SessionID, "hi", models.ModeChat)
		var ce *ConflictError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
	})
}

func TestGetSessionDetailNotFound(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.svc.GetSessionDetail(context.Background(), f.userID, uuid.New())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBuildSummaryTruncatesUsedIn(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	long := "apple " + strings.Repeat("x", 200)
	msgs := []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "apple?", CreatedAt: start},
		{Role: models.RoleUser, Content: long, CreatedAt: start.Add(30 * time.Second)},
	}
	words := []models.VocabularyWord{{Word: "apple"}, {Word: "pear"}}

	s := buildSummary(uuid.New(), words, msgs)
	if len(s.WordUsageDetails) != 1 {
		t.Fatalf("details = %+v, want only apple", s.WordUsageDetails)
	}
	if got := []rune(s.WordUsageDetails[0].UsedIn); len(got) != 100 {
		t.Errorf("used_in length = %d", len(got))
	}
	if s.WordUsageDetails[0].Feedback != usageFeedbackMsg {
		t.Errorf("feedback = %q", s.WordUsageDetails[0].Feedback)
	}
	if s.DurationSeconds != 30 || s.MessageCount != 2 {
		t.Errorf("duration=%d count=%d", s.DurationSeconds, s.MessageCount)
	}
}

func TestBuildSummaryOnlyListsMatchedWords(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "Do you like pear or plum?", CreatedAt: start},
		{Role: models.RoleUser, Content: "I ate an Apple", CreatedAt: start.Add(time.Minute)},
	}
	words := []models.VocabularyWord{{Word: "apple"}, {Word: "pear"}, {Word: "plum"}}

	s := buildSummary(uuid.New(), words, msgs)
	if len(s.WordUsageDetails) != 1 {
		t.Fatalf("got %d details, want 1: %+v", len(s.WordUsageDetails), s.WordUsageDetails)
	}
	d := s.WordUsageDetails[0]
	if d.Word != "apple" || d.UsedIn != "I ate an Apple" || d.Feedback != usageFeedbackMsg {
		t.Errorf("detail = %+v", d)
	}
}

func TestBuildSummaryNoMatchesIsEmptyList(t *testing.T) {
	msgs := []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}}
	s := buildSummary(uuid.New(), []models.VocabularyWord{{Word: "apple"}}, msgs)
	if s.WordUsageDetails == nil || len(s.WordUsageDetails) != 0 {
		t.Errorf("details = %#v, want empty non-nil slice", s.WordUsageDetails)
	}
}
