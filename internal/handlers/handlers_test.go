package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
	"github.com/silano08/tokingtoking/internal/services"
)

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

// ─── Error mapping ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		action   string
		hasField string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"word_ids": "bad"}}, http.StatusBadRequest, "VALIDATION_ERROR", "", "word_ids"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND", "", ""},
		{"conflict", &services.ConflictError{Message: "retry"}, http.StatusConflict, "CONFLICT", "", ""},
		{"unauthorized", &services.UnauthorizedError{Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED", "", ""},
		{"premium", &services.ForbiddenError{Code: services.CodePremiumRequired, Message: "m", Action: services.ActionRedirectSubscribe}, http.StatusForbidden, services.CodePremiumRequired, services.ActionRedirectSubscribe, ""},
		{"rate limited", &services.RateLimitError{Message: "cap"}, http.StatusTooManyRequests, "RATE_LIMITED", "", ""},
		{"upstream", &services.UpstreamError{Service: "llm", Err: errors.New("boom")}, http.StatusBadGateway, "UPSTREAM_ERROR", "", ""},
		{"wrapped not found", fmt.Errorf("outer: %w", &services.NotFoundError{Message: "x"}), http.StatusNotFound, "NOT_FOUND", "", ""},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(middleware.RequestIDHeader, "req_abcdef12")
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("status = %d want %d", rr.Code, tc.status)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.code || apiErr.Action != tc.action {
				t.Errorf("code=%s action=%s", apiErr.Code, apiErr.Action)
			}
			if apiErr.RequestID != "req_abcdef12" {
				t.Errorf("request id = %q", apiErr.RequestID)
			}
			if tc.hasField != "" && apiErr.Fields[tc.hasField] == "" {
				t.Errorf("fields = %v", apiErr.Fields)
			}
			if tc.status == http.StatusInternalServerError && apiErr.Message != middleware.InternalErrorMessage {
				t.Errorf("internal error leaked detail: %q", apiErr.Message)
			}
		})
	}
}

// ─── Auth ───

type stubAuthService struct {
	loginErr    error
	logoutToken string
	logoutUser  uuid.UUID
}

func (s *stubAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.LoginResponse{AccessToken: "a", RefreshToken: "r", IsNewUser: true}, nil
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	if refreshToken != "good" {
		return nil, &services.UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}
	return &models.AuthTokens{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	s.logoutUser, s.logoutToken = userID, refreshToken
	return nil
}

func (s *stubAuthService) Me(ctx context.Context, userID uuid.UUID) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Level: models.LevelBeginner}, nil
}

func TestAuthHandler_LoginUpstreamFailureIsBadRequest(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{loginErr: &services.UpstreamError{Service: "toss", Err: errors.New("invalid_grant")}})

	body := `{"authorization_code":"c","referrer":"DEFAULT"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "LOGIN_FAILED" {
		t.Errorf("code = %s", code)
	}
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"authorization_code":"c","referrer":"r"}`))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp models.LoginResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.AccessToken != "a" || !resp.IsNewUser {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"refresh_token":"good"}`, http.StatusOK},
		{"revoked", `{"refresh_token":"bad"}`, http.StatusUnauthorized},
		{"missing", `{}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Refresh(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("status = %d want %d", rr.Code, tc.status)
			}
		})
	}
}

func TestAuthHandler_LogoutWithAndWithoutBody(t *testing.T) {
	svc := &stubAuthService{}
	h := NewAuthHandler(svc)
	userID := uuid.New()

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), userID)
	rr := httptest.NewRecorder()
	h.Logout(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("empty body status = %d", rr.Code)
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", strings.NewReader(`{"refresh_token":"tok"}`)), userID)
	rr = httptest.NewRecorder()
	h.Logout(rr, req)
	if rr.Code != http.StatusOK || svc.logoutToken != "tok" || svc.logoutUser != userID {
		t.Fatalf("status=%d token=%q user=%s", rr.Code, svc.logoutToken, svc.logoutUser)
	}
}

// ─── Premium gate ───

type stubPremiumChecker struct {
	err    error
	called uuid.UUID
}

func (s *stubPremiumChecker) CheckPremium(ctx context.Context, userID uuid.UUID) error {
	s.called = userID
	return s.err
}

func TestRequirePremium(t *testing.T) {
	userID := uuid.New()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("premium user passes", func(t *testing.T) {
		checker := &stubPremiumChecker{}
		rr := httptest.NewRecorder()
		RequirePremium(checker)(next).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/", nil), userID))
		if rr.Code != http.StatusTeapot || checker.called != userID {
			t.Fatalf("status=%d checked=%s", rr.Code, checker.called)
		}
	})

	t.Run("expired subscription blocked", func(t *testing.T) {
		checker := &stubPremiumChecker{err: &services.ForbiddenError{
			Code: services.CodeSubscriptionExpired, Message: "expired", Action: services.ActionRedirectSubscribe,
		}}
		rr := httptest.NewRecorder()
		RequirePremium(checker)(next).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPost, "/", nil), userID))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d", rr.Code)
		}
		apiErr := decodeError(t, rr)
		if apiErr.Code != services.CodeSubscriptionExpired || apiErr.Action != services.ActionRedirectSubscribe {
			t.Errorf("error = %+v", apiErr)
		}
	})
}

// ─── Vocab / history query parsing ───

type stubVocabService struct{ count int }

func (s *stubVocabService) RandomWords(ctx context.Context, userID uuid.UUID, count int) ([]models.VocabularyWord, error) {
	s.count = count
	if count > 5 {
		return nil, &services.ValidationError{Fields: map[string]string{"count": "too many"}}
	}
	return []models.VocabularyWord{{ID: uuid.New(), Word: "apple"}}, nil
}

func TestVocabHandler_Random(t *testing.T) {
	tests := []struct {
		query     string
		status    int
		wantCount int
	}{
		{"", http.StatusOK, 0},
		{"?count=4", http.StatusOK, 4},
		{"?count=9", http.StatusBadRequest, 9},
		{"?count=three", http.StatusBadRequest, -1},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			svc := &stubVocabService{count: -1}
			h := NewVocabHandler(svc)
			rr := httptest.NewRecorder()
			h.Random(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/vocab/random"+tc.query, nil), uuid.New()))
			if rr.Code != tc.status || svc.count != tc.wantCount {
				t.Fatalf("status=%d count=%d", rr.Code, svc.count)
			}
		})
	}
}

type stubHistoryService struct{ page, limit, days int }

func (s *stubHistoryService) Sessions(ctx context.Context, userID uuid.UUID, page, limit int) (*models.SessionListResponse, error) {
	s.page, s.limit = page, limit
	return &models.SessionListResponse{Sessions: []models.SessionListItem{}, Page: page, Limit: limit}, nil
}

func (s *stubHistoryService) Stats(ctx context.Context, userID uuid.UUID) (*models.UserStatsResponse, error) {
	return &models.UserStatsResponse{Level: models.LevelBeginner}, nil
}

func (s *stubHistoryService) WordHistory(ctx context.Context, userID uuid.UUID, days int) (*models.WordHistoryResponse, error) {
	s.days = days
	return &models.WordHistoryResponse{History: []models.DayWords{}}, nil
}

func TestHistoryHandler_QueryParams(t *testing.T) {
	svc := &stubHistoryService{}
	h := NewHistoryHandler(svc)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Sessions(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/history/sessions?page=2&limit=20", nil), userID))
	if rr.Code != http.StatusOK || svc.page != 2 || svc.limit != 20 {
		t.Fatalf("status=%d page=%d limit=%d", rr.Code, svc.page, svc.limit)
	}

	rr = httptest.NewRecorder()
	h.Sessions(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/history/sessions?page=x", nil), userID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.WordHistory(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/history/word-history?limit=7", nil), userID))
	if rr.Code != http.StatusOK || svc.days != 7 {
		t.Fatalf("status=%d days=%d", rr.Code, svc.days)
	}
}

// ─── Level test / IAP ───

type stubLevelTestService struct{ answers []models.LevelTestAnswer }

func (s *stubLevelTestService) Questions(ctx context.Context) (*models.LevelTestQuestionsResponse, error) {
	return &models.LevelTestQuestionsResponse{
		Questions:  []models.LevelTestQuestion{{ID: "q1", CorrectAnswer: "secret", Order: 1}},
		TotalCount: 1,
	}, nil
}

func (s *stubLevelTestService) Submit(ctx context.Context, userID uuid.UUID, answers []models.LevelTestAnswer) (*models.LevelTestResult, error) {
	s.answers = answers
	return &models.LevelTestResult{Score: 1, Total: 1, AssignedLevel: models.LevelBeginner}, nil
}

func TestLevelTestHandler_QuestionsHideAnswers(t *testing.T) {
	h := NewLevelTestHandler(&stubLevelTestService{})
	rr := httptest.NewRecorder()
	h.Questions(rr, httptest.NewRequest(http.MethodGet, "/api/level-test/questions", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("correct answer exposed: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"total_count":1`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestLevelTestHandler_Submit(t *testing.T) {
	svc := &stubLevelTestService{}
	h := NewLevelTestHandler(svc)
	body := `{"answers":[{"question_id":"q1","answer":"b"}]}`
	rr := httptest.NewRecorder()
	h.Submit(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/level-test/submit", strings.NewReader(body)), uuid.New()))

	if rr.Code != http.StatusOK || len(svc.answers) != 1 || svc.answers[0].Answer != "b" {
		t.Fatalf("status=%d answers=%+v", rr.Code, svc.answers)
	}
}

type stubIAPService struct{}

func (stubIAPService) VerifyAndActivate(ctx context.Context, userID uuid.UUID, req models.VerifyPurchaseRequest) (*models.VerifyPurchaseResponse, error) {
	if req.OrderID == "pending" {
		return &models.VerifyPurchaseResponse{Verified: false}, nil
	}
	return &models.VerifyPurchaseResponse{Verified: true, Subscription: &models.SubscriptionInfo{Status: "active", ProductID: req.ProductID}}, nil
}

func (stubIAPService) SubscriptionStatus(ctx context.Context, userID uuid.UUID) (*models.SubscriptionStatusResponse, error) {
	return &models.SubscriptionStatusResponse{IsPremium: false}, nil
}

func TestIAPHandler_VerifyUnverifiedIsNotAnError(t *testing.T) {
	h := NewIAPHandler(stubIAPService{})
	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"order_id":"pending","product_id":"monthly_premium"}`)
	h.Verify(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/iap/verify", body), uuid.New()))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"verified":false,"subscription":null}` {
		t.Errorf("body = %s", got)
	}
}

// ─── Chat ───

type stubSessionService struct {
	created     bool
	sentMode    string
	sentText    string
	sentSession uuid.UUID
	targetWords []string
	sendErr     error
}

func (s *stubSessionService) CreateSession(ctx context.Context, userID uuid.UUID, mode string, wordIDs []uuid.UUID) (*models.CreateSessionResponse, error) {
	if len(wordIDs) != 3 {
		return nil, &services.ValidationError{Fields: map[string]string{"word_ids": "Exactly 3 words are required"}}
	}
	s.created = true
	return &models.CreateSessionResponse{SessionID: uuid.New(), Mode: mode}, nil
}

func (s *stubSessionService) SendMessage(ctx context.Context, userID, sessionID uuid.UUID, text, mode string) (*models.SendMessageResponse, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sentSession, s.sentText, s.sentMode = sessionID, text, mode
	usage := models.NewWordUsage([]string{"apple"})
	return &models.SendMessageResponse{
		Message:       models.AssistantMessage{Role: models.RoleAssistant, Content: "hi", WordUsage: usage},
		SessionStatus: models.StatusOf(usage),
	}, nil
}

func (s *stubSessionService) GetSessionDetail(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionDetail, error) {
	return nil, &services.NotFoundError{Message: "Session not found"}
}

func (s *stubSessionService) TargetWords(ctx context.Context, userID, sessionID uuid.UUID) ([]string, error) {
	return s.targetWords, nil
}

func TestChatHandler_CreateSession(t *testing.T) {
	svc := &stubSessionService{}
	h := NewChatHandler(svc)

	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	body, _ := json.Marshal(map[string]interface{}{"word_ids": ids, "mode": "chat"})
	rr := httptest.NewRecorder()
	h.CreateSession(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/chat/session", bytes.NewReader(body)), uuid.New()))
	if rr.Code != http.StatusCreated || !svc.created {
		t.Fatalf("status = %d", rr.Code)
	}

	body, _ = json.Marshal(map[string]interface{}{"word_ids": ids[:2], "mode": "chat"})
	rr = httptest.NewRecorder()
	h.CreateSession(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/chat/session", bytes.NewReader(body)), uuid.New()))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("two words status = %d", rr.Code)
	}
}

func TestChatHandler_SendMessageUsesChatMode(t *testing.T) {
	svc := &stubSessionService{}
	h := NewChatHandler(svc)
	sessionID := uuid.New()

	body := fmt.Sprintf(`{"session_id":%q,"content":"I ate an apple"}`, sessionID)
	rr := httptest.NewRecorder()
	h.SendMessage(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/chat/message", strings.NewReader(body)), uuid.New()))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if svc.sentMode != models.ModeChat || svc.sentSession != sessionID || svc.sentText != "I ate an apple" {
		t.Errorf("sent mode=%s session=%s text=%q", svc.sentMode, svc.sentSession, svc.sentText)
	}
	if !strings.Contains(rr.Body.String(), `"word_usage":{"apple":false}`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestChatHandler_GetSession(t *testing.T) {
	h := NewChatHandler(&stubSessionService{})

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", uuid.NewString())
	req := httptest.NewRequest(http.MethodGet, "/api/chat/session/x", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	req = withUser(req, uuid.New())
	rr := httptest.NewRecorder()
	h.GetSession(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}

	rctx = chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-uuid")
	req = httptest.NewRequest(http.MethodGet, "/api/chat/session/not-a-uuid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr = httptest.NewRecorder()
	h.GetSession(rr, withUser(req, uuid.New()))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rr.Code)
	}
}
