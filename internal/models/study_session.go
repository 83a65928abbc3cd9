package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ModeChat     = "chat"
	ModeSpeaking = "speaking"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type StudySession struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	Mode          string      `json:"mode"`
	TargetWordIDs []uuid.UUID `json:"target_words"`
	WordsUsed     WordUsage   `json:"words_used"`
	IsCompleted   bool        `json:"is_completed"`
	Version       int         `json:"-"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type CreateSessionRequest struct {
	WordIDs []uuid.UUID `json:"word_ids"`
	Mode    string      `json:"mode"`
}

type InitialMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	WordUsage WordUsage `json:"word_usage"`
}

type CreateSessionResponse struct {
	SessionID      uuid.UUID      `json:"session_id"`
	Mode           string         `json:"mode"`
	TargetWords    []TargetWord   `json:"target_words"`
	InitialMessage InitialMessage `json:"initial_message"`
}

// AssistantMessage is the assistant's reply to a turn together with the
// session's accumulated word usage after that turn.
type AssistantMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	WordUsage WordUsage         `json:"word_usage"`
	Feedback  *SpeakingFeedback `json:"feedback"`
	Hint      *string           `json:"hint"`
}

type SessionStatus struct {
	WordsUsed      WordUsage `json:"words_used"`
	CompletedCount int       `json:"completed_count"`
	IsCompleted    bool      `json:"is_completed"`
}

func StatusOf(u WordUsage) SessionStatus {
	return SessionStatus{WordsUsed: u, CompletedCount: u.UsedCount(), IsCompleted: u.IsComplete()}
}

type WordUsageDetail struct {
	Word     string `json:"word"`
	UsedIn   string `json:"used_in"`
	Feedback string `json:"feedback"`
}

type SessionSummary struct {
	SessionID        uuid.UUID         `json:"session_id"`
	DurationSeconds  int               `json:"duration_seconds"`
	MessageCount     int               `json:"message_count"`
	WordUsageDetails []WordUsageDetail `json:"word_usage_details"`
}

type SendMessageResponse struct {
	Message       AssistantMessage `json:"message"`
	SessionStatus SessionStatus    `json:"session_status"`
	Summary       *SessionSummary  `json:"summary"`
}

type SessionDetail struct {
	SessionID     uuid.UUID     `json:"session_id"`
	Mode          string        `json:"mode"`
	TargetWords   []TargetWord  `json:"target_words"`
	Messages      []ChatMessage `json:"messages"`
	SessionStatus SessionStatus `json:"session_status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at"`
}

// TranscriptionResult carries both the raw speech-to-text output and the
// vocabulary-aware cleanup. Text is what the client should display.
type TranscriptionResult struct {
	Raw       string `json:"raw"`
	Processed string `json:"processed"`
	Text      string `json:"text"`
}
