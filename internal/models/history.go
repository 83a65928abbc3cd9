package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionListItem struct {
	ID          uuid.UUID   `json:"id"`
	Mode        string      `json:"mode"`
	TargetWords []uuid.UUID `json:"target_words"`
	WordsUsed   WordUsage   `json:"words_used"`
	IsCompleted bool        `json:"is_completed"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

type SessionListResponse struct {
	Sessions []SessionListItem `json:"sessions"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Total    int               `json:"total"`
}

type UserStatsResponse struct {
	Level             string  `json:"level"`
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	TodaySessions     int     `json:"today_sessions"`
	StreakDays        int     `json:"streak_days"`
	LastStudyDate     *string `json:"last_study_date"`
}

// CompletedSessionWords is one completed session's start time and target words.
type CompletedSessionWords struct {
	StartedAt time.Time
	Words     []WordBrief
}

type DayWords struct {
	Date         string      `json:"date"`
	SessionCount int         `json:"session_count"`
	Words        []WordBrief `json:"words"`
}

type WordHistoryResponse struct {
	History   []DayWords `json:"history"`
	TotalDays int        `json:"total_days"`
}
