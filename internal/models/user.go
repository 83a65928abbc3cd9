package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Levels lists proficiency levels from easiest to hardest.
var Levels = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}

type User struct {
	ID               uuid.UUID  `json:"id"`
	TossUserKey      string     `json:"-"`
	Level            string     `json:"level"`
	IsPremium        bool       `json:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	TotalSessions    int        `json:"total_sessions"`
	StreakDays       int        `json:"streak_days"`
	LastStudyDate    *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// StudyStats is the slice of a user row touched when a session completes.
type StudyStats struct {
	TotalSessions int
	StreakDays    int
	LastStudyDate *time.Time
}

// UserInfo is the public profile returned by login and /auth/me.
type UserInfo struct {
	ID            uuid.UUID `json:"id"`
	Level         string    `json:"level"`
	IsPremium     bool      `json:"is_premium"`
	TotalSessions int       `json:"total_sessions"`
	StreakDays    int       `json:"streak_days"`
	LastStudyDate *string   `json:"last_study_date"`
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:            u.ID,
		Level:         u.Level,
		IsPremium:     u.IsPremium,
		TotalSessions: u.TotalSessions,
		StreakDays:    u.StreakDays,
		LastStudyDate: FormatDate(u.LastStudyDate),
	}
}

// FormatDate renders a calendar date as YYYY-MM-DD, or nil.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

type LoginRequest struct {
	AuthorizationCode string `json:"authorization_code"`
	Referrer          string `json:"referrer"`
}

type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserInfo `json:"user"`
	IsNewUser    bool     `json:"is_new_user"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
