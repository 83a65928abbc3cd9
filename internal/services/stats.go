package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/silano08/tokingtoking/internal/models"
)

type studyStatsStore interface {
	ApplyStudyStats(ctx context.Context, userID uuid.UUID, fn func(models.StudyStats) models.StudyStats) (models.StudyStats, error)
}

// StatsUpdater records a completed session against the user's totals and
// daily streak. Calendar days are taken in the app time zone.
type StatsUpdater struct {
	users studyStatsStore
	loc   *time.Location
	now   func() time.Time
}

func NewStatsUpdater(users studyStatsStore, loc *time.Location) *StatsUpdater {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsUpdater{users: users, loc: loc, now: time.Now}
}

func (u *StatsUpdater) RecordCompletion(ctx context.Context, userID uuid.UUID) error {
	today := calendarDate(u.now(), u.loc)
	_, err := u.users.ApplyStudyStats(ctx, userID, func(cur models.StudyStats) models.StudyStats {
		return nextStudyStats(cur, today)
	})
	return err
}

// nextStudyStats applies one completion on day today.
//
// A second completion on the same day leaves the streak as it is.
func nextStudyStats(cur models.StudyStats, today time.Time) models.StudyStats {
	next := models.StudyStats{
		TotalSessions: cur.TotalSessions + 1,
		StreakDays:    cur.StreakDays,
		LastStudyDate: &today,
	}

	if cur.LastStudyDate == nil {
		next.StreakDays = 1
		return next
	}

	last := calendarDate(*cur.LastStudyDate, time.UTC)
	switch gap := daysBetween(last, today); {
	case gap == 1:
		next.StreakDays = cur.StreakDays + 1
	case gap > 1:
		next.StreakDays = 1
	}
	return next
}

// calendarDate returns t's date in loc as midnight UTC, the form DATE
// columns are read back in.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// startOfDay is local midnight of t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
