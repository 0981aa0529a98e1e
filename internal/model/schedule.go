package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus is the lifecycle state of a booked lab session.
// Transitions: pending -> approved -> active -> ended, with cancelled
// reachable from pending or approved. Schedules are never hard-deleted.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleApproved  ScheduleStatus = "approved"
	ScheduleActive    ScheduleStatus = "active"
	ScheduleCancelled ScheduleStatus = "cancelled"
	ScheduleEnded     ScheduleStatus = "ended"
)

// Schedule represents one requested or booked lab session. ComputerID,
// Password and RDPPort are set once at approval and never change afterwards.
type Schedule struct {
	ID         uuid.UUID      `json:"id"`
	Email      string         `json:"email"`
	UserName   string         `json:"user_name"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	Status     ScheduleStatus `json:"status"`
	ComputerID *uuid.UUID     `json:"computer_id,omitempty"`
	Password   string         `json:"password,omitempty"`
	RDPPort    int            `json:"rdp_port,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Overlaps reports whether the half-open interval [start,end) intersects this
// schedule's interval. Shared boundary instants do not overlap.
func (s *Schedule) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// DeriveUserName builds the short Windows account name for a session from the
// requester's email: alphanumerics only, truncated to 5 characters.
func DeriveUserName(email string) string {
	var b strings.Builder
	for _, r := range email {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 5 {
			break
		}
	}
	return b.String()
}
