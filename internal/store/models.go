package store

import (
	"time"

	"github.com/google/uuid"
)

// LocalEventTypeFamily marks ledger rows that point at family_events.
const LocalEventTypeFamily = "family_event"

// EventTypeAppointment is the family event type given to pulled remote events.
const EventTypeAppointment = "appointment"

// CalendarSyncConfig is one provider connection for a user. The provider is
// encoded in CalendarID ("primary" for Google, "outlook_*" for Microsoft).
type CalendarSyncConfig struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CalendarID     string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	SyncEnabled    bool
	LastSyncAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncedEventRef links a remote provider event to a local event.
type SyncedEventRef struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	RemoteEventID  string
	LocalEventID   uuid.UUID
	LocalEventType string
	CreatedAt      time.Time
}

// FamilyEvent is a dated entry in the family calendar.
type FamilyEvent struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	FamilyMemberID  *uuid.UUID
	Title           string
	Description     *string
	Location        *string
	EventType       string
	StartsAt        time.Time
	EndsAt          *time.Time
	AllDay          bool
	ReminderEnabled bool
	ReminderSentAt  *time.Time
	CreatedAt       time.Time
}

// Recipient is the profile data needed to address a reminder email.
type Recipient struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Timezone    string
}

// HabitReminder is a habit with a reminder time, joined with its owner.
type HabitReminder struct {
	Recipient
	HabitID      uuid.UUID
	HabitName    string
	ReminderTime string // HH:MM in the owner's timezone
}

// TaskReminder is an open task with a due date, joined with its owner.
type TaskReminder struct {
	Recipient
	TaskID         uuid.UUID
	Title          string
	Status         string
	Priority       string
	DueDate        time.Time
	ReminderSentOn *time.Time
}

// FamilyEventReminder is an upcoming family event, joined with its owner.
type FamilyEventReminder struct {
	Recipient
	EventID    uuid.UUID
	Title      string
	Location   string
	MemberName string
	StartsAt   time.Time
	AllDay     bool
}
