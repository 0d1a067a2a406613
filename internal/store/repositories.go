package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SecretRepository reads server-side secrets with the service credential.
type SecretRepository interface {
	// Get returns the values found for names; absent names are omitted.
	Get(ctx context.Context, names ...string) (map[string]string, error)
	Set(ctx context.Context, name, value string) error
}

// SyncConfigRepository manages calendar provider connections.
type SyncConfigRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]CalendarSyncConfig, error)
	Upsert(ctx context.Context, cfg CalendarSyncConfig) (*CalendarSyncConfig, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SyncedEventRepository manages the sync ledger.
type SyncedEventRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]SyncedEventRef, error)
	Upsert(ctx context.Context, ref SyncedEventRef) error
}

// FamilyEventRepository handles family calendar events.
type FamilyEventRepository interface {
	ListInWindow(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]FamilyEvent, error)
	Create(ctx context.Context, event FamilyEvent) (*FamilyEvent, error)
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]FamilyEventReminder, error)
	MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// HabitRepository reads habits for reminder jobs.
type HabitRepository interface {
	ListReminderCandidates(ctx context.Context) ([]HabitReminder, error)
	// CompletedOn reports which of habitIDs have a completion on day.
	CompletedOn(ctx context.Context, habitIDs []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error)
}

// TaskRepository reads tasks for reminder jobs.
type TaskRepository interface {
	ListReminderCandidates(ctx context.Context, dueOnOrBefore time.Time) ([]TaskReminder, error)
	MarkReminded(ctx context.Context, ids []uuid.UUID, day time.Time) error
}

// Locker serializes work across processes sharing the database.
type Locker interface {
	// TryLock takes the named lock without waiting. When acquired is true the
	// caller must call release.
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}
