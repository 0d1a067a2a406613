package calsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/lifeos/internal/store"
)

type fakeSecrets struct {
	values map[string]string
}

func (f *fakeSecrets) Get(_ context.Context, names ...string) (map[string]string, error) {
	out := map[string]string{}
	for _, n := range names {
		if v, ok := f.values[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (f *fakeSecrets) Set(_ context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type tokenUpdate struct {
	id      uuid.UUID
	access  string
	refresh string
	expires time.Time
}

type fakeConfigs struct {
	rows    []store.CalendarSyncConfig
	updates []tokenUpdate
	touched map[uuid.UUID]time.Time
}

func (f *fakeConfigs) ListByUser(_ context.Context, userID uuid.UUID) ([]store.CalendarSyncConfig, error) {
	var out []store.CalendarSyncConfig
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeConfigs) Upsert(_ context.Context, cfg store.CalendarSyncConfig) (*store.CalendarSyncConfig, error) {
	for i, r := range f.rows {
		if r.UserID == cfg.UserID && r.CalendarID == cfg.CalendarID {
			cfg.ID = r.ID
			if cfg.RefreshToken == "" {
				cfg.RefreshToken = r.RefreshToken
			}
			f.rows[i] = cfg
			return &cfg, nil
		}
	}
	cfg.ID = uuid.New()
	f.rows = append(f.rows, cfg)
	return &cfg, nil
}

func (f *fakeConfigs) UpdateTokens(_ context.Context, id uuid.UUID, access, refresh string, expires time.Time) error {
	f.updates = append(f.updates, tokenUpdate{id: id, access: access, refresh: refresh, expires: expires})
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].AccessToken = access
			if refresh != "" {
				f.rows[i].RefreshToken = refresh
			}
			f.rows[i].TokenExpiresAt = &expires
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeConfigs) TouchLastSync(_ context.Context, id uuid.UUID, at time.Time) error {
	if f.touched == nil {
		f.touched = map[uuid.UUID]time.Time{}
	}
	f.touched[id] = at
	return nil
}

type fakeLedger struct {
	refs []store.SyncedEventRef
}

func (f *fakeLedger) ListByUser(_ context.Context, userID uuid.UUID) ([]store.SyncedEventRef, error) {
	var out []store.SyncedEventRef
	for _, r := range f.refs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) Upsert(_ context.Context, ref store.SyncedEventRef) error {
	for i, r := range f.refs {
		if r.UserID == ref.UserID && r.RemoteEventID == ref.RemoteEventID {
			f.refs[i].LocalEventID = ref.LocalEventID
			return nil
		}
	}
	ref.ID = uuid.New()
	f.refs = append(f.refs, ref)
	return nil
}

type fakeFamily struct {
	events []store.FamilyEvent
}

func (f *fakeFamily) ListInWindow(_ context.Context, userID uuid.UUID, from, to time.Time) ([]store.FamilyEvent, error) {
	var out []store.FamilyEvent
	for _, e := range f.events {
		if e.UserID == userID && !e.StartsAt.Before(from) && !e.StartsAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeFamily) Create(_ context.Context, ev store.FamilyEvent) (*store.FamilyEvent, error) {
	ev.ID = uuid.New()
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeFamily) ListReminderCandidates(context.Context, time.Time, time.Time) ([]store.FamilyEventReminder, error) {
	return nil, nil
}

func (f *fakeFamily) MarkReminded(context.Context, []uuid.UUID, time.Time) error { return nil }

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, true, nil
}

type fixture struct {
	store   *store.Store
	configs *fakeConfigs
	ledger  *fakeLedger
	family  *fakeFamily
	locker  *fakeLocker
	secrets *fakeSecrets
}

func newFixture() *fixture {
	f := &fixture{
		configs: &fakeConfigs{},
		ledger:  &fakeLedger{},
		family:  &fakeFamily{},
		locker:  &fakeLocker{},
		secrets: &fakeSecrets{values: map[string]string{
			"GOOGLE_CLIENT_ID":        "google-client",
			"GOOGLE_CLIENT_SECRET":    "google-secret",
			"MICROSOFT_CLIENT_ID":     "ms-client",
			"MICROSOFT_CLIENT_SECRET": "ms-secret",
		}},
	}
	f.store = &store.Store{
		Secrets:      f.secrets,
		SyncConfigs:  f.configs,
		SyncedEvents: f.ledger,
		FamilyEvents: f.family,
		Locks:        f.locker,
	}
	return f
}
