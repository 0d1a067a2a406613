package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// secretRepo implements SecretRepository.
type secretRepo struct {
	pool PgxPool
}

func (r *secretRepo) Get(ctx context.Context, names ...string) (map[string]string, error) {
	defer observeDB(ctx, "secrets.get")()

	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT name, value FROM app_secrets WHERE name = ANY($1::text[])`, names)
	if err != nil {
		return nil, fmt.Errorf("query secrets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		if value != "" {
			out[name] = value
		}
	}
	return out, rows.Err()
}

func (r *secretRepo) Set(ctx context.Context, name, value string) error {
	defer observeDB(ctx, "secrets.set")()

	const q = `INSERT INTO app_secrets (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, name, value); err != nil {
		return fmt.Errorf("set secret %s: %w", name, err)
	}
	return nil
}

// syncConfigRepo implements SyncConfigRepository.
type syncConfigRepo struct {
	pool PgxPool
}

func (r *syncConfigRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]CalendarSyncConfig, error) {
	defer observeDB(ctx, "sync_config.list_by_user")()

	const q = `SELECT id, user_id, calendar_id, access_token, COALESCE(refresh_token, ''), token_expires_at,
       sync_enabled, last_sync_at, created_at, updated_at
FROM calendar_sync_config WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query sync configs: %w", err)
	}
	defer rows.Close()

	var result []CalendarSyncConfig
	for rows.Next() {
		var c CalendarSyncConfig
		if err := rows.Scan(&c.ID, &c.UserID, &c.CalendarID, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt,
			&c.SyncEnabled, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync config: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Upsert keeps the stored refresh token when the new one is empty, since
// providers do not always return one on re-consent.
func (r *syncConfigRepo) Upsert(ctx context.Context, cfg CalendarSyncConfig) (*CalendarSyncConfig, error) {
	defer observeDB(ctx, "sync_config.upsert")()

	const q = `INSERT INTO calendar_sync_config (user_id, calendar_id, access_token, refresh_token, token_expires_at, sync_enabled)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
ON CONFLICT (user_id, calendar_id) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = COALESCE(EXCLUDED.refresh_token, calendar_sync_config.refresh_token),
    token_expires_at = EXCLUDED.token_expires_at,
    sync_enabled = EXCLUDED.sync_enabled,
    updated_at = NOW()
RETURNING id, created_at, updated_at`

	out := cfg
	err := r.pool.QueryRow(ctx, q, cfg.UserID, cfg.CalendarID, cfg.AccessToken, cfg.RefreshToken, cfg.TokenExpiresAt, cfg.SyncEnabled).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert sync config: %w", err)
	}
	return &out, nil
}

func (r *syncConfigRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	defer observeDB(ctx, "sync_config.update_tokens")()

	const q = `UPDATE calendar_sync_config
SET access_token = $2, refresh_token = COALESCE(NULLIF($3, ''), refresh_token), token_expires_at = $4, updated_at = NOW()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *syncConfigRepo) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer observeDB(ctx, "sync_config.touch_last_sync")()

	tag, err := r.pool.Exec(ctx, `UPDATE calendar_sync_config SET last_sync_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// syncedEventRepo implements SyncedEventRepository.
type syncedEventRepo struct {
	pool PgxPool
}

func (r *syncedEventRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]SyncedEventRef, error) {
	defer observeDB(ctx, "synced_events.list_by_user")()

	const q = `SELECT id, user_id, google_event_id, local_event_id, local_event_type, created_at
FROM synced_calendar_events WHERE user_id = $1`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query synced events: %w", err)
	}
	defer rows.Close()

	var result []SyncedEventRef
	for rows.Next() {
		var ref SyncedEventRef
		if err := rows.Scan(&ref.ID, &ref.UserID, &ref.RemoteEventID, &ref.LocalEventID, &ref.LocalEventType, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan synced event: %w", err)
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (r *syncedEventRepo) Upsert(ctx context.Context, ref SyncedEventRef) error {
	defer observeDB(ctx, "synced_events.upsert")()

	if ref.LocalEventType == "" {
		ref.LocalEventType = LocalEventTypeFamily
	}
	const q = `INSERT INTO synced_calendar_events (user_id, google_event_id, local_event_id, local_event_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, google_event_id) DO UPDATE SET
    local_event_id = EXCLUDED.local_event_id,
    local_event_type = EXCLUDED.local_event_type`
	if _, err := r.pool.Exec(ctx, q, ref.UserID, ref.RemoteEventID, ref.LocalEventID, ref.LocalEventType); err != nil {
		return fmt.Errorf("upsert synced event: %w", err)
	}
	return nil
}

// familyEventRepo implements FamilyEventRepository.
type familyEventRepo struct {
	pool PgxPool
}

const familyEventColumns = `id, user_id, family_member_id, title, description, location, event_type,
       starts_at, ends_at, all_day, reminder_enabled, reminder_sent_at, created_at`

func scanFamilyEvent(row pgx.Row) (FamilyEvent, error) {
	var ev FamilyEvent
	err := row.Scan(&ev.ID, &ev.UserID, &ev.FamilyMemberID, &ev.Title, &ev.Description, &ev.Location, &ev.EventType,
		&ev.StartsAt, &ev.EndsAt, &ev.AllDay, &ev.ReminderEnabled, &ev.ReminderSentAt, &ev.CreatedAt)
	return ev, err
}

func (r *familyEventRepo) ListInWindow(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]FamilyEvent, error) {
	defer observeDB(ctx, "family_events.list_in_window")()

	q := `SELECT ` + familyEventColumns + `
FROM family_events WHERE user_id = $1 AND starts_at >= $2 AND starts_at <= $3 ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query family events: %w", err)
	}
	defer rows.Close()

	var result []FamilyEvent
	for rows.Next() {
		ev, err := scanFamilyEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family event: %w", err)
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *familyEventRepo) Create(ctx context.Context, event FamilyEvent) (*FamilyEvent, error) {
	defer observeDB(ctx, "family_events.create")()

	if event.EventType == "" {
		event.EventType = EventTypeAppointment
	}
	q := `INSERT INTO family_events (user_id, family_member_id, title, description, location, event_type, starts_at, ends_at, all_day, reminder_enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + familyEventColumns
	created, err := scanFamilyEvent(r.pool.QueryRow(ctx, q, event.UserID, event.FamilyMemberID, event.Title, event.Description,
		event.Location, event.EventType, event.StartsAt, event.EndsAt, event.AllDay, event.ReminderEnabled))
	if err != nil {
		return nil, fmt.Errorf("create family event: %w", err)
	}
	return &created, nil
}

func (r *familyEventRepo) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]FamilyEventReminder, error) {
	defer observeDB(ctx, "family_events.list_reminder_candidates")()

	const q = `SELECT e.id, e.user_id, e.title, COALESCE(e.location, ''), COALESCE(m.name, ''), e.starts_at, e.all_day,
       p.email, COALESCE(p.display_name, ''), p.timezone
FROM family_events e
JOIN profiles p ON p.user_id = e.user_id
LEFT JOIN family_members m ON m.id = e.family_member_id
WHERE e.reminder_enabled AND e.reminder_sent_at IS NULL
  AND e.starts_at >= $1 AND e.starts_at < $2 AND p.email <> ''
ORDER BY e.user_id, e.starts_at`
	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query family reminders: %w", err)
	}
	defer rows.Close()

	var result []FamilyEventReminder
	for rows.Next() {
		var fr FamilyEventReminder
		if err := rows.Scan(&fr.EventID, &fr.UserID, &fr.Title, &fr.Location, &fr.MemberName, &fr.StartsAt, &fr.AllDay,
			&fr.Email, &fr.DisplayName, &fr.Timezone); err != nil {
			return nil, fmt.Errorf("scan family reminder: %w", err)
		}
		result = append(result, fr)
	}
	return result, rows.Err()
}

func (r *familyEventRepo) MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	defer observeDB(ctx, "family_events.mark_reminded")()

	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `UPDATE family_events SET reminder_sent_at = $2 WHERE id = ANY($1::uuid[])`, uuidStrings(ids), at); err != nil {
		return fmt.Errorf("mark family events reminded: %w", err)
	}
	return nil
}

// habitRepo implements HabitRepository.
type habitRepo struct {
	pool PgxPool
}

func (r *habitRepo) ListReminderCandidates(ctx context.Context) ([]HabitReminder, error) {
	defer observeDB(ctx, "habits.list_reminder_candidates")()

	const q = `SELECT h.id, h.user_id, h.name, to_char(h.reminder_time, 'HH24:MI'),
       p.email, COALESCE(p.display_name, ''), p.timezone
FROM habits h
JOIN profiles p ON p.user_id = h.user_id
WHERE h.reminder_enabled AND h.reminder_time IS NOT NULL AND p.email <> ''
ORDER BY h.user_id, h.reminder_time`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query habit reminders: %w", err)
	}
	defer rows.Close()

	var result []HabitReminder
	for rows.Next() {
		var hr HabitReminder
		if err := rows.Scan(&hr.HabitID, &hr.UserID, &hr.HabitName, &hr.ReminderTime, &hr.Email, &hr.DisplayName, &hr.Timezone); err != nil {
			return nil, fmt.Errorf("scan habit reminder: %w", err)
		}
		result = append(result, hr)
	}
	return result, rows.Err()
}

func (r *habitRepo) CompletedOn(ctx context.Context, habitIDs []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error) {
	defer observeDB(ctx, "habits.completed_on")()

	done := make(map[uuid.UUID]bool)
	if len(habitIDs) == 0 {
		return done, nil
	}
	const q = `SELECT habit_id FROM habit_completions WHERE habit_id = ANY($1::uuid[]) AND completed_date = $2::date`
	rows, err := r.pool.Query(ctx, q, uuidStrings(habitIDs), day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query habit completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan habit completion: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

// taskRepo implements TaskRepository.
type taskRepo struct {
	pool PgxPool
}

func (r *taskRepo) ListReminderCandidates(ctx context.Context, dueOnOrBefore time.Time) ([]TaskReminder, error) {
	defer observeDB(ctx, "tasks.list_reminder_candidates")()

	const q = `SELECT t.id, t.user_id, t.title, t.status, t.priority, t.due_date, t.reminder_sent_on,
       p.email, COALESCE(p.display_name, ''), p.timezone
FROM tasks t
JOIN profiles p ON p.user_id = t.user_id
WHERE t.due_date IS NOT NULL AND t.due_date <= $1::date
  AND t.status NOT IN ('done', 'completed', 'cancelled')
  AND p.email <> ''
ORDER BY t.user_id, t.due_date`
	rows, err := r.pool.Query(ctx, q, dueOnOrBefore.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query task reminders: %w", err)
	}
	defer rows.Close()

	var result []TaskReminder
	for rows.Next() {
		var tr TaskReminder
		if err := rows.Scan(&tr.TaskID, &tr.UserID, &tr.Title, &tr.Status, &tr.Priority, &tr.DueDate, &tr.ReminderSentOn,
			&tr.Email, &tr.DisplayName, &tr.Timezone); err != nil {
			return nil, fmt.Errorf("scan task reminder: %w", err)
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (r *taskRepo) MarkReminded(ctx context.Context, ids []uuid.UUID, day time.Time) error {
	defer observeDB(ctx, "tasks.mark_reminded")()

	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE tasks SET reminder_sent_on = $2::date, updated_at = NOW() WHERE id = ANY($1::uuid[])`
	if _, err := r.pool.Exec(ctx, q, uuidStrings(ids), day.Format(time.DateOnly)); err != nil {
		return fmt.Errorf("mark tasks reminded: %w", err)
	}
	return nil
}

// LeaseTTL bounds how long a crashed holder can block its key.
const LeaseTTL = 5 * time.Minute

// leaseLocker implements Locker with rows in sync_leases. Each statement
// borrows a pool connection only for its own duration, so holding a lease
// never pins a connection.
type leaseLocker struct {
	pool PgxPool
	ttl  time.Duration
}

const acquireLeaseSQL = `INSERT INTO sync_leases (key, holder, expires_at)
VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
ON CONFLICT (key) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE sync_leases.expires_at < NOW()
RETURNING holder`

const releaseLeaseSQL = `DELETE FROM sync_leases WHERE key = $1 AND holder = $2`

func (l *leaseLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	defer observeDB(ctx, "locks.try_lock")()

	holder := uuid.New()
	var got uuid.UUID
	err := l.pool.QueryRow(ctx, acquireLeaseSQL, key, holder, l.ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}

	release := func() {
		// The request context may already be cancelled; the lease must still go.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = l.pool.Exec(rctx, releaseLeaseSQL, key, holder)
	}
	return release, true, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// IsNotFound reports whether err is ErrNotFound or pgx.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
