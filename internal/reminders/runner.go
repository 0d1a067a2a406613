// Package reminders implements the batch jobs that email users about open
// habits, tasks due soon and upcoming family events.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata" // zoneinfo for profile timezones

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/lifeos/internal/mailer"
	"github.com/jw6ventures/lifeos/internal/metrics"
	"github.com/jw6ventures/lifeos/internal/store"
)

const (
	JobHabits = "habits"
	JobTasks  = "tasks"
	JobFamily = "family"
)

// Jobs lists every job name accepted by Run.
var Jobs = []string{JobHabits, JobTasks, JobFamily}

var ErrUnknownJob = errors.New("unknown reminder job")

// HabitWindow is how long after its reminder time a habit stays due.
const HabitWindow = 30 * time.Minute

// FamilyLookahead is how far ahead family events are announced.
const FamilyLookahead = 24 * time.Hour

// Report is the outcome of one batch. One recipient's failure is recorded
// in Errors and never stops the rest of the batch.
type Report struct {
	Success    bool     `json:"success"`
	EmailsSent int      `json:"emailsSent"`
	Errors     []string `json:"errors,omitempty"`
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Runner executes reminder jobs against the store.
type Runner struct {
	store  *store.Store
	mail   mailer.Sender
	appURL string
	now    func() time.Time
}

func NewRunner(st *store.Store, sender mailer.Sender, appURL string) *Runner {
	return &Runner{store: st, mail: sender, appURL: appURL, now: time.Now}
}

// WithClock replaces the runner's clock.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run dispatches a job by name.
func (r *Runner) Run(ctx context.Context, job string) (*Report, error) {
	switch job {
	case JobHabits:
		return r.Habits(ctx)
	case JobTasks:
		return r.Tasks(ctx)
	case JobFamily:
		return r.Family(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}
}

func (r *Runner) send(ctx context.Context, job string, to store.Recipient, subject, template string, items []emailItem, report *Report) bool {
	html, err := render(template, emailData{Name: displayName(to), AppURL: r.appURL, Items: items})
	if err == nil {
		err = r.mail.Send(ctx, mailer.Message{To: to.Email, Subject: subject, HTML: html})
	}
	metrics.ObserveReminderEmail(job, err)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("job", job).Str("user_id", to.UserID.String()).Msg("reminder email failed")
		report.fail("%s: %v", to.Email, err)
		return false
	}
	report.EmailsSent++
	return true
}

// location resolves a profile timezone, treating unknown names as UTC.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func displayName(r store.Recipient) string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return "there"
}

// userOrder returns map keys in a stable order so batches are deterministic.
func userOrder[T any](groups map[uuid.UUID][]T) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
