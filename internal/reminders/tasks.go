package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/lifeos/internal/store"
)

// Tasks emails each user a digest of open tasks due on or before their
// local tomorrow that were not already included in a digest today.
func (r *Runner) Tasks(ctx context.Context) (*Report, error) {
	report := &Report{Success: true}
	now := r.now()

	// The furthest local tomorrow anywhere is under two UTC days away.
	candidates, err := r.store.Tasks.ListReminderCandidates(ctx, now.UTC().AddDate(0, 0, 2))
	if err != nil {
		return nil, err
	}

	due := map[uuid.UUID][]store.TaskReminder{}
	for _, t := range candidates {
		today, tomorrow := localDays(now, t.Timezone)
		if dateOf(t.DueDate) > tomorrow {
			continue
		}
		if t.ReminderSentOn != nil && dateOf(*t.ReminderSentOn) == today {
			continue
		}
		due[t.UserID] = append(due[t.UserID], t)
	}

	for _, userID := range userOrder(due) {
		tasks := due[userID]
		recipient := tasks[0].Recipient
		today, _ := localDays(now, recipient.Timezone)

		items := make([]emailItem, len(tasks))
		ids := make([]uuid.UUID, len(tasks))
		for i, t := range tasks {
			ids[i] = t.TaskID
			items[i] = emailItem{
				Title:   t.Title,
				When:    t.DueDate.Format("Mon Jan 2"),
				Detail:  t.Priority,
				Overdue: dateOf(t.DueDate) < today,
			}
		}

		subject := fmt.Sprintf("You have %s due soon", plural(len(items), "task", "tasks"))
		if !r.send(ctx, JobTasks, recipient, subject, "tasks", items, report) {
			continue
		}
		localToday := now.In(location(recipient.Timezone))
		if err := r.store.Tasks.MarkReminded(ctx, ids, localToday); err != nil {
			report.fail("%s: mark reminded: %v", recipient.Email, err)
		}
	}
	return report, nil
}

// localDays returns today's and tomorrow's dates (YYYY-MM-DD) in tz.
func localDays(now time.Time, tz string) (string, string) {
	local := now.In(location(tz))
	return local.Format(time.DateOnly), local.AddDate(0, 0, 1).Format(time.DateOnly)
}

// dateOf formats a DATE column value, which is scanned as midnight UTC.
func dateOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
