package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/lifeos/internal/store"
)

// Habits emails each user whose habit reminder time falls within the last
// HabitWindow of their local time and who has not completed it today.
func (r *Runner) Habits(ctx context.Context) (*Report, error) {
	report := &Report{Success: true}
	now := r.now()

	candidates, err := r.store.Habits.ListReminderCandidates(ctx)
	if err != nil {
		return nil, err
	}

	due := map[uuid.UUID][]dueHabit{}
	for _, h := range candidates {
		if day, ok := habitDue(h, now); ok {
			due[h.UserID] = append(due[h.UserID], dueHabit{HabitReminder: h, day: day})
		}
	}

	for _, userID := range userOrder(due) {
		habits := due[userID]
		recipient := habits[0].Recipient

		done, err := r.completed(ctx, habits)
		if err != nil {
			report.fail("%s: %v", recipient.Email, err)
			continue
		}

		var items []emailItem
		for _, h := range habits {
			if done[h.HabitID] {
				continue
			}
			items = append(items, emailItem{Title: h.HabitName, When: h.ReminderTime})
		}
		if len(items) == 0 {
			continue
		}

		subject := fmt.Sprintf("Reminder: %s to complete today", plural(len(items), "habit", "habits"))
		r.send(ctx, JobHabits, recipient, subject, "habits", items, report)
	}
	return report, nil
}

// dueHabit is a habit whose reminder window is open, with the local date
// the window started on.
type dueHabit struct {
	store.HabitReminder
	day time.Time
}

// completed checks each habit against the day its window started on, which
// is yesterday for a window that crossed local midnight.
func (r *Runner) completed(ctx context.Context, habits []dueHabit) (map[uuid.UUID]bool, error) {
	byDay := map[string][]uuid.UUID{}
	days := map[string]time.Time{}
	var order []string
	for _, h := range habits {
		key := h.day.Format(time.DateOnly)
		if _, ok := days[key]; !ok {
			days[key] = h.day
			order = append(order, key)
		}
		byDay[key] = append(byDay[key], h.HabitID)
	}

	done := map[uuid.UUID]bool{}
	for _, key := range order {
		got, err := r.store.Habits.CompletedOn(ctx, byDay[key], days[key])
		if err != nil {
			return nil, err
		}
		for id, ok := range got {
			if ok {
				done[id] = true
			}
		}
	}
	return done, nil
}

// habitDue reports whether the owner's local time is in
// [reminder_time, reminder_time + HabitWindow) for a window that started
// today or, across midnight, yesterday. day is the window's start.
func habitDue(h store.HabitReminder, now time.Time) (day time.Time, ok bool) {
	at, err := time.Parse("15:04", h.ReminderTime)
	if err != nil {
		return time.Time{}, false
	}
	local := now.In(location(h.Timezone))
	start := time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, local.Location())
	for _, s := range []time.Time{start, start.AddDate(0, 0, -1)} {
		if !local.Before(s) && local.Before(s.Add(HabitWindow)) {
			return s, true
		}
	}
	return time.Time{}, false
}
