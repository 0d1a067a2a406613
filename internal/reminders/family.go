package reminders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jw6ventures/lifeos/internal/store"
)

// Family emails each user a digest of reminder-enabled family events
// starting within FamilyLookahead, then marks them reminded.
func (r *Runner) Family(ctx context.Context) (*Report, error) {
	report := &Report{Success: true}
	now := r.now()

	candidates, err := r.store.FamilyEvents.ListReminderCandidates(ctx, now, now.Add(FamilyLookahead))
	if err != nil {
		return nil, err
	}

	due := map[uuid.UUID][]store.FamilyEventReminder{}
	for _, ev := range candidates {
		due[ev.UserID] = append(due[ev.UserID], ev)
	}

	for _, userID := range userOrder(due) {
		events := due[userID]
		recipient := events[0].Recipient
		loc := location(recipient.Timezone)

		items := make([]emailItem, len(events))
		ids := make([]uuid.UUID, len(events))
		for i, ev := range events {
			ids[i] = ev.EventID
			when := ev.StartsAt.In(loc).Format("Mon Jan 2, 3:04 PM")
			if ev.AllDay {
				when = ev.StartsAt.UTC().Format("Mon Jan 2") + " (all day)"
			}
			detail := ev.MemberName
			if ev.Location != "" {
				if detail != "" {
					detail += " · "
				}
				detail += ev.Location
			}
			items[i] = emailItem{Title: ev.Title, When: when, Detail: detail}
		}

		subject := fmt.Sprintf("Coming up: %s in the next 24 hours", plural(len(items), "family event", "family events"))
		if !r.send(ctx, JobFamily, recipient, subject, "family", items, report) {
			continue
		}
		if err := r.store.FamilyEvents.MarkReminded(ctx, ids, now); err != nil {
			report.fail("%s: mark reminded: %v", recipient.Email, err)
		}
	}
	return report, nil
}
