package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/mqerk/notisync/internal/model"
	"github.com/mqerk/notisync/internal/store"
)

// dismissPrefix namespaces the per-day dismissal markers in the KV store.
const dismissPrefix = "reminder_dismissed:"

// dayFormat is the calendar-day key used for reminder identity and
// dismissal markers.
const dayFormat = "2006-01-02"

// Generator derives at most one payment due-date reminder per evaluation.
// It reads schedule entries and the dismissal markers; it never mutates
// schedule state.
type Generator struct {
	kv            store.KV
	lookaheadDays int
}

// NewGenerator creates a generator. lookaheadDays controls how many days
// before the due date the warning window opens; zero falls back to 3.
func NewGenerator(kv store.KV, lookaheadDays int) *Generator {
	if lookaheadDays <= 0 {
		lookaheadDays = 3
	}
	return &Generator{kv: kv, lookaheadDays: lookaheadDays}
}

// Evaluate returns a reminder for the earliest unpaid schedule entry when
// now falls inside its warning window, or nil otherwise. The reminder's ID
// is stable for a given account, instalment, and due day, so repeated
// evaluations never duplicate it. A same-day dismissal marker suppresses
// the reminder until the next calendar day.
func (g *Generator) Evaluate(ctx context.Context, accountKey string, entries []model.PaymentScheduleEntry, now time.Time) (*model.Notification, error) {
	entry := nextUnpaid(entries)
	if entry == nil {
		return nil, nil
	}

	daysToDue := civilDays(now, entry.DueDate)
	if daysToDue > g.lookaheadDays {
		return nil, nil
	}
	daysPast := -daysToDue
	if daysPast > entry.ToleranceDays {
		return nil, nil
	}

	id := reminderID(accountKey, entry.Index, entry.DueDate)

	dismissed, err := g.kv.Get(ctx, dismissPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("reading dismissal marker: %w", err)
	}
	if dismissed == now.Format(dayFormat) {
		return nil, nil
	}

	message, priority := phrase(daysToDue, entry.ToleranceDays)

	return &model.Notification{
		ID:        id,
		Type:      model.TypePayment,
		Priority:  priority,
		Title:     "Recordatorio de pago",
		Message:   message,
		Timestamp: now,
		IsRead:    false,
		Source:    model.SourceDerived,
		ActionURL: "/dashboard/pagos",
		Metadata: model.Metadata{
			"amount":  fmt.Sprintf("$%d.00", entry.Amount),
			"dueDate": entry.DueDate.Format(dayFormat),
		},
	}, nil
}

// Dismiss records that the user acknowledged the reminder today; Evaluate
// returns nil for the rest of the calendar day.
func (g *Generator) Dismiss(ctx context.Context, accountKey string, entry model.PaymentScheduleEntry, now time.Time) error {
	id := reminderID(accountKey, entry.Index, entry.DueDate)
	if err := g.kv.Set(ctx, dismissPrefix+id, now.Format(dayFormat)); err != nil {
		return fmt.Errorf("writing dismissal marker: %w", err)
	}
	return nil
}

// nextUnpaid picks the earliest entry still awaiting payment. Overdue
// entries are past their tolerance window and are handled by the account
// lock, not by reminders.
func nextUnpaid(entries []model.PaymentScheduleEntry) *model.PaymentScheduleEntry {
	var next *model.PaymentScheduleEntry
	for i := range entries {
		e := &entries[i]
		if e.Status != model.StatusUpcoming && e.Status != model.StatusPending {
			continue
		}
		if next == nil || e.DueDate.Before(next.DueDate) {
			next = e
		}
	}
	return next
}

// phrase maps the reminder phase to its message and priority.
func phrase(daysToDue, toleranceDays int) (string, model.Priority) {
	if daysToDue >= 0 {
		switch {
		case daysToDue > 1:
			return fmt.Sprintf("Tu pago vence en %d días.", daysToDue), model.PriorityHigh
		case daysToDue == 1:
			return "Tu pago vence mañana.", model.PriorityUrgent
		default:
			return "Tu pago vence hoy.", model.PriorityUrgent
		}
	}

	remaining := toleranceDays + daysToDue
	switch {
	case remaining > 1:
		return fmt.Sprintf("Tienes %d días de tolerancia restantes.", remaining), model.PriorityHigh
	case remaining == 1:
		return "Último día de tolerancia.", model.PriorityUrgent
	default:
		return "Tu tolerancia termina hoy.", model.PriorityUrgent
	}
}

func reminderID(accountKey string, index int, due time.Time) string {
	return fmt.Sprintf("reminder-%s-%d-%s", accountKey, index, due.Format(dayFormat))
}

// civilDays returns the number of calendar days from a's date to b's date,
// ignoring the time of day.
func civilDays(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
