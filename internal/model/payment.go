package model

import (
	"strings"
	"time"
)

// PlanType identifies the enrolment plan that determines the payment
// schedule shape.
type PlanType string

const (
	PlanMensual PlanType = "mensual"
	PlanStart   PlanType = "start"
	PlanPremium PlanType = "premium"
)

// ResolvePlanType normalizes a raw plan label. Unknown labels resolve to
// the monthly plan.
func ResolvePlanType(raw string) PlanType {
	v := strings.ToLower(raw)
	switch {
	case strings.Contains(v, "premium"):
		return PlanPremium
	case strings.Contains(v, "start"):
		return PlanStart
	default:
		return PlanMensual
	}
}

// ScheduleStatus is the lifecycle state of a single scheduled payment.
type ScheduleStatus string

const (
	StatusUpcoming ScheduleStatus = "upcoming"
	StatusPending  ScheduleStatus = "pending"
	StatusPaid     ScheduleStatus = "paid"
	StatusOverdue  ScheduleStatus = "overdue"
)

// PaymentScheduleEntry is one instalment of an account's payment plan.
// Entries are read-only inputs to the reminder generator; nothing in this
// package mutates schedule state after generation.
type PaymentScheduleEntry struct {
	Index         int
	Amount        int
	PaymentDate   time.Time
	DueDate       time.Time
	ToleranceDays int
	Status        ScheduleStatus
}

// planRules holds the per-plan schedule parameters.
type planRules struct {
	totalPayments int
	amount        int
	paidAtStart   int
	toleranceDays int
}

func rulesFor(plan PlanType) planRules {
	switch plan {
	case PlanPremium:
		return planRules{totalPayments: 1, amount: 10500, paidAtStart: 1, toleranceDays: 0}
	case PlanStart:
		return planRules{totalPayments: 2, amount: 5500, paidAtStart: 1, toleranceDays: 3}
	default:
		return planRules{totalPayments: 8, amount: 1500, paidAtStart: 1, toleranceDays: 3}
	}
}

// GeneratePaymentSchedule derives the full instalment schedule for a plan
// activated at start, with statuses evaluated against now.
//
// Monthly instalments fall every 30 days; the start plan's second
// instalment falls 120 days after activation; premium is a single payment
// covered at activation. The due date is the instalment date itself: an
// instalment is pending between its due date and the end of its tolerance
// window, and overdue strictly after that.
func GeneratePaymentSchedule(start time.Time, plan PlanType, now time.Time) []PaymentScheduleEntry {
	if start.IsZero() {
		return nil
	}

	r := rulesFor(plan)
	schedule := make([]PaymentScheduleEntry, 0, r.totalPayments)

	for i := 0; i < r.totalPayments; i++ {
		var due time.Time
		if plan == PlanStart && i > 0 {
			due = start.AddDate(0, 0, 120)
		} else {
			due = start.AddDate(0, 0, i*30)
		}

		status := StatusPending
		if i < r.paidAtStart {
			status = StatusPaid
		} else {
			tolerated := due.AddDate(0, 0, r.toleranceDays)
			switch {
			case now.After(tolerated):
				status = StatusOverdue
			case now.Before(due):
				status = StatusUpcoming
			}
		}

		schedule = append(schedule, PaymentScheduleEntry{
			Index:         i + 1,
			Amount:        r.amount,
			PaymentDate:   due,
			DueDate:       due,
			ToleranceDays: r.toleranceDays,
			Status:        status,
		})
	}

	return schedule
}

// OverdueState summarizes whether an account is locked for non-payment.
type OverdueState struct {
	Locked      bool
	OverdueDays int
}

// ComputeOverdueState reports whether any instalment is past its tolerance
// window and, if so, how many days the earliest one has been overdue.
func ComputeOverdueState(entries []PaymentScheduleEntry, now time.Time) OverdueState {
	var earliest time.Time
	for _, e := range entries {
		if e.Status != StatusOverdue {
			continue
		}
		limit := e.DueDate.AddDate(0, 0, e.ToleranceDays)
		if earliest.IsZero() || limit.Before(earliest) {
			earliest = limit
		}
	}
	if earliest.IsZero() {
		return OverdueState{}
	}

	days := int((now.Sub(earliest) + 24*time.Hour - 1) / (24 * time.Hour))
	return OverdueState{Locked: true, OverdueDays: days}
}
