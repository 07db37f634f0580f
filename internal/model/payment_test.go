package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePlanType(t *testing.T) {
	assert.Equal(t, PlanPremium, ResolvePlanType("Plan Premium 2025"))
	assert.Equal(t, PlanStart, ResolvePlanType("START"))
	assert.Equal(t, PlanMensual, ResolvePlanType("mensual"))
	assert.Equal(t, PlanMensual, ResolvePlanType(""))
	assert.Equal(t, PlanMensual, ResolvePlanType("algo raro"))
}

func TestGeneratePaymentSchedule_mensual(t *testing.T) {
	start := date(2025, time.January, 1)
	now := date(2025, time.February, 15)

	schedule := GeneratePaymentSchedule(start, PlanMensual, now)
	require.Len(t, schedule, 8)

	// First instalment covered at activation.
	assert.Equal(t, StatusPaid, schedule[0].Status)
	assert.Equal(t, 1500, schedule[0].Amount)
	assert.Equal(t, 3, schedule[0].ToleranceDays)

	// Instalments fall every 30 days.
	assert.Equal(t, start.AddDate(0, 0, 30), schedule[1].DueDate)
	assert.Equal(t, start.AddDate(0, 0, 60), schedule[2].DueDate)

	// Second instalment (due Jan 31, tolerance through Feb 3) is overdue
	// by Feb 15; third (due Mar 2) is still upcoming.
	assert.Equal(t, StatusOverdue, schedule[1].Status)
	assert.Equal(t, StatusUpcoming, schedule[2].Status)
}

func TestGeneratePaymentSchedule_mensual_pending_inside_tolerance(t *testing.T) {
	start := date(2025, time.January, 1)
	// Second instalment due Jan 31; Feb 2 is inside the 3-day tolerance.
	now := date(2025, time.February, 2)

	schedule := GeneratePaymentSchedule(start, PlanMensual, now)
	require.Len(t, schedule, 8)
	assert.Equal(t, StatusPending, schedule[1].Status)
}

func TestGeneratePaymentSchedule_start(t *testing.T) {
	start := date(2025, time.January, 1)
	now := date(2025, time.January, 15)

	schedule := GeneratePaymentSchedule(start, PlanStart, now)
	require.Len(t, schedule, 2)

	assert.Equal(t, StatusPaid, schedule[0].Status)
	assert.Equal(t, 5500, schedule[0].Amount)

	// Second instalment falls 120 days after activation.
	assert.Equal(t, start.AddDate(0, 0, 120), schedule[1].DueDate)
	assert.Equal(t, StatusUpcoming, schedule[1].Status)
}

func TestGeneratePaymentSchedule_premium(t *testing.T) {
	start := date(2025, time.January, 1)
	now := date(2026, time.January, 1)

	schedule := GeneratePaymentSchedule(start, PlanPremium, now)
	require.Len(t, schedule, 1)
	assert.Equal(t, StatusPaid, schedule[0].Status)
	assert.Equal(t, 10500, schedule[0].Amount)
	assert.Equal(t, 0, schedule[0].ToleranceDays)
}

func TestGeneratePaymentSchedule_zero_start(t *testing.T) {
	assert.Nil(t, GeneratePaymentSchedule(time.Time{}, PlanMensual, time.Now()))
}

func TestComputeOverdueState(t *testing.T) {
	start := date(2025, time.January, 1)

	// Nothing overdue yet.
	state := ComputeOverdueState(GeneratePaymentSchedule(start, PlanMensual, date(2025, time.January, 20)), date(2025, time.January, 20))
	assert.False(t, state.Locked)
	assert.Zero(t, state.OverdueDays)

	// Second instalment due Jan 31 + 3 tolerance = Feb 3; Feb 8 is 5
	// days beyond.
	now := date(2025, time.February, 8)
	state = ComputeOverdueState(GeneratePaymentSchedule(start, PlanMensual, now), now)
	assert.True(t, state.Locked)
	assert.Equal(t, 5, state.OverdueDays)
}
