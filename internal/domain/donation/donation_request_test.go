package donation

import (
	"errors"
	"testing"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

func pending() *DonationRequest {
	return &DonationRequest{BaseEntity: shared.NewBaseEntityAt(now), Status: StatusPending}
}

func TestDonationHappyPath(t *testing.T) {
	d := pending()

	_, err := d.Approve("bank@x", now)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, d.Status)

	_, err = d.Schedule(now.AddDate(0, 0, 3), "10:30", "bring ID", now)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, d.Status)
	assert.Equal(t, "10:30", d.AppointmentTime)

	from, err := d.Schedule(now.AddDate(0, 0, 4), "11:00", "moved", now)
	require.NoError(t, err, "reschedule")
	assert.Equal(t, StatusScheduled, from)
	assert.Equal(t, shared.StartOfDay(now.AddDate(0, 0, 4)), *d.AppointmentDate)

	_, err = d.Complete("BB01-20260615-ABCD", now)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Status)
	assert.Equal(t, "BB01-20260615-ABCD", d.BloodUnitID)

	_, err = d.Cancel(now)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition), "completed is terminal")
}

func TestDonationGuards(t *testing.T) {
	t.Run("approve and reject only from pending", func(t *testing.T) {
		d := pending()
		_, err := d.Approve("a", now)
		require.NoError(t, err)
		_, err = d.Approve("a", now)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
		_, err = d.Reject("late", now)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
		assert.Equal(t, StatusApproved, d.Status)
	})

	t.Run("schedule needs approval", func(t *testing.T) {
		d := pending()
		_, err := d.Schedule(now, "09:00", "", now)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
		assert.Equal(t, StatusPending, d.Status)
	})

	t.Run("complete from pending is allowed", func(t *testing.T) {
		d := pending()
		_, err := d.Complete("BU-1", now)
		require.NoError(t, err)
	})

	t.Run("terminal states refuse everything", func(t *testing.T) {
		for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
			for _, to := range AllStatuses {
				d := &DonationRequest{Status: s}
				_, err := d.transition(to, now)
				assert.Error(t, err, "%s -> %s", s, to)
				assert.Equal(t, s, d.Status)
			}
		}
	})

	t.Run("subject id", func(t *testing.T) {
		d := pending()
		assert.Equal(t, "DR-"+d.ID.String(), d.SubjectID())
	})
}

func TestEligibility(t *testing.T) {
	p := DefaultPolicy()
	age := func(n int) *int { return &n }
	daysAgo := func(n int) *time.Time { d := now.AddDate(0, 0, -n); return &d }

	tests := []struct {
		name     string
		donor    Donor
		active   bool
		eligible bool
		reason   string
		next     bool
	}{
		{"eligible", Donor{Age: age(30)}, false, true, "Eligible to donate", false},
		{"unknown age is not blocked", Donor{}, false, true, "Eligible to donate", false},
		{"too young", Donor{Age: age(17)}, false, false, "You must be at least 18 years old to donate blood", false},
		{"too old", Donor{Age: age(66)}, false, false, "Blood donation is not recommended for donors over 65 years old", false},
		{"gap not elapsed", Donor{Age: age(30), LastDonationDate: daysAgo(30)}, false, false, "You must wait 60 more days. You can donate again on 2026-08-14", true},
		{"gap elapsed exactly", Donor{Age: age(30), LastDonationDate: daysAgo(90)}, false, true, "Eligible to donate", false},
		{"active request", Donor{Age: age(30)}, true, false, "You already have an active donation request. Please wait for it to be completed or cancelled", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Evaluate(&tt.donor, tt.active, now)
			assert.Equal(t, tt.eligible, got.Eligible)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.next, got.NextEligibleDate != nil)
		})
	}
}

func TestCheckDeclaration(t *testing.T) {
	p := DefaultPolicy()
	assert.NoError(t, p.CheckDeclaration(30, decimal.NewFromInt(70)))
	assert.True(t, errors.Is(p.CheckDeclaration(30, decimal.RequireFromString("49.5")), shared.ErrValidation))
	assert.True(t, errors.Is(p.CheckDeclaration(70, decimal.NewFromInt(70)), shared.ErrValidation))
}
