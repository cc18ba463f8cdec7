package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func gateAt(now time.Time, adminEmail string) *AccessGate {
	g := NewAccessGate(AdminEmailPolicy{AdminEmail: adminEmail})
	g.now = func() time.Time { return now }
	return g
}

func TestAccessGate_AdminOverride(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := gateAt(now, "principal@school.edu")

	t.Run("Admin allowed with no record at all", func(t *testing.T) {
		d := gate.Check(nil, Identity{UserID: 1, Email: "principal@school.edu"})
		assert.True(t, d.Allowed)
		assert.Equal(t, PlanAdmin, d.Plan)
	})

	t.Run("Admin match is case-insensitive", func(t *testing.T) {
		d := gate.Check(nil, Identity{UserID: 1, Email: "Principal@School.EDU"})
		assert.True(t, d.Allowed)
		assert.Equal(t, PlanAdmin, d.Plan)
	})

	t.Run("Admin override ignores an expired record", func(t *testing.T) {
		end := now.Add(-time.Hour)
		rec := &Record{Status: StatusActive, Plan: PlanBasic, SubscriptionEnd: &end}
		d := gate.Check(rec, Identity{UserID: 1, Email: "principal@school.edu"})
		assert.True(t, d.Allowed)
		assert.Equal(t, PlanAdmin, d.Plan)
	})

	t.Run("Empty admin config matches nobody", func(t *testing.T) {
		gate := gateAt(now, "")
		d := gate.Check(nil, Identity{UserID: 1, Email: ""})
		assert.False(t, d.Allowed)
	})
}

func TestAccessGate_ReadTimeExpiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := gateAt(now, "principal@school.edu")

	t.Run("Active with future end is allowed", func(t *testing.T) {
		end := now.Add(24 * time.Hour)
		rec := &Record{Status: StatusActive, Plan: PlanPremium, SubscriptionEnd: &end}
		d := gate.Check(rec, Identity{UserID: 2, Email: "teacher@school.edu"})
		assert.True(t, d.Allowed)
		assert.Equal(t, PlanPremium, d.Plan)
	})

	t.Run("Active with past end is denied without any write", func(t *testing.T) {
		end := now.Add(-time.Minute)
		rec := &Record{Status: StatusActive, Plan: PlanBasic, SubscriptionEnd: &end}
		d := gate.Check(rec, Identity{UserID: 2, Email: "teacher@school.edu"})
		assert.False(t, d.Allowed)
		// The record itself is untouched; expiration lives in the read path.
		assert.Equal(t, StatusActive, rec.Status)
	})

	t.Run("End exactly now is expired", func(t *testing.T) {
		end := now
		rec := &Record{Status: StatusActive, Plan: PlanBasic, SubscriptionEnd: &end}
		d := gate.Check(rec, Identity{UserID: 2, Email: "teacher@school.edu"})
		assert.False(t, d.Allowed)
	})
}

func TestAccessGate_NonActiveStatuses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := gateAt(now, "")
	end := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		status Status
	}{
		{"inactive", StatusInactive},
		{"cancelled", StatusCancelled},
		{"past_due", StatusPastDue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Status: tt.status, Plan: PlanBasic, SubscriptionEnd: &end}
			d := gate.Check(rec, Identity{UserID: 3, Email: "teacher@school.edu"})
			assert.False(t, d.Allowed)
			assert.Equal(t, PlanBasic, d.Plan)
		})
	}

	t.Run("No record is free and denied", func(t *testing.T) {
		d := gate.Check(nil, Identity{UserID: 3, Email: "teacher@school.edu"})
		assert.False(t, d.Allowed)
		assert.Equal(t, PlanFree, d.Plan)
	})

	t.Run("Active without end date is denied", func(t *testing.T) {
		rec := &Record{Status: StatusActive, Plan: PlanBasic}
		d := gate.Check(rec, Identity{UserID: 3, Email: "teacher@school.edu"})
		assert.False(t, d.Allowed)
	})
}
