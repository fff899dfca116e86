package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goflare.io/punchclock/internal/models"
)

func TestDeriveCompletedDay(t *testing.T) {
	timelog := []models.DayRecord{
		{Date: "27/10/2025", CheckIn: "2025-10-27T08:00:00.000Z", CheckOut: "2025-10-27T17:00:00.000Z", TotalHours: "09:00"},
		{Date: "28/10/2025", CheckIn: "2025-10-28T09:09:55.785Z", CheckOut: "2025-10-28T09:43:17.397Z", TotalHours: "00:33"},
	}
	now := time.Date(2025, 10, 28, 18, 0, 0, 0, time.UTC)

	status := Derive(timelog, now, time.UTC)

	assert.Equal(t, "28/10/2025", status.Date)
	assert.Equal(t, Completed, status.Phase)
	assert.Equal(t, "09:09 AM", status.CheckIn)
	assert.Equal(t, "09:43 AM", status.CheckOut)
	assert.Equal(t, "00:33", status.Hours)
	assert.Equal(t, ActionNone, status.Action)
	assert.False(t, status.ActionEnabled)
	require.NotNil(t, status.Record)
	assert.Equal(t, time.Date(2025, 10, 28, 9, 9, 55, 785000000, time.UTC), status.CheckInAt)
}

func TestDerivePhases(t *testing.T) {
	now := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		timelog []models.DayRecord
		phase   Phase
		action  Action
	}{
		{"no timelog", nil, NotStarted, ActionCheckIn},
		{"only other days", []models.DayRecord{{Date: "27/10/2025", CheckIn: "2025-10-27T08:00:00Z"}}, NotStarted, ActionCheckIn},
		{"empty record", []models.DayRecord{{Date: "28/10/2025"}}, NotStarted, ActionCheckIn},
		{"checked in", []models.DayRecord{{Date: "28/10/2025", CheckIn: "2025-10-28T08:00:00Z"}}, CheckedIn, ActionCheckOut},
		{"completed", []models.DayRecord{{Date: "28/10/2025", CheckIn: "2025-10-28T08:00:00Z", CheckOut: "2025-10-28T17:00:00Z"}}, Completed, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Derive(tt.timelog, now, time.UTC)
			assert.Equal(t, tt.phase, status.Phase)
			assert.Equal(t, tt.action, status.Action)
			assert.Equal(t, tt.phase != Completed, status.ActionEnabled)
		})
	}
}

func TestDateFollowsLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 27th is already the 28th in Kolkata
	now := time.Date(2025, 10, 27, 20, 0, 0, 0, time.UTC)

	timelog := []models.DayRecord{{Date: "28/10/2025", CheckIn: "2025-10-27T19:00:00Z"}}
	status := Derive(timelog, now, kolkata)

	assert.Equal(t, "28/10/2025", status.Date)
	assert.Equal(t, CheckedIn, status.Phase)
	assert.Equal(t, "12:30 AM", status.CheckIn)
}

func TestUnparseableTimeIsShownAsSent(t *testing.T) {
	now := time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	status := Derive([]models.DayRecord{{Date: "28/10/2025", CheckIn: "9:05"}}, now, time.UTC)

	assert.Equal(t, CheckedIn, status.Phase)
	assert.Equal(t, "9:05", status.CheckIn)
	assert.True(t, status.CheckInAt.IsZero())
}

func TestActionEndpoints(t *testing.T) {
	assert.Equal(t, "/checkin", ActionCheckIn.Endpoint())
	assert.Equal(t, "/checkout", ActionCheckOut.Endpoint())
	assert.Equal(t, "", ActionNone.Endpoint())
}
