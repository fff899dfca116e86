// Package attendance derives today's check-in state from the server timelog
// and performs check-in and check-out against it.
package attendance

import (
	"time"

	"goflare.io/punchclock/internal/models"
)

const (
	// DateLayout is the server's DD/MM/YYYY date format.
	DateLayout = "02/01/2006"
	// ClockLayout formats check-in and check-out times for display.
	ClockLayout = "03:04 PM"
)

// Phase is the attendance state of one employee for one calendar date.
type Phase int

const (
	NotStarted Phase = iota
	CheckedIn
	Completed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case CheckedIn:
		return "checked_in"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Action is the next step available in a Phase.
type Action int

const (
	ActionNone Action = iota
	ActionCheckIn
	ActionCheckOut
)

func (a Action) String() string {
	switch a {
	case ActionCheckIn:
		return "check_in"
	case ActionCheckOut:
		return "check_out"
	default:
		return "none"
	}
}

// Endpoint returns the API path of a.
func (a Action) Endpoint() string {
	switch a {
	case ActionCheckIn:
		return "/checkin"
	case ActionCheckOut:
		return "/checkout"
	default:
		return ""
	}
}

// Next returns the action available in p.
func (p Phase) Next() Action {
	switch p {
	case NotStarted:
		return ActionCheckIn
	case CheckedIn:
		return ActionCheckOut
	default:
		return ActionNone
	}
}

// DayStatus is what the attendance screen shows for today.
type DayStatus struct {
	Date   string
	Phase  Phase
	Record *models.DayRecord

	CheckInAt  time.Time
	CheckOutAt time.Time
	CheckIn    string
	CheckOut   string
	Hours      string

	Action        Action
	ActionEnabled bool
}

// DateKey formats t as the timelog date key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Find returns the record dated date, or nil.
func Find(timelog []models.DayRecord, date string) *models.DayRecord {
	for i := range timelog {
		if timelog[i].Date == date {
			rec := timelog[i]
			return &rec
		}
	}
	return nil
}

// PhaseOf derives the phase from the fields present on rec.
func PhaseOf(rec *models.DayRecord) Phase {
	switch {
	case rec == nil || rec.CheckIn == "":
		return NotStarted
	case rec.CheckOut == "":
		return CheckedIn
	default:
		return Completed
	}
}

// Derive builds the DayStatus of now from timelog. Times are shown in loc.
func Derive(timelog []models.DayRecord, now time.Time, loc *time.Location) DayStatus {
	date := DateKey(now, loc)
	rec := Find(timelog, date)
	phase := PhaseOf(rec)

	status := DayStatus{
		Date:          date,
		Phase:         phase,
		Record:        rec,
		Action:        phase.Next(),
		ActionEnabled: phase != Completed,
	}
	if rec == nil {
		return status
	}

	status.CheckInAt, status.CheckIn = clock(rec.CheckIn, loc)
	status.CheckOutAt, status.CheckOut = clock(rec.CheckOut, loc)
	status.Hours = rec.TotalHours
	return status
}

// clock parses an ISO-8601 timestamp and formats it for display. Unparseable
// values are shown as sent.
func clock(iso string, loc *time.Location) (time.Time, string) {
	if iso == "" {
		return time.Time{}, ""
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Time{}, iso
	}
	t = t.In(loc)
	return t, t.Format(ClockLayout)
}
