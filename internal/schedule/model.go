// Package schedule models clinician working hours and answers whether a
// clinician is available at a given instant.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RoleClinician is the profile role the availability queries filter on.
const RoleClinician = "clinician"

// Profile is the owning clinician profile joined onto a weekly schedule.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Specialty   string `json:"specialty,omitempty"`
}

// DayHours is one day's working window. Times are minutes since local
// midnight, clinic wall-clock; nil means unset. An inactive day
// contributes no window regardless of the other fields.
type DayHours struct {
	Active     bool
	Start      *int
	End        *int
	BreakStart *int
	BreakEnd   *int
}

// WeeklySchedule holds a clinician's per-day working hours. A missing day
// entry means the clinician does not work that day.
type WeeklySchedule struct {
	ID        string
	ProfileID string
	Days      map[time.Weekday]DayHours
	Profile   *Profile
}

// Minutes returns a pointer to a minutes-of-day value, for building
// schedules literally.
func Minutes(m int) *int { return &m }

// MinutesOfDay projects an instant to minutes since its local midnight.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseTimeOfDay converts an "HH:MM" wall-clock string to minutes since
// midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("schedule: malformed time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("schedule: malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("schedule: malformed minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("schedule: time of day %q out of range", s)
	}
	return h*60 + m, nil
}
