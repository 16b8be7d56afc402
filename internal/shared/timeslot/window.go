package timeslot

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for booking dates.
const DateLayout = "2006-01-02"

// Window is a half-open time interval [Start, End) on a single calendar date.
// Start and End are minutes from midnight, so a 09:00-13:00 slot is {540, 780}.
type Window struct {
	Date  string `json:"date"`
	Start int    `json:"start_minute"`
	End   int    `json:"end_minute"`
}

// New builds a validated window from a date string and "HH:MM" boundaries.
func New(date, start, end string) (Window, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Window{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	startMin, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}

	w := Window{Date: date, Start: startMin, End: endMin}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks interval sanity: non-empty, within one day.
func (w Window) Validate() error {
	if _, err := time.Parse(DateLayout, w.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", w.Date, err)
	}
	if w.Start < 0 || w.End > 24*60 {
		return fmt.Errorf("window [%d, %d) outside a single day", w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("window [%d, %d) is empty or inverted", w.Start, w.End)
	}
	return nil
}

// Overlaps reports whether two windows intersect in time.
// Windows on different dates never overlap.
func (w Window) Overlaps(other Window) bool {
	if w.Date != other.Date {
		return false
	}
	return w.Start < other.End && other.Start < w.End
}

// StartClock renders the start boundary as "HH:MM".
func (w Window) StartClock() string {
	return fmt.Sprintf("%02d:%02d", w.Start/60, w.Start%60)
}

// EndClock renders the end boundary as "HH:MM".
func (w Window) EndClock() string {
	return fmt.Sprintf("%02d:%02d", w.End/60, w.End%60)
}

func (w Window) String() string {
	return fmt.Sprintf("%s %s-%s", w.Date, w.StartClock(), w.EndClock())
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM): %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
