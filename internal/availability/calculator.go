package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candidate start times are walked on a fixed half-hour grid regardless of
// service duration, so short services get a fine-grained grid and long
// services produce overlapping offers.
const stepMinutes = 30

// Rule is one weekly recurring availability window. Weekday follows the ISO
// convention: Monday=1 through Sunday=7. Start and End are tenant-local
// wall-clock times in "HH:MM" form; a rule whose End does not parse or does
// not exceed Start yields no slots.
type Rule struct {
	Weekday int
	Start   string
	End     string
	Active  bool
}

// Window is an absolute half-open interval [Start, End). Blocks and confirmed
// appointments are both represented this way for overlap testing.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

// Slot is a computed, not-yet-reserved bookable start time. Slots are only
// valid within the life of one offer; they must be re-validated at
// confirmation time.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Slots generates every open start time between windowStart and windowEnd
// (day-inclusive) for a service of the given duration. now is used only to
// discard candidates that are not strictly in the future. The result is
// ordered day-major, then rule-major, then time-major, and is not
// de-duplicated when rules on the same day overlap.
func Slots(now, windowStart, windowEnd time.Time, rules []Rule, blocks []Window, busy []Window, duration time.Duration) []Slot {
	if duration <= 0 {
		return nil
	}

	var out []Slot
	for day := startOfDay(windowStart); !day.After(windowEnd); day = day.AddDate(0, 0, 1) {
		weekday := isoWeekday(day.Weekday())
		for _, rule := range rules {
			if !rule.Active || rule.Weekday != weekday {
				continue
			}
			startMin, err := ParseClock(rule.Start)
			if err != nil {
				continue
			}
			endMin, err := ParseClock(rule.End)
			if err != nil {
				continue
			}
			ruleEnd := day.Add(time.Duration(endMin) * time.Minute)

			for m := startMin; m < endMin; m += stepMinutes {
				start := day.Add(time.Duration(m) * time.Minute)
				if !start.After(now) {
					continue
				}
				end := start.Add(duration)
				// The service must fit entirely inside the rule window.
				if end.After(ruleEnd) {
					continue
				}
				if overlapsAny(blocks, start, end) || overlapsAny(busy, start, end) {
					continue
				}
				out = append(out, Slot{Start: start, End: end})
			}
		}
	}
	return out
}

func overlapsAny(windows []Window, start, end time.Time) bool {
	for _, w := range windows {
		if w.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// ParseClock converts an "HH:MM" wall-clock string to minutes after midnight.
// "24:00" is accepted as minute 1440, the end of the same day; overnight
// windows are not supported.
func ParseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("availability: malformed clock value %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("availability: malformed clock value %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("availability: malformed clock value %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("availability: clock value %q out of range", value)
	}
	total := hours*60 + minutes
	if total > 24*60 {
		return 0, fmt.Errorf("availability: clock value %q out of range", value)
	}
	return total, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
