// Package schedule computes future dose occurrences from a reminder's
// frequency rule. It is pure: identical inputs always produce identical
// output, which is what makes re-registration after a restart safe.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ylchen87/PillTrack/internal/models"
)

// ErrNoValidOccurrence means no day up to the end date (or the search
// horizon, for open-ended rules) satisfies the frequency rule.
var ErrNoValidOccurrence = errors.New("no valid occurrence")

// searchHorizonDays bounds the day-by-day scan for open-ended rules. A
// custom RRULE can be finite (COUNT/UNTIL) without an end date on the
// reminder itself.
const searchHorizonDays = 4 * 366

// Occurrence is the next instant one dose slot should fire.
type Occurrence struct {
	SlotIndex int
	At        time.Time
}

// NextOccurrences returns one occurrence per slot in Times order, each the
// earliest instant >= ref whose day satisfies the frequency rule.
func NextOccurrences(r *models.Reminder, ref time.Time) ([]Occurrence, error) {
	occs := make([]Occurrence, 0, len(r.Times))
	for i := range r.Times {
		at, err := NextOccurrenceForSlot(r, i, ref)
		if err != nil {
			return nil, fmt.Errorf("slot %d (%s): %w", i, r.Times[i], err)
		}
		occs = append(occs, Occurrence{SlotIndex: i, At: at})
	}
	return occs, nil
}

// NextOccurrenceForSlot computes the next occurrence for a single slot.
func NextOccurrenceForSlot(r *models.Reminder, slotIndex int, ref time.Time) (time.Time, error) {
	if slotIndex < 0 || slotIndex >= len(r.Times) {
		return time.Time{}, fmt.Errorf("slot index %d out of range", slotIndex)
	}
	slot, err := time.Parse("15:04", r.Times[slotIndex])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", r.Times[slotIndex], err)
	}

	loc := r.Location()
	local := ref.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var custom *rrule.RRule
	if r.Frequency.Kind == models.FrequencyCustom {
		custom, err = parseCustomRule(r, loc)
		if err != nil {
			return time.Time{}, err
		}
	}

	for i := 0; i < searchHorizonDays; i++ {
		if r.EndDate != nil && afterDate(day, *r.EndDate) {
			return time.Time{}, ErrNoValidOccurrence
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), slot.Hour(), slot.Minute(), 0, 0, loc)
		if !candidate.Before(ref) {
			ok, err := dayMatches(r, custom, day)
			if err != nil {
				return time.Time{}, err
			}
			if ok {
				return candidate, nil
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoValidOccurrence
}

// dayMatches tests a calendar day (midnight in the reminder's zone) against
// the frequency rule. Days before the start date never match.
func dayMatches(r *models.Reminder, custom *rrule.RRule, day time.Time) (bool, error) {
	if beforeDate(day, r.StartDate) {
		return false, nil
	}
	switch r.Frequency.Kind {
	case models.FrequencyDaily:
		return true, nil
	case models.FrequencyEveryNDays:
		n := r.Frequency.Interval
		if n < 1 {
			return false, fmt.Errorf("every_n_days interval must be >= 1, got %d", n)
		}
		return daysBetween(r.StartDate, day)%n == 0, nil
	case models.FrequencyWeekdays:
		wd := day.Weekday()
		return wd != time.Saturday && wd != time.Sunday, nil
	case models.FrequencyCustom:
		end := day.AddDate(0, 0, 1).Add(-time.Second)
		return len(custom.Between(day, end, true)) > 0, nil
	default:
		return false, fmt.Errorf("unknown frequency kind %q", r.Frequency.Kind)
	}
}

// parseCustomRule builds the rrule evaluator with DTSTART anchored at the
// reminder's start date in its own timezone.
func parseCustomRule(r *models.Reminder, loc *time.Location) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(r.Frequency.RRule, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse RRULE: %w", err)
	}
	opt.Dtstart = time.Date(
		r.StartDate.Year(), r.StartDate.Month(), r.StartDate.Day(),
		0, 0, 0, 0, loc,
	)
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build RRULE: %w", err)
	}
	return rule, nil
}

// daysBetween counts whole calendar days from a to b, ignoring zones and
// clock time. DST transitions make naive duration division off by an hour.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}

func beforeDate(a, b time.Time) bool { return daysBetween(b, a) < 0 }
func afterDate(a, b time.Time) bool  { return daysBetween(b, a) > 0 }
