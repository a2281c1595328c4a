package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/satwatch/satwatch-service/types"
)

type fieldKind int

const (
	fieldAny fieldKind = iota
	fieldStep
	fieldValues
)

// cronField is the predicate for one position of a cron expression.
// fieldAny matches everything, fieldStep matches values aligned to the
// step from the field's minimum, fieldValues matches an explicit set
// (single value, list or inclusive range).
type cronField struct {
	kind   fieldKind
	step   int
	values []int
	min    int
	max    int
}

func (f cronField) matches(v int) bool {
	switch f.kind {
	case fieldAny:
		return true
	case fieldStep:
		return (v-f.min)%f.step == 0
	default:
		for _, allowed := range f.values {
			if allowed == v {
				return true
			}
		}
		return false
	}
}

// CronRule is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week). Immutable once parsed.
//
// Only the subset of the cron grammar the service needs is supported:
// "*", "*/N", "A", "A,B,C" and "A-B" per field. Named months/weekdays and
// the day-of-month OR day-of-week special case of full cron are out of
// scope.
type CronRule struct {
	spec    string
	minute  cronField
	hour    cronField
	day     cronField
	month   cronField
	weekday cronField
}

var fieldBounds = [5]struct {
	name string
	min  int
	max  int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCron parses a 5-field cron expression. A malformed expression
// yields types.ErrCronExpressionInvalid with field context.
func ParseCron(expr string) (*CronRule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, types.Errorf(types.ErrCronExpressionInvalid,
			"%q: expected 5 fields, got %d", expr, len(parts))
	}

	rule := &CronRule{spec: strings.Join(parts, " ")}
	targets := [5]*cronField{&rule.minute, &rule.hour, &rule.day, &rule.month, &rule.weekday}

	for i, part := range parts {
		bounds := fieldBounds[i]
		field, err := parseCronField(part, bounds.min, bounds.max)
		if err != nil {
			return nil, types.Errorf(types.ErrCronExpressionInvalid,
				"%q: %s field %q: %v", expr, bounds.name, part, err)
		}
		*targets[i] = field
	}

	return rule, nil
}

func parseCronField(part string, min, max int) (cronField, error) {
	field := cronField{min: min, max: max}

	if part == "*" {
		field.kind = fieldAny
		return field, nil
	}

	if after, ok := strings.CutPrefix(part, "*/"); ok {
		step, err := strconv.Atoi(after)
		if err != nil || step <= 0 {
			return field, types.NewErrorf("invalid step %q", after)
		}
		field.kind = fieldStep
		field.step = step
		return field, nil
	}

	field.kind = fieldValues
	for _, item := range strings.Split(part, ",") {
		if lo, hi, ok := strings.Cut(item, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || start > end {
				return field, types.NewErrorf("invalid range %q", item)
			}
			if start < min || end > max {
				return field, types.NewErrorf("range %q out of bounds %d-%d", item, min, max)
			}
			for v := start; v <= end; v++ {
				field.values = append(field.values, v)
			}
			continue
		}

		v, err := strconv.Atoi(item)
		if err != nil {
			return field, types.NewErrorf("invalid value %q", item)
		}
		if v < min || v > max {
			return field, types.NewErrorf("value %d out of bounds %d-%d", v, min, max)
		}
		field.values = append(field.values, v)
	}

	if len(field.values) == 0 {
		return field, types.NewErrorf("empty field")
	}

	return field, nil
}

func (r *CronRule) String() string {
	return r.spec
}

// Matches reports whether the rule is due at the given instant. Standard
// cron conjunction: every field has to match. Seconds are ignored; the
// execution guard keeps a due minute from firing once per poll tick.
func (r *CronRule) Matches(t time.Time) bool {
	return r.minute.matches(t.Minute()) &&
		r.hour.matches(t.Hour()) &&
		r.day.matches(t.Day()) &&
		r.month.matches(int(t.Month())) &&
		r.weekday.matches(int(t.Weekday()))
}

// MinInterval derives the rule's own cadence, used as the execution
// guard's dedup window so that it stays consistent with the schedule
// instead of being a magic constant.
//
// A step in the day field is treated as an N-hour cadence: the source
// configuration uses "0 0 */6 * *" to mean "every 6 hours".
func (r *CronRule) MinInterval() time.Duration {
	if r.minute.kind == fieldStep {
		return time.Duration(r.minute.step) * time.Minute
	}
	if r.minute.kind == fieldAny {
		return time.Minute
	}
	if r.hour.kind == fieldStep {
		return time.Duration(r.hour.step) * time.Hour
	}
	if r.hour.kind == fieldAny {
		return time.Hour
	}
	if r.day.kind == fieldStep {
		return time.Duration(r.day.step) * time.Hour
	}
	return 24 * time.Hour
}

// Next returns the first instant strictly after from at which the rule
// matches, scanning minute by minute up to one year ahead. The zero time
// is returned when nothing matches within that horizon.
func (r *CronRule) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute)
	for i := 0; i < 366*24*60; i++ {
		t = t.Add(time.Minute)
		if r.Matches(t) {
			return t
		}
	}
	return time.Time{}
}
