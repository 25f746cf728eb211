// Package schedule computes fire times from a five-field cron expression
// evaluated in a configured timezone.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dbpoll/internal/domain"
)

var (
	// ErrInvalidSchedule is returned for an expression the parser rejects.
	ErrInvalidSchedule = errors.New("schedule: invalid cron expression")
	// ErrNoNextFireTime is returned when no instant matches the expression.
	ErrNoNextFireTime = errors.New("schedule: no next fire time")
	// ErrOnce is returned by Next on a schedule that has no expression.
	ErrOnce = errors.New("schedule: run-once schedule has no fire times")
)

// parser accepts exactly five fields; descriptors such as @hourly and
// @every are rejected.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a parsed ScheduleSpec. A Schedule without expression runs once.
type Schedule struct {
	expr string
	spec cron.Schedule
	loc  *time.Location
}

// New parses spec. A malformed expression is an error; an unknown timezone
// is not: it falls back to UTC with a warning.
func New(spec domain.ScheduleSpec, log zerolog.Logger) (*Schedule, error) {
	s := &Schedule{loc: resolveLocation(spec.Timezone.OrElse(""), log)}

	expr, ok := spec.Expression.Get()
	if !ok || strings.TrimSpace(expr) == "" {
		return s, nil
	}
	parsed, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	s.expr = strings.TrimSpace(expr)
	s.spec = parsed
	return s, nil
}

// Parse checks a cron expression without building a Schedule.
func Parse(expr string) (cron.Schedule, error) {
	parsed, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return parsed, nil
}

func resolveLocation(name string, log zerolog.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Str("timezone", name).Err(err).Msg("schedule: unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

// Once reports whether the schedule has no expression.
func (s *Schedule) Once() bool {
	return s.spec == nil
}

func (s *Schedule) Location() *time.Location {
	return s.loc
}

func (s *Schedule) String() string {
	if s.Once() {
		return "once"
	}
	return s.expr + " (" + s.loc.String() + ")"
}

// Next returns the earliest instant strictly after now that matches the
// expression, expressed in the schedule's location.
func (s *Schedule) Next(now time.Time) (time.Time, error) {
	if s.Once() {
		return time.Time{}, ErrOnce
	}
	next := s.spec.Next(now.In(s.loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w after %s for %q", ErrNoNextFireTime, now.Format(time.RFC3339), s.expr)
	}
	return next.In(s.loc), nil
}

// Upcoming lists the next n fire times after now.
func (s *Schedule) Upcoming(now time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		next, err := s.Next(now)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		now = next
	}
	return out, nil
}
