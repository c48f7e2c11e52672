// Package schedule runs the monthly report on a 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 6 2 * *" for 06:00
// on the 2nd of every month.
package schedule

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"chronicreport/internal/domain"
)

// Job runs one report for the given reporting period.
type Job func(ctx context.Context, period domain.Period) error

type Scheduler struct {
	spec  string
	sched cron.Schedule
	loc   *time.Location

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(spec string, loc *time.Location) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{spec: spec, sched: sched, loc: loc, now: time.Now, after: time.After}, nil
}

func (s *Scheduler) Next(from time.Time) time.Time {
	return s.sched.Next(from.In(s.loc))
}

// PeriodFor is the reporting period a run at t covers: the month before t.
func PeriodFor(t time.Time) domain.Period {
	return domain.PeriodOf(t).AddMonths(-1)
}

// Run blocks until ctx is cancelled. Runs are serialized: the next fire time
// is computed only after the previous job returns. Job errors are logged and
// do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	log.Printf("schedule: monthly report scheduled (cron: %s, tz: %s)", s.spec, s.loc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now().In(s.loc)
		next := s.Next(now)
		wait := next.Sub(now)
		log.Printf("schedule: next run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(wait):
		}

		period := PeriodFor(next)
		if err := job(ctx, period); err != nil {
			log.Printf("schedule: run for %s failed: %v", period, err)
			continue
		}
		log.Printf("schedule: run for %s complete", period)
	}
}
