package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/NgigiN/ledgerbot/internal/log"
)

// RolloverReport summarizes one scheduled rollover of a finished month.
type RolloverReport struct {
	Ended   Period
	Users   int
	Carried int
	Failed  int
}

// Rollover carries the ended month's net balance into the following month
// for every user with activity in it. It goes through CarryForward, so it is
// idempotent and safe to race with a user changing month by hand. A failure
// for one user is logged and the batch moves on.
func (l *Ledger) Rollover(ctx context.Context, ended Period) (RolloverReport, error) {
	report := RolloverReport{Ended: ended}

	users, err := l.store.ActiveUsers(ctx, ended.String())
	if err != nil {
		return report, fmt.Errorf("rollover %s: %w", ended, err)
	}
	report.Users = len(users)

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := l.CarryForward(ctx, userID, ended, ended.Next())
		if err != nil {
			report.Failed++
			l.log.ErrorContext(ctx, "rollover failed for user",
				log.FieldOperation, log.OpRollover,
				log.FieldUserID, userID,
				log.FieldPeriod, ended.String(),
				log.FieldError, err)
			continue
		}
		if res.Created != nil {
			report.Carried++
		}
	}

	l.log.InfoContext(ctx, "rollover complete",
		log.FieldOperation, log.OpRollover,
		log.FieldPeriod, ended.String(),
		"users", report.Users,
		"carried", report.Carried,
		"failed", report.Failed)
	return report, nil
}

// Scheduler runs Rollover once per calendar month boundary. It polls on an
// interval rather than sleeping until the boundary so clock changes and
// restarts are picked up on the next tick.
type Scheduler struct {
	ledger   *Ledger
	interval time.Duration
	last     Period
	log      *log.Logger
}

func NewScheduler(l *Ledger, interval time.Duration, lg *log.Logger) *Scheduler {
	if lg == nil {
		lg = log.Nop()
	}
	return &Scheduler{
		ledger:   l,
		interval: interval,
		log:      lg.WithComponent(log.ComponentScheduler),
	}
}

// Tick processes any month boundaries crossed since the last successful
// tick. The first tick after startup only rolls over the previous month.
func (s *Scheduler) Tick(ctx context.Context) error {
	current := PeriodOf(s.ledger.Now())
	if s.last == current {
		return nil
	}

	ended := current.Prev()
	if !s.last.IsZero() && s.last.Before(current) {
		ended = s.last
	}

	for ended.Before(current) {
		if _, err := s.ledger.Rollover(ctx, ended); err != nil {
			return err
		}
		ended = ended.Next()
	}
	s.last = current
	return nil
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "rollover scheduler started", "interval", s.interval)

	if err := s.Tick(ctx); err != nil {
		s.log.ErrorContext(ctx, "initial rollover failed", log.FieldError, err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "rollover scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.ErrorContext(ctx, "rollover failed", log.FieldError, err)
			}
		}
	}
}
