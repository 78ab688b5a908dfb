// Package scheduler runs the periodic evaluation tick: load candidate
// schedules, decide which stage (if any) is due for each, and hand due
// items to the dispatcher. The tick holds no per-schedule timers — every
// run re-derives due-ness from stored state against wall-clock time, so
// restarts cost nothing.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/chatwheel/followup/internal/alert"
	"github.com/chatwheel/followup/internal/dispatch"
	"github.com/chatwheel/followup/internal/models"
	"github.com/chatwheel/followup/internal/schedule"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DefaultTickInterval matches the platform's one-minute evaluation period.
const DefaultTickInterval = time.Minute

// Scheduler evaluates candidate schedules on a fixed interval.
type Scheduler struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Gate       Gate       // nil means always run
	Sink       alert.Sink // nil means log only

	// Now is the clock used for due-time comparison. Nil means time.Now.
	Now func() time.Time

	Out io.Writer // optional progress output
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run ticks until ctx is cancelled. The first tick fires immediately;
// subsequent ticks are cron-driven at the given interval, with overlapping
// runs within this process skipped. Cross-process serialization is the
// gate's job.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	if s.Out != nil {
		fmt.Fprintf(s.Out, "Scheduler starting (tick every %s)...\n", interval)
	}

	s.Tick(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("scheduler: register tick: %w", err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	if s.Out != nil {
		fmt.Fprintf(s.Out, "Scheduler stopped.\n")
	}
	return nil
}

// Tick runs one evaluation pass. Nothing here may escape to the caller:
// a failure in one candidate is reported and the rest still run.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.Gate != nil {
		ok, err := s.Gate.ShouldRun()
		if err != nil {
			s.report(ctx, "tick gate check failed", err.Error())
			return
		}
		if !ok {
			return
		}
	}

	candidates, err := schedule.Candidates(s.DB)
	if err != nil {
		s.report(ctx, "candidate query failed", err.Error())
		return
	}

	for i := range candidates {
		s.evaluate(ctx, &candidates[i])
	}
}

// evaluate checks one candidate and dispatches its stage when due. Panics
// and errors are contained here so a single bad record never stalls the
// tick for all tenants.
func (s *Scheduler) evaluate(ctx context.Context, sched *models.Schedule) {
	defer func() {
		if r := recover(); r != nil {
			s.report(ctx, "panic evaluating schedule "+sched.ID, fmt.Sprint(r))
		}
	}()

	stage, ok := dispatch.NextStage(sched)
	if !ok {
		return
	}
	dueAt, ok := dispatch.DueAt(sched, &sched.Setting, stage)
	if !ok {
		return
	}
	if s.now().Before(dueAt) {
		return
	}

	if s.Out != nil {
		fmt.Fprintf(s.Out, "Dispatching %s for schedule %s (conversation %s)\n",
			stage, sched.ID, sched.ConversationID)
	}
	if err := s.Dispatcher.Dispatch(ctx, sched, &sched.Setting, stage); err != nil {
		s.report(ctx, fmt.Sprintf("dispatch %s for schedule %s failed", stage, sched.ID), err.Error())
	}
}

// report logs and forwards a tick error to the alert sink. The flag for a
// failed candidate was never persisted, so the next tick retries it.
func (s *Scheduler) report(ctx context.Context, subject, detail string) {
	log.Printf("scheduler: %s: %s", subject, detail)
	if s.Sink == nil {
		return
	}
	if err := s.Sink.Report(ctx, subject, detail); err != nil {
		log.Printf("scheduler: alert sink failed: %v", err)
	}
}
