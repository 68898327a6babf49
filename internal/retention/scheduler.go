package retention

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner is what the scheduler triggers. *Engine implements it.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler triggers a Runner on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec (standard 5-field cron) in the named IANA zone.
func NewScheduler(spec, timezone string, r Runner, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", timezone)
	}
	log = log.With().Str("component", "retention.scheduler").Logger()
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, runner: r, log: log, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(spec, s.trigger); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "parse schedule %q", spec)
	}
	return s, nil
}

// Start begins scheduling. If runNow is set one run fires immediately in
// the background.
func (s *Scheduler) Start(runNow bool) {
	s.cron.Start()
	if runNow {
		go s.trigger()
	}
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("housekeeping scheduled")
	}
}

// Stop halts scheduling, cancels an in-flight run and waits for it (or ctx).
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) trigger() {
	res, err := s.runner.Run(s.ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Warn().Msg("housekeeping skipped: previous run still in progress")
	case err != nil:
		s.log.Error().Err(err).Msg("housekeeping run failed")
	case !res.Success:
		s.log.Warn().Interface("errors", res.Errors).Msg("housekeeping finished with errors")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
