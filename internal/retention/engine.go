// Package retention prunes data that has outlived its usefulness: trackers
// older than a day, chat older than a month, chat beyond a fixed backlog and
// expired idempotency records.
//
// The Engine runs each pass independently. A failing pass is reported in
// the Result next to the counts of the passes that succeeded.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
)

// ErrAlreadyRunning is returned by Run while another run is in progress.
var ErrAlreadyRunning = errors.New("housekeeping already running")

// Pass names, used as Result.Errors keys and metric labels.
const (
	PassTrackers    = "trackers"
	PassOldChats    = "old_chats"
	PassExcessChats = "excess_chats"
	PassIdempotency = "idempotency"
)

// Notifier receives deletion events when notification is enabled.
// *realtime.Hub implements it.
type Notifier interface {
	BroadcastGlobal(event string, data any) int
}

// Options are the engine thresholds.
type Options struct {
	TrackerMaxAge time.Duration
	ChatMaxAge    time.Duration
	ChatMaxCount  int
	Parallelism   int
	Notify        bool
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		TrackerMaxAge: 24 * time.Hour,
		ChatMaxAge:    30 * 24 * time.Hour,
		ChatMaxCount:  3000,
		Parallelism:   1,
		Notify:        true,
	}
}

// Result summarises one run.
type Result struct {
	Success            bool              `json:"success"`
	StartedAt          time.Time         `json:"started_at"`
	DurationMS         int64             `json:"duration_ms"`
	TrackersDeleted    int64             `json:"trackers_deleted"`
	OldChatsDeleted    int64             `json:"old_chats_deleted"`
	ExcessChatsDeleted int64             `json:"excess_chats_deleted"`
	IdempotencyPurged  int64             `json:"idempotency_purged"`
	Errors             map[string]string `json:"errors,omitempty"`
}

// Engine runs the retention passes against the store.
type Engine struct {
	db   *gorm.DB
	bus  Notifier
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	running sync.Mutex
}

var tracer = otel.Tracer("retention/Engine")

// NewEngine returns an Engine. bus may be nil, which disables notification.
func NewEngine(db *gorm.DB, bus Notifier, opts Options, log zerolog.Logger) *Engine {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Engine{
		db:   db,
		bus:  bus,
		opts: opts,
		log:  log.With().Str("component", "retention").Logger(),
		now:  time.Now,
	}
}

// Run executes every pass once. It never runs concurrently with itself:
// overlapping calls return ErrAlreadyRunning immediately.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.running.TryLock() {
		runsTotal.WithLabelValues("skipped").Inc()
		return Result{}, ErrAlreadyRunning
	}
	defer e.running.Unlock()

	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	start := e.now()
	res := Result{StartedAt: start.UTC(), Errors: map[string]string{}}
	var mu sync.Mutex
	record := func(pass string, n int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch pass {
		case PassTrackers:
			res.TrackersDeleted = n
		case PassOldChats:
			res.OldChatsDeleted = n
		case PassExcessChats:
			res.ExcessChatsDeleted = n
		case PassIdempotency:
			res.IdempotencyPurged = n
		}
		if n > 0 {
			deletedTotal.WithLabelValues(pass).Add(float64(n))
		}
		if err != nil {
			res.Errors[pass] = err.Error()
			e.log.Error().Err(err).Str("pass", pass).Msg("housekeeping pass failed")
		}
	}

	// No shared cancellation: one failing pass must not abort the others.
	var g errgroup.Group
	g.SetLimit(e.opts.Parallelism)
	g.Go(func() error {
		n, err := e.pruneTrackers(ctx, start)
		record(PassTrackers, n, err)
		return err
	})
	g.Go(func() error {
		// The backlog pass counts what the age pass left behind, so the two
		// run in order.
		old, errOld := e.pruneOldChats(ctx, start)
		record(PassOldChats, old, errOld)
		excess, errExcess := e.trimChatBacklog(ctx)
		record(PassExcessChats, excess, errExcess)
		e.notifyChatPruned(ctx, old+excess)
		if errOld != nil {
			return errOld
		}
		return errExcess
	})
	g.Go(func() error {
		n, err := repo.PurgeExpiredIdempotency(ctx, e.db, start)
		err = errors.Wrap(err, "purge idempotency")
		record(PassIdempotency, n, err)
		return err
	})
	firstErr := g.Wait()

	res.DurationMS = e.now().Sub(start).Milliseconds()
	res.Success = len(res.Errors) == 0
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	runDuration.Observe(e.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int64("trackers_deleted", res.TrackersDeleted),
		attribute.Int64("old_chats_deleted", res.OldChatsDeleted),
		attribute.Int64("excess_chats_deleted", res.ExcessChatsDeleted),
	)
	if res.Success {
		runsTotal.WithLabelValues("success").Inc()
		e.log.Info().
			Int64("trackers", res.TrackersDeleted).
			Int64("old_chats", res.OldChatsDeleted).
			Int64("excess_chats", res.ExcessChatsDeleted).
			Int64("idempotency", res.IdempotencyPurged).
			Int64("duration_ms", res.DurationMS).
			Msg("housekeeping completed")
	} else {
		runsTotal.WithLabelValues("failure").Inc()
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "one or more passes failed")
	}
	return res, nil
}

// pruneTrackers deletes trackers created before now-TrackerMaxAge. With
// notification on, each row it deleted is announced as
// tracker:deleted:global.
func (e *Engine) pruneTrackers(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-e.opts.TrackerMaxAge)
	if !e.notifying() {
		n, err := repo.DeleteTrackersCreatedBefore(ctx, e.db, cutoff)
		return n, errors.Wrap(err, "delete expired trackers")
	}

	expired, err := repo.ListTrackersCreatedBefore(ctx, e.db, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "list expired trackers")
	}
	if len(expired) == 0 {
		return 0, nil
	}
	ids := make([]uint, len(expired))
	for i, t := range expired {
		ids[i] = t.ID
	}
	// Only rows this pass removed are announced, including those from
	// chunks that succeeded before a failure.
	deleted, err := repo.DeleteTrackersByID(ctx, e.db, ids, cutoff)
	event := realtime.Global(realtime.EventTrackerDeleted)
	for _, t := range deleted {
		e.bus.BroadcastGlobal(event, realtime.TrackerRef{
			ID:            t.ID,
			EpisodeNumber: t.EpisodeNumber,
			MapID:         t.MapID,
			ChannelID:     t.ChannelID,
		})
	}
	return int64(len(deleted)), errors.Wrap(err, "delete expired trackers")
}

func (e *Engine) pruneOldChats(ctx context.Context, now time.Time) (int64, error) {
	n, err := repo.DeleteChatCreatedBefore(ctx, e.db, now.Add(-e.opts.ChatMaxAge))
	return n, errors.Wrap(err, "delete old chat")
}

// trimChatBacklog keeps the newest ChatMaxCount messages. The boundary is
// the ChatMaxCount-th newest message; everything with a lower id goes.
func (e *Engine) trimChatBacklog(ctx context.Context) (int64, error) {
	total, err := repo.CountChatMessages(ctx, e.db)
	if err != nil {
		return 0, errors.Wrap(err, "count chat")
	}
	if total <= int64(e.opts.ChatMaxCount) {
		return 0, nil
	}
	boundary, ok, err := repo.NthNewestChatID(ctx, e.db, e.opts.ChatMaxCount)
	if err != nil {
		return 0, errors.Wrap(err, "find chat boundary")
	}
	if !ok {
		return 0, nil
	}
	n, err := repo.DeleteChatBelowID(ctx, e.db, boundary)
	return n, errors.Wrapf(err, "delete chat below id %d", boundary)
}

func (e *Engine) notifyChatPruned(ctx context.Context, deleted int64) {
	if !e.notifying() || deleted == 0 {
		return
	}
	ev := realtime.ChatPruned{Deleted: deleted}
	if id, ok, err := repo.OldestChatID(ctx, e.db); err == nil && ok {
		ev.OldestRetainedID = &id
	}
	e.bus.BroadcastGlobal(realtime.EventChatPruned, ev)
}

func (e *Engine) notifying() bool { return e.opts.Notify && e.bus != nil }
