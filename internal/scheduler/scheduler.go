// Package scheduler runs the fetch, normalize and store cycle on an interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/normalizer"
	"github.com/immahesh111/modelerror-dashboard/internal/telemetry"
	"github.com/sirupsen/logrus"
)

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StateStoring
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateStoring:
		return "storing"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Fetcher interface {
	Fetch(ctx context.Context, shift domain.Shift) (domain.ReportBatch, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, batch domain.ReportBatch) (normalizer.Result, error)
}

// Store is the part of the storage backend a cycle writes to.
type Store interface {
	Replace(ctx context.Context, family string, records []domain.ErrorRecord) error
	ListDatasets(ctx context.Context) ([]domain.ModelDataset, error)
	RecordRun(ctx context.Context, run domain.CycleRun) error
}

const (
	defaultInterval  = 30 * time.Minute
	recordRunTimeout = 10 * time.Second
)

type Scheduler struct {
	fetcher      Fetcher
	normalizer   Normalizer
	store        Store
	instruments  *telemetry.Instruments
	interval     time.Duration
	cycleTimeout time.Duration
	now          func() time.Time
	state        atomic.Int32
	logger       logrus.FieldLogger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(
	cfg config.SchedulerConfig,
	fetcher Fetcher,
	norm Normalizer,
	store Store,
	instruments *telemetry.Instruments,
	logger logrus.FieldLogger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		fetcher:      fetcher,
		normalizer:   norm,
		store:        store,
		instruments:  instruments,
		interval:     cfg.Interval,
		cycleTimeout: cfg.CycleTimeout,
		now:          time.Now,
		logger:       logger,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
}

// RunForever runs a cycle immediately and then once per interval until ctx
// is cancelled. A cycle that overruns the interval delays the next one.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.setState(StateIdle)
	defer s.setState(StateShutdown)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	tickerStart := time.Now()

	s.logger.WithField("interval", s.interval).Info("scheduler started")
	start := s.now()
	scheduledAt := start
	for {
		// Failures are logged and recorded by the cycle itself.
		_, _ = s.RunCycle(ctx, domain.ShiftAt(scheduledAt))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case tick := <-ticker.C:
			// A tick buffered during an overrunning cycle keeps its nominal
			// time, mapped onto the scheduler clock.
			scheduledAt = start.Add(tick.Sub(tickerStart))
		}
	}
}

// RunCycle runs one cycle for target. The cycle is skipped when the shift
// active right now is not target.
func (s *Scheduler) RunCycle(ctx context.Context, target domain.Shift) (domain.CycleRun, error) {
	startedAt := s.now()
	if active := domain.ShiftAt(startedAt); active != target {
		run := domain.NewCycleRun(target, startedAt)
		run.Status = domain.CycleRunStatusSkipped
		run.FinishedAt = startedAt
		s.logger.WithFields(logrus.Fields{"shift": target, "active_shift": active}).
			Info("skipping cycle, shift is not active")
		s.finish(ctx, run)
		return run, nil
	}
	return s.execute(ctx, domain.NewCycleRun(target, startedAt))
}

// RunOnce runs a single cycle for shift regardless of the time of day.
func (s *Scheduler) RunOnce(ctx context.Context, shift domain.Shift) (domain.CycleRun, error) {
	s.setState(StateIdle)
	return s.execute(ctx, domain.NewCycleRun(shift, s.now()))
}

func (s *Scheduler) execute(ctx context.Context, run domain.CycleRun) (domain.CycleRun, error) {
	log := s.logger.WithFields(logrus.Fields{"cycle": run.ID, "shift": run.Shift})
	log.Info("cycle started")
	defer s.setState(StateIdle)

	cycleCtx := ctx
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	families, records, err := s.pipeline(cycleCtx, run.Shift, log)
	if err != nil {
		stage := domain.Stage(err)
		run = run.Fail(stage, err, s.now())
		run.Families, run.Records = families, records
		if errors.Is(err, context.Canceled) {
			log.WithField("stage", stage).Warn("cycle interrupted by shutdown")
		} else {
			log.WithError(err).WithField("stage", stage).Error("cycle failed")
		}
		s.finish(ctx, run)
		return run, err
	}

	run.Status = domain.CycleRunStatusCompleted
	run.Families, run.Records = families, records
	run.FinishedAt = s.now()
	log.WithFields(logrus.Fields{
		"families": families,
		"records":  records,
		"duration": run.FinishedAt.Sub(run.StartedAt),
	}).Info("cycle completed")
	s.finish(ctx, run)
	return run, nil
}

func (s *Scheduler) pipeline(ctx context.Context, shift domain.Shift, log logrus.FieldLogger) (int, int, error) {
	s.setState(StateFetching)
	stageCtx, end := s.instruments.StartStage(ctx, "fetch")
	batch, err := s.fetcher.Fetch(stageCtx, shift)
	end(err)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := batch.Remove(); err != nil {
			log.WithError(err).WithField("file", batch.Path).Warn("failed to remove report file")
		}
	}()

	s.setState(StateNormalizing)
	stageCtx, end = s.instruments.StartStage(ctx, "normalize")
	result, err := s.normalizer.Normalize(stageCtx, batch)
	end(err)
	if err != nil {
		return 0, 0, err
	}

	s.setState(StateStoring)
	stageCtx, end = s.instruments.StartStage(ctx, "store")
	families, records, err := s.storeResult(stageCtx, result, log)
	end(err)
	return families, records, err
}

func (s *Scheduler) storeResult(ctx context.Context, result normalizer.Result, log logrus.FieldLogger) (int, int, error) {
	families, records := 0, 0
	for _, family := range result.Families {
		partition := result.Partitions[family]
		if err := s.store.Replace(ctx, family, partition); err != nil {
			return families, records, err
		}
		families++
		records += len(partition)
		s.instruments.RecordsStored(ctx, family, len(partition))
	}

	// Families missing from this report keep no stale snapshot.
	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		return families, records, err
	}
	for _, ds := range datasets {
		if _, ok := result.Partitions[ds.Family]; ok || ds.RecordCount == 0 {
			continue
		}
		log.WithField("family", ds.Family).Info("family absent from report")
		if err := s.store.Replace(ctx, ds.Family, nil); err != nil {
			return families, records, err
		}
	}
	return families, records, nil
}

func (s *Scheduler) finish(ctx context.Context, run domain.CycleRun) {
	s.instruments.CycleFinished(ctx, string(run.Status))

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordRunTimeout)
	defer cancel()
	if err := s.store.RecordRun(recordCtx, run); err != nil {
		s.logger.WithError(err).WithField("cycle", run.ID).Warn("failed to record cycle run")
	}
}
