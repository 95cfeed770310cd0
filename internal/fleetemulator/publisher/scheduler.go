// Package publisher runs the periodic collect, batch and publish loop of the fleet.
package publisher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/common/health"
	"github.com/G-Research/idracsim/internal/common/util"
	"github.com/G-Research/idracsim/internal/fleetemulator/backend"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/metrics"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

const (
	collectPhase = collector.CollectPhase
	batchPhase   = "batch"
	publishPhase = "publish"
)

// SnapshotCollector produces the data points of one tick.
type SnapshotCollector interface {
	Collect(ctx *emucontext.Context, r *registry.Registry, tickStart time.Time) ([]collector.DataPoint, error)
}

type Config struct {
	Namespace string
	// Sleep between the end of one tick and the start of the next.
	Interval time.Duration
	// Maximum points per batch; at most backend.MaxBatchSize.
	BatchSize int
	// Maximum batches in flight at once.
	Parallelism int
	// Attempts per batch including the first.
	SubmitAttempts uint
	SubmitTimeout  time.Duration
	RetryDelay     time.Duration
	// Used to label metrics.
	BackendName string
}

// Scheduler drives the fleet publishing loop. Only one tick is ever in progress.
type Scheduler struct {
	config    Config
	registry  *registry.Registry
	collector SnapshotCollector
	client    backend.Client
	clock     clock.Clock
	metrics   *metrics.Metrics

	state     atomic.Int32
	mu        sync.Mutex
	lastCycle *Cycle
}

func NewScheduler(
	config Config,
	r *registry.Registry,
	c SnapshotCollector,
	client backend.Client,
	clock clock.Clock,
	m *metrics.Metrics,
) (*Scheduler, error) {
	if config.Interval <= 0 {
		return nil, errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "publish.intervalSeconds",
			Value:   config.Interval,
			Message: "interval must be positive",
		})
	}
	if config.BatchSize <= 0 || config.BatchSize > backend.MaxBatchSize {
		return nil, errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "publish.batchSize",
			Value:   config.BatchSize,
			Message: "batch size must be between 1 and 20",
		})
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.SubmitAttempts < 1 {
		config.SubmitAttempts = 1
	}
	return &Scheduler{
		config:    config,
		registry:  r,
		collector: c,
		client:    client,
		clock:     clock,
		metrics:   m,
	}, nil
}

// Run executes ticks until ctx is cancelled. Failures within a tick are logged and counted but never end the loop.
func (s *Scheduler) Run(ctx *emucontext.Context) error {
	ctx.Log.Infof(
		"Publishing %d servers to %s every %s in batches of %d",
		s.registry.Len(), s.config.Namespace, s.config.Interval, s.config.BatchSize,
	)
	defer s.setState(Idle)
	for {
		cycle := s.runCycle(ctx)
		s.record(ctx, cycle)
		if ctx.Err() != nil {
			ctx.Log.Info("Context cancelled, stopping publisher")
			return nil
		}

		s.setState(Sleeping)
		select {
		case <-ctx.Done():
			ctx.Log.Info("Context cancelled, stopping publisher")
			return nil
		case <-s.clock.After(s.config.Interval):
		}
	}
}

// runCycle performs a single tick. A panic in any phase is recovered and reported as an *emuerrors.ErrTick.
func (s *Scheduler) runCycle(ctx *emucontext.Context) (cycle Cycle) {
	start := s.clock.Now()
	cycle.Start = start
	phase := collectPhase
	s.metrics.ReportTickStarted()

	defer func() {
		if r := recover(); r != nil {
			cycle.Err = emuerrors.NewTickPanic(phase, r)
		}
		cycle.Duration = s.clock.Since(start)
	}()

	s.setState(Collecting)
	points, err := s.collector.Collect(ctx, s.registry, start)
	if err != nil {
		if ctx.Err() != nil {
			cycle.Cancelled = true
			return
		}
		var tickErr *emuerrors.ErrTick
		if errors.As(err, &tickErr) {
			cycle.Err = tickErr
			return
		}
		cycle.Err = &emuerrors.ErrTick{Phase: phase, Cause: err}
		return
	}
	cycle.Points = len(points)

	phase = batchPhase
	s.setState(Batching)
	batches, err := util.Batch(points, s.config.BatchSize)
	if err != nil {
		cycle.Err = &emuerrors.ErrTick{Phase: phase, Cause: err}
		return
	}
	cycle.Batches = len(batches)

	phase = publishPhase
	s.setState(Publishing)
	s.publish(ctx, batches, &cycle)
	return
}

// publish submits every batch independently. It returns once every issued submission has returned.
func (s *Scheduler) publish(ctx *emucontext.Context, batches [][]collector.DataPoint, cycle *Cycle) {
	var mu sync.Mutex
	var batchErrors *multierror.Error
	outcome := func(err error, skipped bool) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case skipped:
			cycle.Skipped++
		case err != nil:
			cycle.Failed++
			batchErrors = multierror.Append(batchErrors, err)
		default:
			cycle.Succeeded++
		}
	}

	g := errgroup.Group{}
	g.SetLimit(s.config.Parallelism)
	for i, batch := range batches {
		if ctx.Err() != nil {
			mu.Lock()
			cycle.Skipped += len(batches) - i
			mu.Unlock()
			cycle.Cancelled = true
			break
		}
		i, batch := i, batch
		g.Go(func() error {
			if ctx.Err() != nil {
				outcome(nil, true)
				return nil
			}
			outcome(s.submit(ctx, i, batch), false)
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.ReportBatchesSkipped(cycle.Skipped)
	if ctx.Err() != nil {
		cycle.Cancelled = true
	}
	cycle.BatchErrors = batchErrors
}

// submit sends one batch, retrying up to the configured number of attempts. Retries stop as soon as ctx is
// cancelled.
func (s *Scheduler) submit(ctx *emucontext.Context, index int, batch []collector.DataPoint) (err error) {
	start := s.clock.Now()
	ctx = emucontext.WithLogField(ctx, "batch", index)
	defer func() {
		if r := recover(); r != nil {
			err = emuerrors.NewTickPanic(publishPhase, r)
		}
		s.metrics.ReportBatchSubmitted(s.config.BackendName, len(batch), s.clock.Since(start), err)
		if err != nil {
			err = &emuerrors.ErrBatchSubmission{
				Namespace: s.config.Namespace,
				Index:     index,
				Size:      len(batch),
				Cause:     err,
			}
		}
	}()

	return retry.Do(
		func() error {
			attemptCtx, cancel := emucontext.WithTimeout(ctx, s.config.SubmitTimeout)
			defer cancel()
			return s.client.Submit(attemptCtx, s.config.Namespace, batch)
		},
		retry.Context(ctx),
		retry.Attempts(s.config.SubmitAttempts),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !emuerrors.IsInvalidArgument(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.WithError(err).Debugf("Submit attempt %d failed", n+1)
		}),
	)
}

func (s *Scheduler) record(ctx *emucontext.Context, cycle Cycle) {
	s.mu.Lock()
	s.lastCycle = &cycle
	s.mu.Unlock()

	s.metrics.ReportTickCompleted(cycle.Duration, cycle.End(), cycle.FullySuccessful())

	ctx = emucontext.WithLogFields(ctx, logrus.Fields{
		"points":   cycle.Points,
		"duration": cycle.Duration,
	})
	log := ctx.Log
	if cycle.Err != nil {
		var tickErr *emuerrors.ErrTick
		phase := "unknown"
		if errors.As(cycle.Err, &tickErr) {
			phase = tickErr.Phase
		}
		s.metrics.ReportTickError(phase)
		log.WithError(cycle.Err).Errorf("Tick failed during %s; retrying after %s", phase, s.config.Interval)
		return
	}
	log.Infof("Published %d/%d batches (%d total metrics)", cycle.Succeeded, cycle.Batches, cycle.Points)
	if cycle.Failed > 0 {
		log.WithError(cycle.BatchErrors.ErrorOrNil()).Warnf("%d of %d batches failed", cycle.Failed, cycle.Attempted())
	}
	if cycle.Skipped > 0 {
		log.Warnf("%d batches were not submitted due to shutdown", cycle.Skipped)
	}
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastCycle returns the most recently completed tick, if any.
func (s *Scheduler) LastCycle() (Cycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle == nil {
		return Cycle{}, false
	}
	return *s.lastCycle, true
}

// HealthChecker reports unhealthy if no tick has completed within maxAge.
func (s *Scheduler) HealthChecker(maxAge time.Duration) health.Checker {
	return health.CheckerFunc(func() error {
		cycle, ok := s.LastCycle()
		if !ok {
			return errors.New("publisher has not completed a tick yet")
		}
		if age := s.clock.Since(cycle.End()); age > maxAge {
			return errors.Errorf("last tick completed %s ago, more than %s", age, maxAge)
		}
		return nil
	})
}
