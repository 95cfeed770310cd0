package publisher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/fleetemulator/backend"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/metrics"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

const (
	testNamespace = "iDRAC/Fleet"
	testInterval  = time.Minute
)

// fakeClient records every batch it is given. submitFn decides the outcome of the nth call, starting at zero.
type fakeClient struct {
	mu       sync.Mutex
	calls    atomic.Int32
	batches  [][]collector.DataPoint
	submitFn func(ctx *emucontext.Context, call int, batch []collector.DataPoint) error
}

func (f *fakeClient) Submit(ctx *emucontext.Context, _ string, batch []collector.DataPoint) error {
	call := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(ctx, call, batch)
	}
	return nil
}

func (f *fakeClient) Close() error {
	return nil
}

type collectorFunc func(ctx *emucontext.Context, r *registry.Registry, tickStart time.Time) ([]collector.DataPoint, error)

func (f collectorFunc) Collect(ctx *emucontext.Context, r *registry.Registry, tickStart time.Time) ([]collector.DataPoint, error) {
	return f(ctx, r, tickStart)
}

func testConfig() Config {
	return Config{
		Namespace:      testNamespace,
		Interval:       testInterval,
		BatchSize:      backend.MaxBatchSize,
		Parallelism:    1,
		SubmitAttempts: 1,
		SubmitTimeout:  time.Second,
		BackendName:    "fake",
	}
}

func newTestScheduler(t *testing.T, fleetSize int, config Config, c SnapshotCollector, client backend.Client) (*Scheduler, *clock.FakeClock) {
	r, err := registry.New(configuration.FleetConfig{
		Size:     fleetSize,
		IdPrefix: "DELL-SRV",
		IdDigits: 3,
		Seed:     7,
	}, metricmodel.MustNewModel(metricmodel.FleetProfile))
	require.NoError(t, err)
	if c == nil {
		c = collector.New(metricmodel.FleetKinds, nil, 4, nil)
	}
	m := metrics.New()
	require.NoError(t, m.Register(prometheus.NewRegistry()))
	fakeClock := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := NewScheduler(config, r, c, client, fakeClock, m)
	require.NoError(t, err)
	return s, fakeClock
}

func TestRunCycle_Batching(t *testing.T) {
	tests := map[string]struct {
		fleetSize         int
		batchSize         int
		expectedPoints    int
		expectedBatchLens []int
	}{
		"three servers": {
			fleetSize:         3,
			batchSize:         20,
			expectedPoints:    30,
			expectedBatchLens: []int{20, 10},
		},
		"two servers fill batches exactly": {
			fleetSize:         2,
			batchSize:         20,
			expectedPoints:    20,
			expectedBatchLens: []int{20},
		},
		"smaller batch size": {
			fleetSize:         1,
			batchSize:         3,
			expectedPoints:    10,
			expectedBatchLens: []int{3, 3, 3, 1},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{}
			config := testConfig()
			config.BatchSize = tc.batchSize
			s, _ := newTestScheduler(t, tc.fleetSize, config, nil, client)

			cycle := s.runCycle(emucontext.Background())

			assert.NoError(t, cycle.Err)
			assert.Equal(t, tc.expectedPoints, cycle.Points)
			assert.Equal(t, len(tc.expectedBatchLens), cycle.Batches)
			assert.Equal(t, len(tc.expectedBatchLens), cycle.Succeeded)
			assert.True(t, cycle.FullySuccessful())
			require.Len(t, client.batches, len(tc.expectedBatchLens))
			for i, expectedLen := range tc.expectedBatchLens {
				assert.Len(t, client.batches[i], expectedLen)
			}
		})
	}
}

func TestRunCycle_FullFleetWithEveryFifthBatchFailing(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		client := &fakeClient{
			submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
				if call%5 == 4 {
					return errors.New("ThrottlingException")
				}
				return nil
			},
		}
		config := testConfig()
		config.Parallelism = parallelism
		s, _ := newTestScheduler(t, 200, config, nil, client)

		cycle := s.runCycle(emucontext.Background())

		assert.NoError(t, cycle.Err)
		assert.Equal(t, 2000, cycle.Points)
		assert.Equal(t, 100, cycle.Batches)
		assert.Equal(t, 100, cycle.Attempted())
		assert.Equal(t, 80, cycle.Succeeded)
		assert.Equal(t, 20, cycle.Failed)
		assert.False(t, cycle.FullySuccessful())
		assert.Equal(t, int32(100), client.calls.Load())
		require.NotNil(t, cycle.BatchErrors)
		assert.Len(t, cycle.BatchErrors.Errors, 20)
		for _, err := range cycle.BatchErrors.Errors {
			var submissionErr *emuerrors.ErrBatchSubmission
			require.ErrorAs(t, err, &submissionErr)
			assert.Equal(t, testNamespace, submissionErr.Namespace)
			assert.Equal(t, backend.MaxBatchSize, submissionErr.Size)
		}
	}
}

func TestRunCycle_FailedBatchDoesNotAbortLaterBatches(t *testing.T) {
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
			if call == 0 {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	s, _ := newTestScheduler(t, 3, testConfig(), nil, client)

	cycle := s.runCycle(emucontext.Background())

	assert.Equal(t, 2, cycle.Attempted())
	assert.Equal(t, 1, cycle.Succeeded)
	assert.Equal(t, 1, cycle.Failed)
	assert.Len(t, client.batches, 2)
}

func TestRecord_LogsCarryCycleFields(t *testing.T) {
	tests := map[string]struct {
		failCall      int
		expectedLevel []logrus.Level
	}{
		"all batches succeed": {failCall: -1, expectedLevel: []logrus.Level{logrus.InfoLevel}},
		"one batch fails":     {failCall: 1, expectedLevel: []logrus.Level{logrus.InfoLevel, logrus.WarnLevel}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{
				submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
					if call == tc.failCall {
						return errors.New("throttled")
					}
					return nil
				},
			}
			s, _ := newTestScheduler(t, 3, testConfig(), nil, client)
			logger, hook := logtest.NewNullLogger()
			ctx := emucontext.New(context.Background(), logrus.NewEntry(logger))

			s.record(ctx, s.runCycle(emucontext.Background()))

			entries := hook.AllEntries()
			require.Len(t, entries, len(tc.expectedLevel))
			for i, entry := range entries {
				assert.Equal(t, tc.expectedLevel[i], entry.Level)
				assert.Equal(t, 30, entry.Data["points"])
				assert.Contains(t, entry.Data, "duration")
			}
			assert.Empty(t, ctx.Log.Data)
		})
	}
}

func TestSubmit_ContextNamesBatch(t *testing.T) {
	var mu sync.Mutex
	seen := map[interface{}]bool{}
	client := &fakeClient{
		submitFn: func(ctx *emucontext.Context, _ int, _ []collector.DataPoint) error {
			mu.Lock()
			defer mu.Unlock()
			seen[ctx.Log.Data["batch"]] = true
			return nil
		},
	}
	s, _ := newTestScheduler(t, 3, testConfig(), nil, client)

	cycle := s.runCycle(emucontext.Background())

	require.True(t, cycle.FullySuccessful())
	assert.Equal(t, map[interface{}]bool{0: true, 1: true}, seen)
}

func TestRunCycle_RetriesFailedBatch(t *testing.T) {
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
			if call < 2 {
				return errors.New("service unavailable")
			}
			return nil
		},
	}
	config := testConfig()
	config.SubmitAttempts = 3
	s, _ := newTestScheduler(t, 2, config, nil, client)

	cycle := s.runCycle(emucontext.Background())

	assert.True(t, cycle.FullySuccessful())
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestRunCycle_InvalidArgumentIsNotRetried(t *testing.T) {
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, _ int, _ []collector.DataPoint) error {
			return errors.WithStack(&emuerrors.ErrInvalidArgument{Name: "batch"})
		},
	}
	config := testConfig()
	config.SubmitAttempts = 5
	s, _ := newTestScheduler(t, 1, config, nil, client)

	cycle := s.runCycle(emucontext.Background())

	assert.Equal(t, 1, cycle.Failed)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRunCycle_SubmitPanicFailsOnlyThatBatch(t *testing.T) {
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
			if call == 1 {
				panic("nil pointer in backend")
			}
			return nil
		},
	}
	s, _ := newTestScheduler(t, 5, testConfig(), nil, client)

	cycle := s.runCycle(emucontext.Background())

	assert.NoError(t, cycle.Err)
	assert.Equal(t, 3, cycle.Batches)
	assert.Equal(t, 2, cycle.Succeeded)
	assert.Equal(t, 1, cycle.Failed)
	var tickErr *emuerrors.ErrTick
	assert.ErrorAs(t, cycle.BatchErrors.Errors[0], &tickErr)
}

func TestRunCycle_CollectPanicIsRecovered(t *testing.T) {
	client := &fakeClient{}
	c := collectorFunc(func(_ *emucontext.Context, _ *registry.Registry, _ time.Time) ([]collector.DataPoint, error) {
		panic("collector exploded")
	})
	s, _ := newTestScheduler(t, 1, testConfig(), c, client)

	cycle := s.runCycle(emucontext.Background())

	var tickErr *emuerrors.ErrTick
	require.ErrorAs(t, cycle.Err, &tickErr)
	assert.Equal(t, collectPhase, tickErr.Phase)
	assert.Empty(t, client.batches)
}

func TestRunCycle_PanicInsideCollectorWorkerIsRecovered(t *testing.T) {
	r, err := registry.New(configuration.FleetConfig{Size: 12, IdPrefix: "DELL-SRV", IdDigits: 3, Seed: 7}, nil)
	require.NoError(t, err)
	client := &fakeClient{}
	fakeClock := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := NewScheduler(testConfig(), r, collector.New(metricmodel.FleetKinds, nil, 4, nil), client, fakeClock, nil)
	require.NoError(t, err)

	cycle := s.runCycle(emucontext.Background())

	var tickErr *emuerrors.ErrTick
	require.ErrorAs(t, cycle.Err, &tickErr)
	assert.Equal(t, collectPhase, tickErr.Phase)
	assert.Zero(t, cycle.Points)
	assert.Empty(t, client.batches)
}

func TestRunCycle_CollectErrorIsTickError(t *testing.T) {
	c := collectorFunc(func(_ *emucontext.Context, _ *registry.Registry, _ time.Time) ([]collector.DataPoint, error) {
		return nil, errors.New("boom")
	})
	s, _ := newTestScheduler(t, 1, testConfig(), c, &fakeClient{})

	cycle := s.runCycle(emucontext.Background())

	var tickErr *emuerrors.ErrTick
	require.ErrorAs(t, cycle.Err, &tickErr)
	assert.Equal(t, collectPhase, tickErr.Phase)
}

func TestRunCycle_CancelledDuringPublishSkipsRemainingBatches(t *testing.T) {
	ctx, cancel := emucontext.WithCancel(emucontext.Background())
	defer cancel()
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, call int, _ []collector.DataPoint) error {
			if call == 2 {
				cancel()
			}
			return nil
		},
	}
	s, _ := newTestScheduler(t, 20, testConfig(), nil, client)

	cycle := s.runCycle(ctx)

	assert.True(t, cycle.Cancelled)
	assert.Equal(t, 10, cycle.Batches)
	assert.Equal(t, 3, cycle.Succeeded)
	assert.Equal(t, 7, cycle.Skipped)
	assert.Equal(t, int32(3), client.calls.Load())
	assert.False(t, cycle.FullySuccessful())
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	client := &fakeClient{}
	s, fakeClock := newTestScheduler(t, 3, testConfig(), nil, client)
	ctx, cancel := emucontext.WithCancel(emucontext.Background())
	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()

	waitForSleep(t, s, fakeClock)
	assert.Equal(t, int32(2), client.calls.Load())

	fakeClock.Step(testInterval - time.Second)
	assert.Never(t, func() bool { return client.calls.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	fakeClock.Step(time.Second)
	assert.Eventually(t, func() bool { return client.calls.Load() == 4 }, time.Second, time.Millisecond)
	waitForSleep(t, s, fakeClock)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, Idle, s.State())
}

func TestRun_ContinuesAfterTickPanic(t *testing.T) {
	var collects atomic.Int32
	inner := collector.New(metricmodel.FleetKinds, nil, 1, nil)
	c := collectorFunc(func(ctx *emucontext.Context, r *registry.Registry, tickStart time.Time) ([]collector.DataPoint, error) {
		if collects.Add(1) == 1 {
			panic("first tick fails")
		}
		return inner.Collect(ctx, r, tickStart)
	})
	client := &fakeClient{}
	s, fakeClock := newTestScheduler(t, 1, testConfig(), c, client)
	ctx, cancel := emucontext.WithCancel(emucontext.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx)
	}()

	waitForSleep(t, s, fakeClock)
	first, ok := s.LastCycle()
	require.True(t, ok)
	assert.Error(t, first.Err)
	assert.Equal(t, int32(0), client.calls.Load())

	fakeClock.Step(testInterval)
	assert.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, time.Millisecond)
	waitForSleep(t, s, fakeClock)
	second, ok := s.LastCycle()
	require.True(t, ok)
	assert.True(t, second.FullySuccessful())
}

func TestRun_IntervalMeasuredFromEndOfTick(t *testing.T) {
	const submitDuration = 5 * time.Second
	var fakeClock *clock.FakeClock
	client := &fakeClient{
		submitFn: func(_ *emucontext.Context, _ int, _ []collector.DataPoint) error {
			fakeClock.Step(submitDuration)
			return nil
		},
	}
	s, fc := newTestScheduler(t, 1, testConfig(), nil, client)
	fakeClock = fc
	start := fakeClock.Now()
	ctx, cancel := emucontext.WithCancel(emucontext.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx)
	}()

	waitForSleep(t, s, fakeClock)
	first, _ := s.LastCycle()
	assert.Equal(t, start, first.Start)
	assert.Equal(t, submitDuration, first.Duration)

	fakeClock.Step(testInterval)
	assert.Eventually(t, func() bool { return client.calls.Load() == 2 }, time.Second, time.Millisecond)
	waitForSleep(t, s, fakeClock)
	second, _ := s.LastCycle()
	assert.Equal(t, start.Add(submitDuration+testInterval), second.Start)
}

func TestHealthChecker(t *testing.T) {
	s, fakeClock := newTestScheduler(t, 1, testConfig(), nil, &fakeClient{})
	checker := s.HealthChecker(2 * testInterval)

	assert.Error(t, checker.Check())

	s.record(emucontext.Background(), s.runCycle(emucontext.Background()))
	assert.NoError(t, checker.Check())

	fakeClock.Step(3 * testInterval)
	assert.Error(t, checker.Check())
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero interval":          func(c *Config) { c.Interval = 0 },
		"zero batch size":        func(c *Config) { c.BatchSize = 0 },
		"batch size above limit": func(c *Config) { c.BatchSize = backend.MaxBatchSize + 1 },
		"negative batch size":    func(c *Config) { c.BatchSize = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := testConfig()
			mutate(&config)
			s, err := NewScheduler(config, nil, nil, &fakeClient{}, clock.NewFakeClock(time.Now()), nil)
			assert.Nil(t, s)
			assert.True(t, emuerrors.IsConfigurationError(err))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Publishing", Publishing.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func waitForSleep(t *testing.T, s *Scheduler, fakeClock *clock.FakeClock) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == Sleeping && fakeClock.HasWaiters()
	}, 5*time.Second, time.Millisecond)
}
