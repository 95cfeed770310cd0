package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records the behaviour of the fleet publisher. All methods are safe to call on a nil *Metrics, which
// records nothing.
type Metrics struct {
	ticks              prometheus.Counter
	tickErrors         *prometheus.CounterVec
	tickDuration       prometheus.Histogram
	batches            *prometheus.CounterVec
	pointsPublished    prometheus.Counter
	generationErrors   *prometheus.CounterVec
	fleetSize          prometheus.Gauge
	lastSuccessfulTick prometheus.Gauge
	submitDuration     *prometheus.HistogramVec
	collectors         []prometheus.Collector
}

func New() *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "ticks_total",
			Help: "Number of publish ticks started",
		}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "tick_errors_total",
			Help: "Number of publish ticks aborted by an unexpected error, by the phase that failed",
		}, []string{phaseLabel}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "tick_duration_seconds",
			Help:    "Time taken to collect, batch and publish one tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "batches_total",
			Help: "Number of batches by outcome",
		}, []string{outcomeLabel}),
		pointsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "points_published_total",
			Help: "Number of data points accepted by the backend",
		}),
		generationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "generation_errors_total",
			Help: "Number of data points dropped because the generated value was invalid",
		}, []string{kindLabel}),
		fleetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "size",
			Help: "Number of emulated servers",
		}),
		lastSuccessfulTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "last_successful_tick_timestamp_seconds",
			Help: "Unix time of the last tick in which every batch was accepted",
		}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "submit_duration_seconds",
			Help:    "Time taken to submit one batch, including retries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{backendLabel, outcomeLabel}),
	}
	m.collectors = []prometheus.Collector{
		m.ticks,
		m.tickErrors,
		m.tickDuration,
		m.batches,
		m.pointsPublished,
		m.generationErrors,
		m.fleetSize,
		m.lastSuccessfulTick,
		m.submitDuration,
	}
	return m
}

// Register registers every metric with registerer.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	for _, c := range m.collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) SetFleetSize(size int) {
	if m == nil {
		return
	}
	m.fleetSize.Set(float64(size))
}

func (m *Metrics) ReportGenerationError(kind string) {
	if m == nil {
		return
	}
	m.generationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReportTickStarted() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ReportTickError(phase string) {
	if m == nil {
		return
	}
	m.tickErrors.WithLabelValues(phase).Inc()
}

func (m *Metrics) ReportBatchSubmitted(backend string, points int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.batches.WithLabelValues(failed).Inc()
		m.submitDuration.WithLabelValues(backend, failed).Observe(duration.Seconds())
		return
	}
	m.batches.WithLabelValues(succeeded).Inc()
	m.pointsPublished.Add(float64(points))
	m.submitDuration.WithLabelValues(backend, succeeded).Observe(duration.Seconds())
}

func (m *Metrics) ReportBatchesSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batches.WithLabelValues(skipped).Add(float64(n))
}

// ReportTickCompleted records the duration of a tick, and its end time if every batch in it was accepted.
func (m *Metrics) ReportTickCompleted(duration time.Duration, end time.Time, fullySuccessful bool) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(duration.Seconds())
	if fullySuccessful {
		m.lastSuccessfulTick.Set(float64(end.UnixNano()) / 1e9)
	}
}
