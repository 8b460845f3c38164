package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-attach-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	AttachBuckets   []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskStolenTotal     *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec

	threadsDeclared   *prom.GaugeVec
	entryTasksTotal   *prom.CounterVec
	attachWaitSeconds *prom.HistogramVec
	bootstrapFailures *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "attachpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	attachBuckets := opts.AttachBuckets
	if len(attachBuckets) == 0 {
		attachBuckets = prom.ExponentialBuckets(0.0001, 4, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"pool"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"pool"})
	stolenVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_stolen_total",
		Help:      "Total number of tasks taken from a peer worker's deque.",
	}, []string{"pool"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"pool", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current injector queue depth.",
	}, []string{"pool"})
	threadsVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "threads_declared",
		Help:      "Logical threads declared by the pool.",
	}, []string{"pool"})
	entryVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "entry_tasks_delivered_total",
		Help:      "Entry tasks handed to a parked worker.",
	}, []string{"pool"})
	attachVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "attach_wait_seconds",
		Help:      "Time a worker spent parked before receiving its entry task.",
		Buckets:   attachBuckets,
	}, []string{"pool"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "bootstrap_failures_total",
		Help:      "Bootstrap failures by phase.",
	}, []string{"pool", "phase"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if stolenVec, err = registerCollector(reg, stolenVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if threadsVec, err = registerCollector(reg, threadsVec); err != nil {
		return nil, err
	}
	if entryVec, err = registerCollector(reg, entryVec); err != nil {
		return nil, err
	}
	if attachVec, err = registerCollector(reg, attachVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskStolenTotal:     stolenVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		threadsDeclared:     threadsVec,
		entryTasksTotal:     entryVec,
		attachWaitSeconds:   attachVec,
		bootstrapFailures:   failureVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(poolID string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordTaskStolen records a successful steal.
func (m *MetricsExporter) RecordTaskStolen(poolID string) {
	if m == nil {
		return
	}
	m.taskStolenTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(poolID string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func (m *MetricsExporter) RecordThreadsDeclared(poolID string, n int) {
	if m == nil {
		return
	}
	m.threadsDeclared.WithLabelValues(normalizeLabel(poolID, "unknown")).Set(float64(n))
}

func (m *MetricsExporter) RecordEntryTaskDelivered(poolID string) {
	if m == nil {
		return
	}
	m.entryTasksTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordAttach records how long a worker waited for its entry task.
func (m *MetricsExporter) RecordAttach(poolID string, wait time.Duration) {
	if m == nil {
		return
	}
	m.attachWaitSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(wait.Seconds())
}

// RecordBootstrapFailure counts a failed bootstrap phase.
func (m *MetricsExporter) RecordBootstrapFailure(poolID string, phase core.Phase) {
	if m == nil {
		return
	}
	m.bootstrapFailures.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(string(phase), "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
