package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions  prometheus.Gauge
	snapshotBytes   prometheus.Histogram
	historyDuration prometheus.Histogram

	actionDispatchTotal    *prometheus.CounterVec
	actionDispatchDuration *prometheus.HistogramVec
	actionErrorsTotal      *prometheus.CounterVec

	instructionTotal    *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec
	instructionTurns    prometheus.Histogram
	modelCallTotal      *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_browser_sessions",
					Help: "Current open browser session count.",
				},
			),
			snapshotBytes: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "snapshot_bytes",
					Help:    "Size of element tree snapshots in bytes.",
					Buckets: prometheus.ExponentialBuckets(256, 4, 8),
				},
			),
			historyDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "history_write_duration_seconds",
					Help:    "Run history write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			actionDispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "action_dispatch_total",
					Help: "Total dispatched browser actions by action and status.",
				},
				[]string{"action", "status"},
			),
			actionDispatchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "action_dispatch_duration_seconds",
					Help:    "Browser action dispatch duration in seconds by action.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"action"},
			),
			actionErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "action_errors_total",
					Help: "Total failed browser actions by action.",
				},
				[]string{"action"},
			),
			instructionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "instruction_total",
					Help: "Total instruction runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			instructionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "instruction_duration_seconds",
					Help:    "Instruction run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			instructionTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "instruction_turns",
					Help:    "Model turns consumed per instruction run.",
					Buckets: prometheus.LinearBuckets(1, 2, 10),
				},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_call_total",
					Help: "Total model invocations by provider and status.",
				},
				[]string{"provider", "status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.snapshotBytes,
			m.historyDuration,
			m.actionDispatchTotal,
			m.actionDispatchDuration,
			m.actionErrorsTotal,
			m.instructionTotal,
			m.instructionDuration,
			m.instructionTurns,
			m.modelCallTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSnapshotSize(bytes int) {
	m := getMetrics()
	m.snapshotBytes.Observe(float64(bytes))
}

func RecordHistoryWrite(duration time.Duration) {
	m := getMetrics()
	m.historyDuration.Observe(duration.Seconds())
}

func RecordActionDispatch(action string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.actionDispatchTotal.WithLabelValues(action, status).Inc()
	m.actionDispatchDuration.WithLabelValues(action).Observe(duration.Seconds())
	if !success {
		m.actionErrorsTotal.WithLabelValues(action).Inc()
	}
}

func RecordInstruction(provider string, duration time.Duration, turns int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.instructionTotal.WithLabelValues(provider, status).Inc()
	m.instructionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.instructionTurns.Observe(float64(turns))
}

func RecordModelCall(provider string, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.modelCallTotal.WithLabelValues(provider, status).Inc()
}
