package planner

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes one planner operation outcome. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// NoopMetricsRecorder discards observations.
type NoopMetricsRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

var (
	expvarOnce     sync.Once
	expvarOps      *expvar.Map
	expvarFailures *expvar.Map
	expvarLatency  *expvar.Map
)

// ExpvarMetricsRecorder publishes per-operation counters and cumulative
// latency under the process expvar handler. All instances share the same
// published maps since expvar names are process-global.
type ExpvarMetricsRecorder struct{}

// NewExpvarMetricsRecorder publishes the expvar maps on first use.
func NewExpvarMetricsRecorder() *ExpvarMetricsRecorder {
	expvarOnce.Do(func() {
		expvarOps = expvar.NewMap("craftplan_ops_total")
		expvarFailures = expvar.NewMap("craftplan_ops_failed_total")
		expvarLatency = expvar.NewMap("craftplan_op_latency_us_total")
	})
	return &ExpvarMetricsRecorder{}
}

// Observe implements MetricsRecorder.
func (*ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	expvarOps.Add(operation, 1)
	if !success {
		expvarFailures.Add(operation, 1)
	}
	expvarLatency.Add(operation, duration.Microseconds())
}

// PrometheusMetricsRecorder exports operation counters and a latency
// histogram through a prometheus registry.
type PrometheusMetricsRecorder struct {
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the planner collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "craftplan_operations_total",
			Help: "Planner operations by outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "craftplan_operation_duration_seconds",
			Help:    "Planner operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.ops, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register planner metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.ops.WithLabelValues(operation, outcome).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}
