// Package perfc traces performance of the public dsal entry points.
//
// Each façade function opens a span on entry and closes it on exit; the
// spans feed Prometheus counters and histograms. Tracing is off until
// Enable installs the collectors on a registry, and every call is a
// cheap no-op while disabled.
package perfc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Function tags for the traced entry points.
const (
	OpInit      = "init"
	OpFini      = "fini"
	OpObjCreate = "obj_create"
	OpObjDelete = "obj_delete"
	OpObjGetID  = "obj_get_id"
	OpObjOpen   = "obj_open"
	OpObjClose  = "obj_close"
	OpIOInit    = "io_op_init"
	OpIOSubmit  = "io_op_submit"
	OpIOWait    = "io_op_wait"
	OpIOFini    = "io_op_fini"
	OpPRead     = "pread"
	OpPWrite    = "pwrite"
	OpResize    = "resize"
	OpGetBSize  = "get_bsize"
)

var (
	enabled atomic.Bool

	mu        sync.Mutex
	durations *prometheus.HistogramVec
	ioBytes   *prometheus.CounterVec
)

// Enable installs the collectors on reg and turns tracing on.
func Enable(reg prometheus.Registerer) error {
	mu.Lock()
	defer mu.Unlock()

	if durations == nil {
		durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsal",
			Name:      "op_duration_seconds",
			Help:      "Latency of dsal entry points.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
		}, []string{"op", "status"})

		ioBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsal",
			Name:      "io_bytes_total",
			Help:      "Bytes moved through pread/pwrite.",
		}, []string{"op"})
	}

	if err := reg.Register(durations); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := reg.Register(ioBytes); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}

	enabled.Store(true)
	return nil
}

// Disable turns tracing back off. Collectors stay registered.
func Disable() {
	enabled.Store(false)
}

// Span is an in-flight trace of one entry point invocation.
type Span struct {
	op    string
	start time.Time
}

// Begin opens a span for op. Returns a no-op span while tracing is off.
func Begin(op string) Span {
	if !enabled.Load() {
		return Span{}
	}
	return Span{op: op, start: time.Now()}
}

// End closes the span, recording duration and final status.
func (s Span) End(err error) {
	s.EndSized(err, 0)
}

// EndSized closes the span and additionally accounts transferred bytes.
func (s Span) EndSized(err error, bytes int) {
	if s.op == "" || !enabled.Load() {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	durations.WithLabelValues(s.op, status).Observe(time.Since(s.start).Seconds())
	if bytes > 0 && err == nil {
		ioBytes.WithLabelValues(s.op).Add(float64(bytes))
	}
}
