// ABOUTME: Prometheus metrics for the player and the dev backend
// ABOUTME: Exposes session counters and serves them on /metrics
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dubcast/dubcast-go/pkg/dubcast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "dubcast"

// SessionSource is what the player collector reads on each scrape
type SessionSource interface {
	Status() dubcast.Status
	Active() int
	Queued() time.Duration
}

// sessionCollector reports the live state of one session
type sessionCollector struct {
	src SessionSource

	state        *prometheus.Desc
	chunks       *prometheus.Desc
	bytes        *prometheus.Desc
	scheduled    *prometheus.Desc
	decodeErrors *prometheus.Desc
	resyncs      *prometheus.Desc
	truncated    *prometheus.Desc
	active       *prometheus.Desc
	queued       *prometheus.Desc
}

var sessionStates = []dubcast.State{dubcast.StateIdle, dubcast.StateLoading, dubcast.StateError}

// RegisterSession registers collectors reading src
func RegisterSession(reg prometheus.Registerer, src SessionSource) error {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "stream", name), help, labels, nil)
	}

	c := &sessionCollector{
		src:          src,
		state:        desc("state", "1 for the current session state.", "state"),
		chunks:       desc("chunks", "Chunks received by the current stream."),
		bytes:        desc("bytes", "Payload bytes received by the current stream."),
		scheduled:    desc("scheduled_chunks", "Chunks scheduled for playback by the current stream."),
		decodeErrors: desc("decode_errors", "Chunks skipped because they failed to decode."),
		resyncs:      desc("resyncs", "Times the playback cursor fell behind the audio clock."),
		truncated:    desc("truncated_bytes", "Bytes of an incomplete final frame."),
		active:       desc("active_voices", "Voices pending or sounding."),
		queued:       desc("queued_seconds", "Scheduled audio ahead of the clock."),
	}

	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register session metrics: %w", err)
	}
	return nil
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.state, c.chunks, c.bytes, c.scheduled, c.decodeErrors, c.resyncs, c.truncated, c.active, c.queued} {
		ch <- d
	}
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Status()

	for _, s := range sessionStates {
		v := 0.0
		if st.State == s {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, string(s))
	}

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.chunks, float64(st.Stats.Chunks))
	gauge(c.bytes, float64(st.Stats.Bytes))
	gauge(c.scheduled, float64(st.Stats.Scheduled))
	gauge(c.decodeErrors, float64(st.Stats.DecodeErrors))
	gauge(c.resyncs, float64(st.Stats.Resyncs))
	gauge(c.truncated, float64(st.Stats.Truncated))
	gauge(c.active, float64(c.src.Active()))
	gauge(c.queued, c.src.Queued().Seconds())
}

// Backend counts what the dev backend serves
type Backend struct {
	Streams      *prometheus.CounterVec
	StreamErrors *prometheus.CounterVec
	Frames       prometheus.Counter
	Bytes        prometheus.Counter
	ActiveConns  prometheus.Gauge
}

// NewBackend creates and registers the backend counters
func NewBackend(reg prometheus.Registerer) (*Backend, error) {
	b := &Backend{
		Streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backend", Name: "streams_total",
			Help: "Streams opened, by transport.",
		}, []string{"transport"}),
		StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backend", Name: "stream_errors_total",
			Help: "Streams that failed, by stage.",
		}, []string{"stage"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backend", Name: "frames_sent_total",
			Help: "Frames written to clients.",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backend", Name: "bytes_sent_total",
			Help: "Payload bytes written to clients.",
		}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "backend", Name: "active_streams",
			Help: "Streams currently being served.",
		}),
	}

	for _, c := range []prometheus.Collector{b.Streams, b.StreamErrors, b.Frames, b.Bytes, b.ActiveConns} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register backend metrics: %w", err)
		}
	}
	return b, nil
}

// NewBackendUnregistered returns counters that are not exported anywhere
func NewBackendUnregistered() *Backend {
	b, _ := NewBackend(prometheus.NewRegistry())
	return b
}

// Handler serves the registry in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the returned server is shut down
func Serve(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}
