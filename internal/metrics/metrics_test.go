// ABOUTME: Tests for the metrics collectors
// ABOUTME: Gathers from private registries and checks exported values
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dubcast/dubcast-go/pkg/dubcast"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSession struct {
	status dubcast.Status
	active int
	queued time.Duration
}

func (f *fakeSession) Status() dubcast.Status { return f.status }
func (f *fakeSession) Active() int            { return f.active }
func (f *fakeSession) Queued() time.Duration  { return f.queued }

func gaugeValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			if g := m.GetGauge(); g != nil {
				out[name] = g.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				out[name] = c.GetValue()
			}
		}
	}
	return out
}

func TestSessionCollector(t *testing.T) {
	src := &fakeSession{
		status: dubcast.Status{
			State: dubcast.StateLoading,
			Stats: dubcast.Stats{Chunks: 7, Bytes: 4096, Scheduled: 6, DecodeErrors: 1, Resyncs: 2},
		},
		active: 3,
		queued: 1500 * time.Millisecond,
	}

	reg := prometheus.NewRegistry()
	if err := RegisterSession(reg, src); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	values := gaugeValues(t, reg)
	expected := map[string]float64{
		"dubcast_stream_state{state=loading}": 1,
		"dubcast_stream_state{state=idle}":    0,
		"dubcast_stream_chunks":               7,
		"dubcast_stream_bytes":                4096,
		"dubcast_stream_scheduled_chunks":     6,
		"dubcast_stream_decode_errors":        1,
		"dubcast_stream_resyncs":              2,
		"dubcast_stream_active_voices":        3,
		"dubcast_stream_queued_seconds":       1.5,
	}
	for name, want := range expected {
		got, ok := values[name]
		if !ok {
			t.Errorf("missing metric %s", name)
			continue
		}
		if got != want {
			t.Errorf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestRegisterSessionTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSession{}
	if err := RegisterSession(reg, src); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := RegisterSession(reg, src); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestBackendCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, err := NewBackend(reg)
	if err != nil {
		t.Fatalf("failed to create backend metrics: %v", err)
	}

	b.Streams.WithLabelValues("http").Inc()
	b.Frames.Add(3)
	b.Bytes.Add(1024)

	values := gaugeValues(t, reg)
	if values["dubcast_backend_streams_total{transport=http}"] != 1 {
		t.Errorf("unexpected streams %v", values)
	}
	if values["dubcast_backend_frames_sent_total"] != 3 {
		t.Errorf("expected 3 frames, got %v", values["dubcast_backend_frames_sent_total"])
	}
}

func TestHandlerServesText(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, _ := NewBackend(reg)
	b.Frames.Inc()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "dubcast_backend_frames_sent_total 1") {
		t.Errorf("expected frames counter in output, got:\n%s", body)
	}
}
