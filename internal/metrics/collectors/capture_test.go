package collectors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/iidcnode/internal/metrics"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

type fakeSource struct {
	mu    sync.Mutex
	stats map[string]iidc.CaptureStats
}

func (f *fakeSource) CaptureStats() map[string]iidc.CaptureStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]iidc.CaptureStats, len(f.stats))
	for k, v := range f.stats {
		out[k] = v
	}
	return out
}

func (f *fakeSource) set(id string, st iidc.CaptureStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[id] = st
}

func (f *fakeSource) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stats, id)
}

func TestCaptureCollectorFPS(t *testing.T) {
	src := &fakeSource{stats: map[string]iidc.CaptureStats{}}
	c := NewCaptureCollector(src)
	id := "collector-fps"
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src.set(id, iidc.CaptureStats{Buffers: 4, Frames: 100})
	c.collect(t0)
	if m := metrics.GetCaptureMetrics(id); m == nil || m.FPS != 0 {
		t.Fatalf("first sample %+v, want fps 0", m)
	}

	src.set(id, iidc.CaptureStats{Buffers: 4, Frames: 160, Filled: 1})
	c.collect(t0.Add(2 * time.Second))
	m := metrics.GetCaptureMetrics(id)
	if m == nil || m.FPS != 30 || m.Stats.Filled != 1 {
		t.Fatalf("second sample %+v, want fps 30", m)
	}

	// a new session restarts the counter
	src.set(id, iidc.CaptureStats{Buffers: 4, Frames: 5})
	c.collect(t0.Add(3 * time.Second))
	if m := metrics.GetCaptureMetrics(id); m.FPS != 0 {
		t.Fatalf("fps %v after counter reset", m.FPS)
	}

	src.remove(id)
	c.collect(t0.Add(4 * time.Second))
	if metrics.GetCaptureMetrics(id) != nil {
		t.Fatal("metrics kept for a capture that went away")
	}
}

func TestCaptureCollectorStartStop(t *testing.T) {
	src := &fakeSource{stats: map[string]iidc.CaptureStats{"collector-loop": {Buffers: 2}}}
	c := NewCaptureCollector(src)
	c.interval = 10 * time.Millisecond

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for metrics.GetCaptureMetrics("collector-loop") == nil {
		if time.Now().After(deadline) {
			t.Fatal("collector never sampled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	metrics.DeleteCaptureMetrics("collector-loop")
}
