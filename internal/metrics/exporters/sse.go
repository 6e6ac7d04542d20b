package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/metrics"
)

// EventPublisher publishes events to the bus.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes the cached capture metrics as
// CaptureStatsEvent for the SSE stream.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates an exporter publishing once per second.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: time.Second,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the loop and waits for it. It is safe to call more than once
// and before Start.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	now := time.Now()
	for camera, m := range metrics.GetAllCaptureMetrics() {
		s.eventBus.Publish(events.CaptureStatsEvent{
			CameraID:   camera,
			FPS:        m.FPS,
			Frames:     m.Stats.Frames,
			Dropped:    m.Stats.Dropped,
			Overruns:   m.Stats.Overruns,
			Resyncs:    m.Stats.Resyncs,
			Filled:     m.Stats.Filled,
			CheckedOut: m.Stats.CheckedOut,
			Timestamp:  now,
		})
	}
}

// GetEventTypes returns the SSE event names this exporter produces.
func GetEventTypes() map[string]any {
	return map[string]any{
		"capture-stats": events.CaptureStatsEvent{},
	}
}
