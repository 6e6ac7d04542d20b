// Package collectors polls live capture rings into the metrics package.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/smazurov/iidcnode/internal/metrics"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// StatsSource reports the ring counters of every active capture, keyed by
// camera ID.
type StatsSource interface {
	CaptureStats() map[string]iidc.CaptureStats
}

// CaptureCollector samples capture statistics at a fixed interval and
// derives the frame rate from the frame counter.
type CaptureCollector struct {
	logger   *slog.Logger
	source   StatsSource
	interval time.Duration

	mu     sync.Mutex
	last   map[string]sample
	cancel context.CancelFunc
	done   chan struct{}
}

type sample struct {
	frames uint64
	at     time.Time
}

// NewCaptureCollector creates a collector over source.
func NewCaptureCollector(source StatsSource) *CaptureCollector {
	return &CaptureCollector{
		logger:   logging.GetLogger("metrics"),
		source:   source,
		interval: time.Second,
		last:     make(map[string]sample),
	}
}

// Start begins collecting.
func (c *CaptureCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

// Stop stops the collector and waits for the loop to exit.
func (c *CaptureCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

func (c *CaptureCollector) run(ctx context.Context) {
	defer close(c.done)
	c.logger.Debug("Starting capture metrics collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.collect(now)
		}
	}
}

func (c *CaptureCollector) collect(now time.Time) {
	stats := c.source.CaptureStats()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, st := range stats {
		fps := 0.0
		if prev, ok := c.last[id]; ok && st.Frames >= prev.frames {
			if dt := now.Sub(prev.at).Seconds(); dt > 0 {
				fps = float64(st.Frames-prev.frames) / dt
			}
		}
		c.last[id] = sample{frames: st.Frames, at: now}
		metrics.SetCaptureStats(id, st, fps)
	}
	for id := range c.last {
		if _, ok := stats[id]; !ok {
			delete(c.last, id)
			metrics.DeleteCaptureMetrics(id)
		}
	}
}
