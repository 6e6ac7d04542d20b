// Package metrics provides Prometheus metrics for capture rings, ISO
// sessions and register traffic.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

const namespace = "iidcnode"

var (
	captureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames committed to the capture ring",
	}, []string{"camera"})

	captureDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "dropped_frames_total",
		Help:      "Filled frames recycled before they were dequeued",
	}, []string{"camera"})

	captureOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "overruns_total",
		Help:      "Frames discarded because no slot was free",
	}, []string{"camera"})

	captureResyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "resyncs_total",
		Help:      "Partial frames restarted by an early sync packet",
	}, []string{"camera"})

	captureFilled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "buffers_filled",
		Help:      "Buffers waiting to be dequeued",
	}, []string{"camera"})

	captureCheckedOut = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "buffers_checked_out",
		Help:      "Buffers held by the application",
	}, []string{"camera"})

	captureFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "fps",
		Help:      "Measured frame rate over the last collection interval",
	}, []string{"camera"})

	// Local cache for the SSE exporter.
	captureCache   = make(map[string]*CaptureMetrics)
	captureCacheMu sync.RWMutex
)

// CaptureMetrics holds the last collected values for one camera.
type CaptureMetrics struct {
	FPS   float64
	Stats iidc.CaptureStats
}

// ObserveCaptureEvent counts one ring event.
func ObserveCaptureEvent(camera string, kind iidc.CaptureEventKind) {
	switch kind {
	case iidc.EventFrameFilled:
		captureFrames.WithLabelValues(camera).Inc()
	case iidc.EventFrameDropped:
		captureDropped.WithLabelValues(camera).Inc()
	case iidc.EventOverrun:
		captureOverruns.WithLabelValues(camera).Inc()
	case iidc.EventResync:
		captureResyncs.WithLabelValues(camera).Inc()
	}
}

// SetCaptureStats records a ring snapshot and the frame rate measured since
// the previous one.
func SetCaptureStats(camera string, st iidc.CaptureStats, fps float64) {
	captureFilled.WithLabelValues(camera).Set(float64(st.Filled))
	captureCheckedOut.WithLabelValues(camera).Set(float64(st.CheckedOut))
	captureFPS.WithLabelValues(camera).Set(fps)

	captureCacheMu.Lock()
	captureCache[camera] = &CaptureMetrics{FPS: fps, Stats: st}
	captureCacheMu.Unlock()
}

// DeleteCaptureMetrics removes all capture metrics for a camera.
func DeleteCaptureMetrics(camera string) {
	captureFrames.DeleteLabelValues(camera)
	captureDropped.DeleteLabelValues(camera)
	captureOverruns.DeleteLabelValues(camera)
	captureResyncs.DeleteLabelValues(camera)
	captureFilled.DeleteLabelValues(camera)
	captureCheckedOut.DeleteLabelValues(camera)
	captureFPS.DeleteLabelValues(camera)

	captureCacheMu.Lock()
	delete(captureCache, camera)
	captureCacheMu.Unlock()
}

// GetCaptureMetrics returns the last collected values for a camera, or nil.
func GetCaptureMetrics(camera string) *CaptureMetrics {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	if m, ok := captureCache[camera]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllCaptureMetrics returns the last collected values of every camera.
func GetAllCaptureMetrics() map[string]*CaptureMetrics {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	result := make(map[string]*CaptureMetrics, len(captureCache))
	for id, m := range captureCache {
		dup := *m
		result[id] = &dup
	}
	return result
}
