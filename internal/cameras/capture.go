package cameras

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/metrics"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// CaptureParams override the capture defaults. Zero fields fall back to
// the camera's preset, then to four buffers at S400 with frame dropping.
type CaptureParams struct {
	Buffers    int   `json:"buffers,omitempty" minimum:"0" maximum:"256" doc:"Number of frame buffers"`
	DropFrames *bool `json:"drop_frames,omitempty" doc:"Recycle the oldest frame when the ring is full"`
	Speed      int   `json:"speed,omitempty" enum:"0,100,200,400,800,1600,3200" doc:"ISO speed in Mb/s"`
}

// SessionInfo describes a running capture.
type SessionInfo struct {
	ID             string             `json:"id" format:"uuid"`
	CameraID       string             `json:"camera_id"`
	Started        time.Time          `json:"started"`
	Buffers        int                `json:"buffers"`
	DropFrames     bool               `json:"drop_frames"`
	Speed          int                `json:"speed"`
	Channel        int                `json:"channel"`
	BandwidthUnits uint32             `json:"bandwidth_units"`
	Geometry       iidc.FrameGeometry `json:"geometry"`
	Stats          iidc.CaptureStats  `json:"stats"`
}

type session struct {
	id       string
	cameraID string
	capture  *iidc.Capture
	started  time.Time
}

func (ss *session) info() SessionInfo {
	cfg := ss.capture.Config()
	return SessionInfo{
		ID:             ss.id,
		CameraID:       ss.cameraID,
		Started:        ss.started,
		Buffers:        cfg.Buffers,
		DropFrames:     cfg.DropFrames,
		Speed:          cfg.Speed.Mbps(),
		Channel:        ss.capture.Channel(),
		BandwidthUnits: ss.capture.BandwidthUnits(),
		Geometry:       ss.capture.Geometry(),
		Stats:          ss.capture.Stats(),
	}
}

// StartCapture sets up a ring for the camera's current mode and starts
// transmission.
func (s *Service) StartCapture(id string, params CaptureParams) (SessionInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	if params.Buffers < 0 {
		return SessionInfo{}, NewError(ErrCodeInvalidParams, "buffers must not be negative", nil)
	}
	s.captureDefaults(id, &params)
	cfg := iidc.DefaultCaptureConfig()
	if params.Buffers > 0 {
		cfg.Buffers = params.Buffers
	}
	if params.DropFrames != nil {
		cfg.DropFrames = *params.DropFrames
	}
	if params.Speed != 0 {
		if cfg.Speed, err = iidc.ParseIsoSpeed(params.Speed); err != nil {
			return SessionInfo{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return SessionInfo{}, NewError(ErrCodeCaptureActive, "camera is already capturing", nil)
	}

	sessionID := uuid.NewString()
	cfg.Notify = s.notifier(m.id, sessionID)
	capture, err := m.cam.SetupCapture(cfg)
	if err != nil {
		return SessionInfo{}, err
	}
	if err := m.cam.StartIsoTransmission(); err != nil {
		_ = capture.Release()
		return SessionInfo{}, err
	}
	m.session = &session{id: sessionID, cameraID: m.id, capture: capture, started: time.Now()}

	s.logger.Info("Capture started",
		"camera", m.id,
		"session_id", sessionID,
		"channel", capture.Channel(),
		"buffers", cfg.Buffers,
		"speed", cfg.Speed.String())
	s.publishIso(m)
	return m.session.info(), nil
}

// StopCapture stops transmission and releases the ring.
func (s *Service) StopCapture(id string) (SessionInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return SessionInfo{}, NewError(ErrCodeCaptureInactive, "camera is not capturing", nil)
	}
	info := s.stopLocked(m)
	return info, nil
}

func (s *Service) stopLocked(m *managed) SessionInfo {
	ss := m.session
	if err := m.cam.StopIsoTransmission(); err != nil {
		s.logger.Warn("Failed to stop transmission", "camera", m.id, "error", err)
	}
	info := ss.info()
	if err := ss.capture.Release(); err != nil {
		s.logger.Warn("Failed to release capture", "camera", m.id, "error", err)
	}
	m.session = nil

	s.logger.Info("Capture stopped",
		"camera", m.id,
		"session_id", ss.id,
		"frames", info.Stats.Frames,
		"dropped", info.Stats.Dropped,
		"overruns", info.Stats.Overruns)
	s.publishIso(m)
	return info
}

func (s *Service) publishIso(m *managed) {
	st := m.cam.IsoState()
	ev := events.IsoStateChangedEvent{
		CameraID:  m.id,
		State:     st.State.String(),
		Channel:   st.Channel,
		Speed:     st.Speed.Mbps(),
		Timestamp: time.Now(),
	}
	if m.session != nil {
		ev.SessionID = m.session.id
		ev.Bandwidth = m.session.capture.BandwidthUnits()
	}
	s.updateIsoMetrics(m)
	s.publish(ev)
}

// notifier runs on the packet delivery goroutine and must not block.
func (s *Service) notifier(cameraID, sessionID string) func(iidc.CaptureEvent) {
	return func(ev iidc.CaptureEvent) {
		metrics.ObserveCaptureEvent(cameraID, ev.Kind)
		var reason string
		switch ev.Kind {
		case iidc.EventFrameFilled:
			if s.frameEvents {
				s.publish(events.FrameCapturedEvent{
					CameraID:  cameraID,
					SessionID: sessionID,
					Sequence:  ev.Sequence,
					Timestamp: ev.Time,
				})
			}
			return
		case iidc.EventFrameDropped:
			reason = events.LostDropped
		case iidc.EventOverrun:
			reason = events.LostOverrun
		case iidc.EventResync:
			reason = events.LostResync
		default:
			return
		}
		s.publish(events.FrameLostEvent{
			CameraID:  cameraID,
			SessionID: sessionID,
			Sequence:  ev.Sequence,
			Reason:    reason,
			Timestamp: ev.Time,
		})
	}
}

// Session returns the running capture of a camera.
func (s *Service) Session(id string) (SessionInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return SessionInfo{}, NewError(ErrCodeCaptureInactive, "camera is not capturing", nil)
	}
	return m.session.info(), nil
}

// CaptureStats returns the ring counters of every running capture.
func (s *Service) CaptureStats() map[string]iidc.CaptureStats {
	out := make(map[string]iidc.CaptureStats)
	for _, m := range s.all() {
		m.mu.Lock()
		if m.session != nil {
			out[m.id] = m.session.capture.Stats()
		}
		m.mu.Unlock()
	}
	return out
}

// Snapshot is a copy of one captured frame with what a converter needs.
type Snapshot struct {
	Data      []byte
	Geometry  iidc.FrameGeometry
	Filter    iidc.ColorFilter
	Bits      uint32
	Sequence  uint64
	Timestamp time.Time
}

// Snapshot returns the newest frame of a running capture, waiting for one
// when the ring is empty. Older filled frames are returned to the ring.
func (s *Service) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	m, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return Snapshot{}, NewError(ErrCodeCaptureInactive, "camera is not capturing", nil)
	}
	capture := m.session.capture
	g := capture.Geometry()
	snap := Snapshot{Geometry: g}
	switch g.ColorCoding {
	case iidc.ColorRaw8, iidc.ColorRaw16:
		if g.Mode.IsScalable() {
			if snap.Filter, err = m.cam.Format7ColorFilter(g.Mode); err != nil {
				m.mu.Unlock()
				return Snapshot{}, err
			}
		}
	}
	switch g.ColorCoding {
	case iidc.ColorMono16, iidc.ColorMono16S, iidc.ColorRGB16, iidc.ColorRGB16S, iidc.ColorRaw16:
		if snap.Bits, err = m.cam.DataDepth(); err != nil {
			m.mu.Unlock()
			return Snapshot{}, err
		}
	}
	m.mu.Unlock()

	f, err := newestFrame(ctx, capture)
	if err != nil {
		if errors.Is(err, iidc.ErrCaptureNotSet) {
			return Snapshot{}, NewError(ErrCodeCaptureInactive, "capture stopped", err)
		}
		return Snapshot{}, err
	}
	if s.afterDequeue != nil {
		s.afterDequeue()
	}
	// nil when the capture was stopped after the dequeue; a payload taken
	// before that stays mapped until the frame is handed back
	data := f.Data()
	if data == nil {
		_ = capture.DoneWithBuffer(f)
		return Snapshot{}, NewError(ErrCodeCaptureInactive, "capture stopped", nil)
	}
	snap.Data = make([]byte, len(data))
	copy(snap.Data, data)
	snap.Sequence = f.Sequence
	snap.Timestamp = f.Timestamp
	_ = capture.DoneWithBuffer(f)
	return snap, nil
}

func newestFrame(ctx context.Context, c *iidc.Capture) (*iidc.Frame, error) {
	var latest *iidc.Frame
	for {
		f, err := c.Capture(ctx, iidc.CapturePoll)
		if errors.Is(err, iidc.ErrNoFrame) {
			break
		}
		if err != nil {
			if latest != nil {
				_ = c.DoneWithBuffer(latest)
			}
			return nil, err
		}
		if latest != nil {
			_ = c.DoneWithBuffer(latest)
		}
		latest = f
	}
	if latest != nil {
		return latest, nil
	}
	return c.Capture(ctx, iidc.CaptureWait)
}
