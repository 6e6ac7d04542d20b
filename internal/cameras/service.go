// Package cameras owns the open cameras of a node: it applies presets,
// runs capture sessions and reports what happens on the event bus and in
// the metrics.
package cameras

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/smazurov/iidcnode/internal/metrics"
	"github.com/smazurov/iidcnode/pkg/iidc"
	"github.com/smazurov/iidcnode/pkg/iidc/simbus"
)

// Publisher receives service events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configure a Service.
type Options struct {
	// Transport and Devices name a real bus. When Transport is nil the
	// service builds a simulated bus with SimCameras cameras.
	Transport  iidc.Transport
	Devices    []iidc.DeviceInfo
	SimCameras int

	Presets  *config.PresetStore
	EventBus Publisher
	// FrameEvents publishes a FrameCapturedEvent for every frame.
	FrameEvents bool
}

// Service manages every camera found on the bus.
type Service struct {
	logger      *slog.Logger
	bus         iidc.Transport
	devices     []iidc.DeviceInfo
	sim         []*simbus.Camera
	presets     *config.PresetStore
	eventBus    Publisher
	frameEvents bool
	// afterDequeue runs in Snapshot between dequeuing and copying a frame.
	afterDequeue func()

	mu      sync.RWMutex
	cameras map[string]*managed
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type managed struct {
	id  string
	cam *iidc.Camera

	mu      sync.Mutex
	preset  string
	session *session
}

// CameraID formats a GUID as the identifier used by the API, presets and
// metrics.
func CameraID(guid uint64) string {
	return fmt.Sprintf("%016x", guid)
}

// New builds a service. Cameras are opened by Start.
func New(opts Options) *Service {
	s := &Service{
		logger:      logging.GetLogger("cameras"),
		presets:     opts.Presets,
		eventBus:    opts.EventBus,
		frameEvents: opts.FrameEvents,
		cameras:     make(map[string]*managed),
	}
	if opts.Transport != nil {
		s.bus = opts.Transport
		s.devices = opts.Devices
		return s
	}

	bus := simbus.New()
	for i := 0; i < opts.SimCameras; i++ {
		c := simbus.NewCamera(uint16(0xFFC0+i), simbus.With1394b())
		bus.Attach(c)
		s.sim = append(s.sim, c)
		s.devices = append(s.devices, c.DeviceInfo())
	}
	s.bus = bus
	return s
}

// Start opens every device and applies its preset. A camera that fails to
// open is logged and skipped. Simulated cameras start generating frames
// until ctx is done or Close is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	bus := metrics.InstrumentTransport(s.bus)
	opened := 0
	for _, info := range s.devices {
		id := CameraID(info.GUID)
		cam, err := iidc.Open(bus, info, iidc.WithLogger(s.logger.With("camera", id)))
		if err != nil {
			s.logger.Warn("Failed to open camera", "camera", id, "node", info.Node, "error", err)
			continue
		}
		m := &managed{id: id, cam: cam}
		s.mu.Lock()
		s.cameras[id] = m
		s.mu.Unlock()
		opened++

		s.logger.Info("Opened camera",
			"camera", id,
			"vendor", info.Vendor,
			"model", info.Model,
			"iidc", cam.Version().String())
		s.publish(events.CameraOpenedEvent{
			CameraID:  id,
			Vendor:    info.Vendor,
			Model:     info.Model,
			Version:   cam.Version().String(),
			Timestamp: time.Now(),
		})

		m.mu.Lock()
		if s.presets != nil {
			if p, ok := s.presets.ForCamera(id); ok {
				_ = s.applyPresetLocked(m, p)
			}
		}
		s.updateIsoMetrics(m)
		m.mu.Unlock()
	}

	for _, c := range s.sim {
		s.wg.Add(1)
		go func(c *simbus.Camera) {
			defer s.wg.Done()
			_ = c.Run(ctx)
		}(c)
	}

	if opened == 0 && len(s.devices) > 0 {
		return fmt.Errorf("none of %d cameras could be opened", len(s.devices))
	}
	return nil
}

// Close stops every capture and closes the cameras.
func (s *Service) Close() error {
	s.mu.Lock()
	cams := make([]*managed, 0, len(s.cameras))
	for _, m := range s.cameras {
		cams = append(cams, m)
	}
	s.cameras = make(map[string]*managed)
	cancel := s.cancel
	s.mu.Unlock()

	for _, m := range cams {
		m.mu.Lock()
		if m.session != nil {
			s.stopLocked(m)
		}
		if err := m.cam.Close(); err != nil {
			s.logger.Warn("Failed to close camera", "camera", m.id, "error", err)
		}
		m.mu.Unlock()
		metrics.DeleteIsoMetrics(m.id)
		s.publish(events.CameraClosedEvent{CameraID: m.id, Timestamp: time.Now()})
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Service) get(id string) (*managed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cameras[id]
	if !ok {
		return nil, NewError(ErrCodeCameraNotFound, fmt.Sprintf("camera %s", id), nil)
	}
	return m, nil
}

func (s *Service) all() []*managed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*managed, 0, len(s.cameras))
	for _, m := range s.cameras {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Service) publish(ev events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ev)
	}
}

// CameraInfo summarizes one camera.
type CameraInfo struct {
	ID            string            `json:"id"`
	Vendor        string            `json:"vendor"`
	Model         string            `json:"model"`
	Node          uint16            `json:"node"`
	Version       string            `json:"version"`
	Capabilities  iidc.Capabilities `json:"capabilities"`
	Mode          string            `json:"mode,omitempty"`
	Framerate     string            `json:"framerate,omitempty"`
	OperationMode string            `json:"operation_mode,omitempty"`
	Preset        string            `json:"preset,omitempty"`
	IsoState      string            `json:"iso_state"`
	Session       *SessionInfo      `json:"session,omitempty"`
}

// List describes every open camera, ordered by ID.
func (s *Service) List() []CameraInfo {
	cams := s.all()
	out := make([]CameraInfo, 0, len(cams))
	for _, m := range cams {
		out = append(out, s.describe(m))
	}
	return out
}

// Get describes one camera.
func (s *Service) Get(id string) (CameraInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return CameraInfo{}, err
	}
	return s.describe(m), nil
}

func (s *Service) describe(m *managed) CameraInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.cam.Info()
	ci := CameraInfo{
		ID:           m.id,
		Vendor:       info.Vendor,
		Model:        info.Model,
		Node:         info.Node,
		Version:      m.cam.Version().String(),
		Capabilities: m.cam.Capabilities(),
		Preset:       m.preset,
		IsoState:     m.cam.IsoState().State.String(),
	}
	if mode, err := m.cam.VideoMode(); err == nil {
		ci.Mode = mode.String()
		if !mode.IsScalable() {
			if rate, err := m.cam.Framerate(); err == nil {
				ci.Framerate = rate.String()
			}
		}
	}
	if op, err := m.cam.OperationMode(); err == nil {
		ci.OperationMode = op.String()
	}
	if m.session != nil {
		si := m.session.info()
		ci.Session = &si
	}
	return ci
}

// Camera returns the driver handle for direct access by tools.
func (s *Service) Camera(id string) (*iidc.Camera, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return m.cam, nil
}

// Bandwidth returns the allocation units the camera's current mode needs.
func (s *Service) Bandwidth(id string) (uint32, error) {
	m, err := s.get(id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam.BandwidthUsage()
}

func (s *Service) updateIsoMetrics(m *managed) {
	var units uint32
	if m.session != nil {
		units = m.session.capture.BandwidthUnits()
	}
	metrics.SetIsoState(m.id, m.cam.IsoState(), units)
}
