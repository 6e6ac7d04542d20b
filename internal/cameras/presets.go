package cameras

import (
	"fmt"
	"time"

	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// ApplyPreset applies a stored preset to a camera.
func (s *Service) ApplyPreset(id, name string) error {
	if s.presets == nil {
		return NewError(ErrCodePresetError, "no preset store configured", nil)
	}
	p, err := s.presets.Get(name)
	if err != nil {
		return NewError(ErrCodePresetError, "apply preset", err)
	}
	m, err := s.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return NewError(ErrCodeCaptureActive, "stop the capture before applying a preset", nil)
	}
	return s.applyPresetLocked(m, p)
}

// ReloadPresets installs a new preset set and re-applies the bound preset
// of every idle camera. Capturing cameras keep their configuration until
// the next apply.
func (s *Service) ReloadPresets(ps config.Presets) {
	if s.presets == nil {
		return
	}
	s.presets.Replace(ps)
	for _, m := range s.all() {
		p, ok := ps.ForCamera(m.id)
		if !ok {
			continue
		}
		m.mu.Lock()
		if m.session != nil {
			s.logger.Info("Camera busy, preset not re-applied", "camera", m.id, "preset", p.Name)
		} else {
			_ = s.applyPresetLocked(m, p)
		}
		m.mu.Unlock()
	}
}

func (s *Service) applyPresetLocked(m *managed, p config.Preset) error {
	err := s.configure(m, p)
	ev := events.PresetAppliedEvent{CameraID: m.id, Preset: p.Name, Timestamp: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		s.logger.Warn("Failed to apply preset", "camera", m.id, "preset", p.Name, "error", err)
	} else {
		m.preset = p.Name
		s.logger.Info("Applied preset", "camera", m.id, "preset", p.Name)
	}
	s.publish(ev)
	s.updateIsoMetrics(m)
	if err != nil {
		return NewError(ErrCodePresetError, fmt.Sprintf("apply preset %s", p.Name), err)
	}
	return nil
}

func (s *Service) configure(m *managed, p config.Preset) error {
	if err := configureVideo(m.cam, p); err != nil {
		return err
	}
	for _, name := range p.SortedFeatures() {
		f, err := iidc.ParseFeature(name)
		if err != nil {
			return err
		}
		if err := s.setFeatureLocked(m, f, p.Features[name]); err != nil {
			return fmt.Errorf("feature %s: %w", name, err)
		}
	}
	return nil
}

// captureDefaults fills zero fields of cfg from the camera's preset.
func (s *Service) captureDefaults(id string, cfg *CaptureParams) {
	if s.presets == nil {
		return
	}
	p, ok := s.presets.ForCamera(id)
	if !ok {
		return
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = p.Buffers
	}
	if cfg.Speed == 0 {
		cfg.Speed = p.Speed
	}
	if cfg.DropFrames == nil && p.DropFrames != nil {
		drop := *p.DropFrames
		cfg.DropFrames = &drop
	}
}
