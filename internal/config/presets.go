package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// ErrPresetNotFound is returned for unknown preset names.
var ErrPresetNotFound = errors.New("preset not found")

// Feature control modes accepted in presets.
const (
	FeatureManual  = "manual"
	FeatureAuto    = "auto"
	FeatureOnePush = "one_push"
	FeatureOff     = "off"
)

// Trigger polarities accepted in presets.
const (
	PolarityLow  = "low"
	PolarityHigh = "high"
)

// FeatureSetting is the desired state of one camera feature. Value is the
// trigger mode number for the trigger and the target for temperature.
// Values carries the fields of white balance (bu, rv) and white shading
// (r, g, b).
type FeatureSetting struct {
	Mode     string   `toml:"mode,omitempty" json:"mode,omitempty" enum:"manual,auto,one_push,off"`
	Value    *uint32  `toml:"value,omitempty" json:"value,omitempty"`
	Values   []uint32 `toml:"values,omitempty" json:"values,omitempty"`
	Absolute *float64 `toml:"absolute,omitempty" json:"absolute,omitempty"`
	Polarity string   `toml:"polarity,omitempty" json:"polarity,omitempty" enum:"low,high"`
}

// Validate checks fs against the feature it is meant for.
func (fs FeatureSetting) Validate(f iidc.Feature) error {
	var errs []error
	switch fs.Mode {
	case "", FeatureManual, FeatureAuto, FeatureOnePush, FeatureOff:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", fs.Mode))
	}
	if fs.Value != nil && fs.Absolute != nil {
		errs = append(errs, errors.New("value and absolute are exclusive"))
	}
	want := 0
	switch f {
	case iidc.FeatureWhiteBalance:
		want = 2
	case iidc.FeatureWhiteShading:
		want = 3
	}
	if len(fs.Values) != 0 && len(fs.Values) != want {
		errs = append(errs, fmt.Errorf("%s takes %d values, got %d", f, want, len(fs.Values)))
	}
	switch fs.Polarity {
	case "":
	case PolarityLow, PolarityHigh:
		if f != iidc.FeatureTrigger {
			errs = append(errs, fmt.Errorf("polarity applies to the trigger only"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown polarity %q", fs.Polarity))
	}
	return errors.Join(errs...)
}

// ROISetting is a Format7 region of interest.
type ROISetting struct {
	ColorCoding string `toml:"color_coding" json:"color_coding"`
	Left        uint32 `toml:"left" json:"left"`
	Top         uint32 `toml:"top" json:"top"`
	Width       uint32 `toml:"width" json:"width"`
	Height      uint32 `toml:"height" json:"height"`
	PacketSize  uint32 `toml:"packet_size,omitempty" json:"packet_size,omitempty"`
}

// Preset is a named camera configuration applied on open or on demand.
type Preset struct {
	Name          string                    `toml:"-" json:"name" required:"false"`
	Mode          string                    `toml:"mode,omitempty" json:"mode,omitempty"`
	Framerate     float64                   `toml:"framerate,omitempty" json:"framerate,omitempty"`
	OperationMode string                    `toml:"operation_mode,omitempty" json:"operation_mode,omitempty"`
	Speed         int                       `toml:"speed,omitempty" json:"speed,omitempty"`
	Buffers       int                       `toml:"buffers,omitempty" json:"buffers,omitempty"`
	DropFrames    *bool                     `toml:"drop_frames,omitempty" json:"drop_frames,omitempty"`
	ROI           *ROISetting               `toml:"roi,omitempty" json:"roi,omitempty"`
	Features      map[string]FeatureSetting `toml:"features,omitempty" json:"features,omitempty"`
	UpdatedAt     time.Time                 `toml:"updated_at,omitempty" json:"updated_at" required:"false"`
}

// Validate checks every name and enum in p against the iidc model. It does
// not know the camera, so ranges are checked later by the driver.
func (p Preset) Validate() error {
	var errs []error
	if p.Mode != "" {
		m, err := iidc.ParseVideoMode(p.Mode)
		if err != nil {
			errs = append(errs, err)
		}
		if p.ROI != nil && err == nil && !m.IsScalable() {
			errs = append(errs, fmt.Errorf("roi needs a FORMAT7 mode, not %s", p.Mode))
		}
		if p.Framerate != 0 && err == nil && m.IsScalable() {
			errs = append(errs, fmt.Errorf("framerate does not apply to %s", p.Mode))
		}
	}
	if p.Framerate != 0 {
		if _, err := iidc.ParseFramerate(p.Framerate); err != nil {
			errs = append(errs, err)
		}
	}
	if p.OperationMode != "" {
		if _, err := iidc.ParseOperationMode(p.OperationMode); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Speed != 0 {
		if _, err := iidc.ParseIsoSpeed(p.Speed); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Buffers < 0 {
		errs = append(errs, fmt.Errorf("buffers %d", p.Buffers))
	}
	if p.ROI != nil {
		if _, err := iidc.ParseColorCoding(p.ROI.ColorCoding); err != nil {
			errs = append(errs, err)
		}
	}
	for name, fs := range p.Features {
		f, err := iidc.ParseFeature(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := fs.Validate(f); err != nil {
			errs = append(errs, fmt.Errorf("feature %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// SortedFeatures returns the feature names of p in a stable order, so
// presets apply the same way every time.
func (p Preset) SortedFeatures() []string {
	names := make([]string, 0, len(p.Features))
	for n := range p.Features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Presets is the content of presets.toml.
type Presets struct {
	Version int               `toml:"version" json:"version"`
	Default string            `toml:"default,omitempty" json:"default,omitempty"`
	Cameras map[string]string `toml:"cameras,omitempty" json:"cameras,omitempty"`
	Presets map[string]Preset `toml:"presets" json:"presets"`
}

// ForCamera returns the preset bound to a camera id, falling back to the
// default preset.
func (ps Presets) ForCamera(id string) (Preset, bool) {
	name, ok := ps.Cameras[id]
	if !ok {
		name = ps.Default
	}
	if name == "" {
		return Preset{}, false
	}
	p, ok := ps.Presets[name]
	return p, ok
}

// LoadPresets parses a presets file. A missing file yields an empty set.
func LoadPresets(path string) (Presets, error) {
	ps := Presets{Version: 1}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		ps.Presets = map[string]Preset{}
		return ps, nil
	}
	if err != nil {
		return ps, fmt.Errorf("read presets: %w", err)
	}
	if err := toml.Unmarshal(data, &ps); err != nil {
		return ps, fmt.Errorf("parse presets: %w", err)
	}
	if ps.Presets == nil {
		ps.Presets = map[string]Preset{}
	}
	var errs []error
	for name, p := range ps.Presets {
		p.Name = name
		ps.Presets[name] = p
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preset %s: %w", name, err))
		}
	}
	if ps.Default != "" {
		if _, ok := ps.Presets[ps.Default]; !ok {
			errs = append(errs, fmt.Errorf("default preset %q: %w", ps.Default, ErrPresetNotFound))
		}
	}
	for cam, name := range ps.Cameras {
		if _, ok := ps.Presets[name]; !ok {
			errs = append(errs, fmt.Errorf("camera %s preset %q: %w", cam, name, ErrPresetNotFound))
		}
	}
	if len(errs) > 0 {
		return ps, errors.Join(errs...)
	}
	return ps, nil
}

// PresetStore keeps presets in memory and persists every change.
type PresetStore struct {
	path string
	mu   sync.RWMutex
	data Presets
}

// NewPresetStore returns an empty store backed by path.
func NewPresetStore(path string) *PresetStore {
	if path == "" {
		path = "presets.toml"
	}
	return &PresetStore{path: path, data: Presets{Version: 1, Presets: map[string]Preset{}}}
}

// Path is the backing file.
func (s *PresetStore) Path() string { return s.path }

// Load replaces the in-memory set with the file content.
func (s *PresetStore) Load() error {
	ps, err := LoadPresets(s.path)
	if err != nil {
		return err
	}
	s.Replace(ps)
	return nil
}

// Replace swaps the in-memory set without writing. Used by the file
// watcher after an external edit.
func (s *PresetStore) Replace(ps Presets) {
	s.mu.Lock()
	s.data = ps
	s.mu.Unlock()
}

// Snapshot returns a copy of the current set.
func (s *PresetStore) Snapshot() Presets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.data
	out.Cameras = make(map[string]string, len(s.data.Cameras))
	for k, v := range s.data.Cameras {
		out.Cameras[k] = v
	}
	out.Presets = make(map[string]Preset, len(s.data.Presets))
	for k, v := range s.data.Presets {
		out.Presets[k] = v
	}
	return out
}

// Get returns a preset by name.
func (s *PresetStore) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%s: %w", name, ErrPresetNotFound)
	}
	return p, nil
}

// ForCamera resolves the preset for a camera id.
func (s *PresetStore) ForCamera(id string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ForCamera(id)
}

// Put validates and stores p, then saves the file.
func (s *PresetStore) Put(p Preset) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("preset name cannot be empty")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Presets[p.Name] = p
	return s.saveLocked()
}

// Delete removes a preset and any camera bindings to it.
func (s *PresetStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Presets[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrPresetNotFound)
	}
	delete(s.data.Presets, name)
	for cam, n := range s.data.Cameras {
		if n == name {
			delete(s.data.Cameras, cam)
		}
	}
	if s.data.Default == name {
		s.data.Default = ""
	}
	return s.saveLocked()
}

// Bind assigns a preset to a camera id.
func (s *PresetStore) Bind(cameraID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Presets[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrPresetNotFound)
	}
	if s.data.Cameras == nil {
		s.data.Cameras = map[string]string{}
	}
	s.data.Cameras[cameraID] = name
	return s.saveLocked()
}

func (s *PresetStore) saveLocked() error {
	data, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preset directory: %w", err)
		}
	}
	// write then rename so the watcher never loads a partial file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	return nil
}
