package cameras

import (
	"slices"

	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// VideoSettings selects a video mode. Empty fields keep the current value.
// ROI only applies to Format7 modes.
type VideoSettings struct {
	Mode          string             `json:"mode,omitempty" example:"640x480_MONO8"`
	Framerate     float64            `json:"framerate,omitempty" example:"30"`
	OperationMode string             `json:"operation_mode,omitempty" enum:"legacy,1394b"`
	ROI           *config.ROISetting `json:"roi,omitempty"`
}

// VideoInfo is the camera's current video configuration.
type VideoInfo struct {
	Mode           string             `json:"mode"`
	Framerate      string             `json:"framerate,omitempty"`
	OperationMode  string             `json:"operation_mode"`
	Geometry       iidc.FrameGeometry `json:"geometry"`
	BandwidthUnits uint32             `json:"bandwidth_units"`
	Modes          []string           `json:"modes"`
	Framerates     []string           `json:"framerates,omitempty"`
}

// Video reads the current mode and what the camera supports.
func (s *Service) Video(id string) (VideoInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return VideoInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return videoInfo(m.cam)
}

func videoInfo(cam *iidc.Camera) (VideoInfo, error) {
	var vi VideoInfo
	mode, err := cam.VideoMode()
	if err != nil {
		return vi, err
	}
	vi.Mode = mode.String()
	op, err := cam.OperationMode()
	if err != nil {
		return vi, err
	}
	vi.OperationMode = op.String()
	if vi.Geometry, err = cam.Geometry(); err != nil {
		return vi, err
	}
	if !mode.IsScalable() {
		vi.Framerate = vi.Geometry.Framerate.String()
	}
	if vi.BandwidthUnits, err = cam.BandwidthUsage(); err != nil {
		return vi, err
	}
	modes, err := cam.SupportedModes()
	if err != nil {
		return vi, err
	}
	for _, md := range modes {
		vi.Modes = append(vi.Modes, md.String())
	}
	if !mode.IsScalable() {
		rates, err := cam.SupportedFramerates(mode)
		if err != nil {
			return vi, err
		}
		for _, r := range rates {
			vi.Framerates = append(vi.Framerates, r.String())
		}
	}
	return vi, nil
}

// SetVideo changes the video configuration. It is refused while a capture
// is running because the ring is sized for the current mode.
func (s *Service) SetVideo(id string, vs VideoSettings) (VideoInfo, error) {
	p := config.Preset{
		Mode:          vs.Mode,
		Framerate:     vs.Framerate,
		OperationMode: vs.OperationMode,
		ROI:           vs.ROI,
	}
	if err := p.Validate(); err != nil {
		return VideoInfo{}, NewError(ErrCodeInvalidParams, "video settings", err)
	}
	m, err := s.get(id)
	if err != nil {
		return VideoInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return VideoInfo{}, NewError(ErrCodeCaptureActive, "stop the capture before changing the video mode", nil)
	}
	if err := configureVideo(m.cam, p); err != nil {
		return VideoInfo{}, err
	}
	s.updateIsoMetrics(m)
	return videoInfo(m.cam)
}

// configureVideo applies the video part of a validated preset: operation
// mode first, since it decides which speeds and layouts are legal.
func configureVideo(cam *iidc.Camera, p config.Preset) error {
	if p.OperationMode != "" {
		op, err := iidc.ParseOperationMode(p.OperationMode)
		if err != nil {
			return err
		}
		if err := cam.SetOperationMode(op); err != nil {
			return err
		}
	}
	if p.Mode != "" {
		mode, err := iidc.ParseVideoMode(p.Mode)
		if err != nil {
			return err
		}
		modes, err := cam.SupportedModes()
		if err != nil {
			return err
		}
		if !slices.Contains(modes, mode) {
			return &iidc.Error{Code: iidc.CodeInvalidVideoMode, Op: "set video mode", Message: mode.String() + " is not supported by the camera"}
		}
		if err := cam.SetVideoMode(mode); err != nil {
			return err
		}
		if p.Framerate == 0 && !mode.IsScalable() {
			if err := keepFramerate(cam, mode); err != nil {
				return err
			}
		}
	}
	if p.Framerate != 0 {
		rate, err := iidc.ParseFramerate(p.Framerate)
		if err != nil {
			return err
		}
		mode, err := cam.VideoMode()
		if err != nil {
			return err
		}
		if !mode.IsScalable() {
			rates, err := cam.SupportedFramerates(mode)
			if err != nil {
				return err
			}
			if !slices.Contains(rates, rate) {
				return &iidc.Error{Code: iidc.CodeInvalidFramerate, Op: "set framerate", Message: rate.String() + " is not supported in " + mode.String()}
			}
		}
		if err := cam.SetFramerate(rate); err != nil {
			return err
		}
	}
	if p.ROI != nil {
		mode, err := cam.VideoMode()
		if err != nil {
			return err
		}
		coding, err := iidc.ParseColorCoding(p.ROI.ColorCoding)
		if err != nil {
			return err
		}
		err = cam.SetFormat7ROI(mode, iidc.ROI{
			ColorCoding: coding,
			PacketSize:  p.ROI.PacketSize,
			Left:        p.ROI.Left,
			Top:         p.ROI.Top,
			Width:       p.ROI.Width,
			Height:      p.ROI.Height,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// keepFramerate moves to the fastest supported framerate when the current
// one is not defined for mode.
func keepFramerate(cam *iidc.Camera, mode iidc.VideoMode) error {
	rates, err := cam.SupportedFramerates(mode)
	if err != nil || len(rates) == 0 {
		return err
	}
	cur, err := cam.Framerate()
	if err == nil && slices.Contains(rates, cur) {
		return nil
	}
	return cam.SetFramerate(rates[len(rates)-1])
}
