package cameras

import (
	"fmt"
	"time"

	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// Features returns the features the camera implements.
func (s *Service) Features(id string) ([]iidc.FeatureInfo, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	set, err := m.cam.FeatureSet()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]iidc.FeatureInfo, 0, len(set))
	for _, f := range set {
		if f.Available {
			out = append(out, f)
		}
	}
	return out, nil
}

// Feature reads one feature by name.
func (s *Service) Feature(id, name string) (iidc.FeatureInfo, error) {
	f, err := iidc.ParseFeature(name)
	if err != nil {
		return iidc.FeatureInfo{}, err
	}
	m, err := s.get(id)
	if err != nil {
		return iidc.FeatureInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cam.Feature(f)
}

// SetFeature applies fs to a feature and returns its new state.
func (s *Service) SetFeature(id, name string, fs config.FeatureSetting) (iidc.FeatureInfo, error) {
	f, err := iidc.ParseFeature(name)
	if err != nil {
		return iidc.FeatureInfo{}, err
	}
	if err := fs.Validate(f); err != nil {
		return iidc.FeatureInfo{}, NewError(ErrCodeInvalidParams, f.String(), err)
	}
	m, err := s.get(id)
	if err != nil {
		return iidc.FeatureInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := s.setFeatureLocked(m, f, fs); err != nil {
		return iidc.FeatureInfo{}, err
	}
	return m.cam.Feature(f)
}

func (s *Service) setFeatureLocked(m *managed, f iidc.Feature, fs config.FeatureSetting) error {
	cam := m.cam
	info, err := cam.Feature(f)
	if err != nil {
		return err
	}
	if !info.Available {
		return &iidc.Error{Code: iidc.CodeInvalidFeature, Op: "set feature", Message: fmt.Sprintf("%s is not available", f)}
	}

	switch fs.Mode {
	case config.FeatureOff:
		if err := cam.SetFeatureOnOff(f, false); err != nil {
			return err
		}
	case config.FeatureAuto, config.FeatureOnePush:
		if info.OnOffCapable && !info.On {
			if err := cam.SetFeatureOnOff(f, true); err != nil {
				return err
			}
		}
		if fs.Mode == config.FeatureAuto {
			err = cam.SetFeatureAuto(f, true)
		} else {
			err = cam.StartOnePush(f)
		}
		if err != nil {
			return err
		}
	case config.FeatureManual:
		if info.OnOffCapable && !info.On {
			if err := cam.SetFeatureOnOff(f, true); err != nil {
				return err
			}
		}
		if info.Auto && f != iidc.FeatureTrigger {
			if err := cam.SetFeatureAuto(f, false); err != nil {
				return err
			}
		}
	}

	if fs.Mode == "" || fs.Mode == config.FeatureManual {
		if err := writeValues(cam, f, info, fs); err != nil {
			return err
		}
	}
	if fs.Polarity != "" {
		p := iidc.TriggerActiveLow
		if fs.Polarity == config.PolarityHigh {
			p = iidc.TriggerActiveHigh
		}
		if err := cam.SetTriggerPolarity(p); err != nil {
			return err
		}
	}

	after, err := cam.Feature(f)
	if err != nil {
		return err
	}
	mode := FeatureMode(after)
	s.logger.Debug("Feature set", "camera", m.id, "feature", f.String(), "mode", mode, "value", after.Value)
	s.publish(events.FeatureChangedEvent{
		CameraID:  m.id,
		Feature:   f.String(),
		Mode:      mode,
		Value:     after.Value,
		Absolute:  after.AbsValue,
		Timestamp: time.Now(),
	})
	return nil
}

func writeValues(cam *iidc.Camera, f iidc.Feature, info iidc.FeatureInfo, fs config.FeatureSetting) error {
	if fs.Absolute != nil {
		if !info.AbsoluteControl {
			if err := cam.SetAbsoluteControl(f, true); err != nil {
				return err
			}
		}
		return cam.SetAbsoluteValue(f, float32(*fs.Absolute))
	}
	if fs.Value == nil && len(fs.Values) == 0 {
		return nil
	}
	if info.AbsoluteControl {
		if err := cam.SetAbsoluteControl(f, false); err != nil {
			return err
		}
	}
	switch f {
	case iidc.FeatureWhiteBalance:
		if len(fs.Values) == 2 {
			return cam.SetWhiteBalance(fs.Values[0], fs.Values[1])
		}
	case iidc.FeatureWhiteShading:
		if len(fs.Values) == 3 {
			return cam.SetWhiteShading(fs.Values[0], fs.Values[1], fs.Values[2])
		}
	case iidc.FeatureTemperature:
		if fs.Value != nil {
			return cam.SetTemperature(*fs.Value)
		}
	case iidc.FeatureTrigger:
		if fs.Value != nil {
			return cam.SetTriggerMode(iidc.TriggerMode0 + iidc.TriggerMode(*fs.Value))
		}
	default:
		if fs.Value != nil {
			return cam.SetFeatureValue(f, *fs.Value)
		}
	}
	return &iidc.Error{Code: iidc.CodeInvalidArgument, Op: "set feature", Message: fmt.Sprintf("no usable value for %s", f)}
}

// FeatureMode names the control mode a feature is in, using the preset
// vocabulary.
func FeatureMode(fi iidc.FeatureInfo) string {
	switch {
	case fi.OnOffCapable && !fi.On:
		return config.FeatureOff
	case fi.Auto:
		return config.FeatureAuto
	case fi.OnePushActive:
		return config.FeatureOnePush
	}
	return config.FeatureManual
}
