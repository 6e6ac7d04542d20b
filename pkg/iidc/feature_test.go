package iidc_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/smazurov/iidcnode/pkg/iidc"
	"github.com/smazurov/iidcnode/pkg/iidc/simbus"
)

func TestFeatureValueRoundTrip(t *testing.T) {
	_, _, cam := openSim(t)

	multi := map[iidc.Feature]bool{
		iidc.FeatureWhiteBalance: true,
		iidc.FeatureWhiteShading: true,
		iidc.FeatureTemperature:  true,
		iidc.FeatureTrigger:      true,
	}
	tested := 0
	for _, id := range iidc.Features() {
		f, err := cam.Feature(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !f.Available || !f.ManualCapable || multi[id] {
			continue
		}
		tested++
		for _, v := range []uint32{f.Min, f.Max, f.Min + (f.Max-f.Min)/2} {
			if err := cam.SetFeatureValue(id, v); err != nil {
				t.Fatalf("%s=%d: %v", id, v, err)
			}
			got, err := cam.Feature(id)
			if err != nil {
				t.Fatalf("get %s: %v", id, err)
			}
			if got.Value != v {
				t.Errorf("%s: read back %d, want %d", id, got.Value, v)
			}
		}
	}
	if tested < 10 {
		t.Fatalf("only %d single valued features exercised", tested)
	}
}

func TestFeatureOutOfRangeDoesNotWrite(t *testing.T) {
	_, sim, cam := openSim(t)

	tests := []struct {
		feature iidc.Feature
		value   uint32
	}{
		{iidc.FeatureBrightness, 256},
		{iidc.FeatureShutter, 0},
		{iidc.FeatureCaptureQuality, 8},
	}
	for _, tt := range tests {
		err := cam.SetFeatureValue(tt.feature, tt.value)
		if !errors.Is(err, iidc.ErrValueOutOfRange) {
			t.Fatalf("%s=%d: expected ErrValueOutOfRange, got %v", tt.feature, tt.value, err)
		}
		if iidc.KindOf(err) != iidc.KindCaller {
			t.Fatalf("kind %s, want caller", iidc.KindOf(err))
		}
		if n := sim.WriteCount(simbus.FeatureControlOffset(tt.feature)); n != 0 {
			t.Fatalf("%s: %d register writes after a rejected value", tt.feature, n)
		}
	}
}

func TestAbsentFeature(t *testing.T) {
	_, _, cam := openSim(t)

	f, err := cam.Feature(iidc.FeatureZoom)
	if err != nil {
		t.Fatalf("absent feature should not error: %v", err)
	}
	if f.Available || f.Readable() {
		t.Fatalf("zoom reported available: %+v", f)
	}
	if err := cam.SetFeatureValue(iidc.FeatureZoom, 1); !errors.Is(err, iidc.ErrInvalidFeature) {
		t.Fatalf("expected ErrInvalidFeature, got %v", err)
	}
	if _, err := cam.Feature(iidc.Feature(999)); !errors.Is(err, iidc.ErrInvalidFeature) {
		t.Fatalf("expected ErrInvalidFeature for unknown id, got %v", err)
	}
}

func TestWithoutFeature(t *testing.T) {
	_, _, cam := openSim(t, simbus.WithoutFeature(iidc.FeatureGain))
	f, err := cam.Feature(iidc.FeatureGain)
	if err != nil || f.Available {
		t.Fatalf("gain available=%t err=%v", f.Available, err)
	}
}

func TestFeatureSet(t *testing.T) {
	_, _, cam := openSim(t)
	set, err := cam.FeatureSet()
	if err != nil {
		t.Fatalf("feature set: %v", err)
	}
	var available []iidc.Feature
	for _, f := range set {
		if f.Available {
			available = append(available, f.ID)
		}
	}
	if len(available) != 16 {
		t.Fatalf("%d available features, want 16: %v", len(available), available)
	}
	if f, _ := set.Get(iidc.FeatureCaptureQuality); !f.Available || f.Max != 7 {
		t.Fatalf("capture quality %+v", f)
	}
}

func TestFeatureModes(t *testing.T) {
	_, _, cam := openSim(t)

	if err := cam.SetFeatureAuto(iidc.FeatureBrightness, true); err != nil {
		t.Fatalf("auto: %v", err)
	}
	if f, _ := cam.Feature(iidc.FeatureBrightness); !f.Auto {
		t.Fatal("brightness not in auto mode")
	}
	if err := cam.SetFeatureAuto(iidc.FeatureSharpness, true); !errors.Is(err, iidc.ErrFunctionNotSupported) {
		t.Fatalf("expected ErrFunctionNotSupported, got %v", err)
	}

	if err := cam.SetFeatureOnOff(iidc.FeatureExposure, false); err != nil {
		t.Fatalf("off: %v", err)
	}
	if f, _ := cam.Feature(iidc.FeatureExposure); f.On {
		t.Fatal("exposure still on")
	}
	if err := cam.SetFeatureOnOff(iidc.FeatureHue, false); !errors.Is(err, iidc.ErrFunctionNotSupported) {
		t.Fatalf("expected ErrFunctionNotSupported, got %v", err)
	}

	if err := cam.StartOnePush(iidc.FeatureWhiteBalance); err != nil {
		t.Fatalf("one push: %v", err)
	}
	if f, _ := cam.Feature(iidc.FeatureWhiteBalance); f.OnePushActive {
		t.Fatal("one push should complete immediately")
	}
}

func TestWhiteBalance(t *testing.T) {
	_, _, cam := openSim(t)
	if err := cam.SetWhiteBalance(300, 700); err != nil {
		t.Fatalf("set: %v", err)
	}
	f, err := cam.Feature(iidc.FeatureWhiteBalance)
	if err != nil {
		t.Fatal(err)
	}
	if f.BUValue != 300 || f.RVValue != 700 {
		t.Fatalf("got bu=%d rv=%d", f.BUValue, f.RVValue)
	}
	if err := cam.SetWhiteBalance(300, 2000); !errors.Is(err, iidc.ErrValueOutOfRange) {
		t.Fatalf("expected ErrValueOutOfRange, got %v", err)
	}
	if err := cam.SetFeatureValue(iidc.FeatureWhiteBalance, 1); !errors.Is(err, iidc.ErrInvalidFeature) {
		t.Fatalf("expected ErrInvalidFeature for single value write, got %v", err)
	}
}

func TestWhiteShadingAndTemperature(t *testing.T) {
	_, _, cam := openSim(t)
	if err := cam.SetWhiteShading(10, 20, 30); err != nil {
		t.Fatalf("shading: %v", err)
	}
	f, _ := cam.Feature(iidc.FeatureWhiteShading)
	if f.RValue != 10 || f.GValue != 20 || f.BValue != 30 {
		t.Fatalf("shading %d/%d/%d", f.RValue, f.GValue, f.BValue)
	}

	if err := cam.SetTemperature(4000); err != nil {
		t.Fatalf("temperature: %v", err)
	}
	f, _ = cam.Feature(iidc.FeatureTemperature)
	if f.TargetValue != 4000 {
		t.Fatalf("target %d", f.TargetValue)
	}
	if f.Value != 2990 {
		t.Fatalf("measured value %d should be untouched", f.Value)
	}
}

func TestAbsoluteControl(t *testing.T) {
	_, _, cam := openSim(t)

	f, err := cam.Feature(iidc.FeatureShutter)
	if err != nil {
		t.Fatal(err)
	}
	if !f.AbsoluteCapable || f.AbsMax != 4 {
		t.Fatalf("shutter abs %+v", f)
	}
	if err := cam.SetAbsoluteControl(iidc.FeatureShutter, true); err != nil {
		t.Fatalf("abs control: %v", err)
	}
	if err := cam.SetAbsoluteValue(iidc.FeatureShutter, 0.5); err != nil {
		t.Fatalf("abs value: %v", err)
	}
	f, _ = cam.Feature(iidc.FeatureShutter)
	if !f.AbsoluteControl || f.AbsValue != 0.5 {
		t.Fatalf("abs control=%t value=%g", f.AbsoluteControl, f.AbsValue)
	}
	if err := cam.SetAbsoluteValue(iidc.FeatureShutter, 5); !errors.Is(err, iidc.ErrValueOutOfRange) {
		t.Fatalf("expected ErrValueOutOfRange, got %v", err)
	}
	if err := cam.SetAbsoluteValue(iidc.FeatureBrightness, 1); !errors.Is(err, iidc.ErrFunctionNotSupported) {
		t.Fatalf("expected ErrFunctionNotSupported, got %v", err)
	}
}

func TestTrigger(t *testing.T) {
	_, _, cam := openSim(t)

	f, err := cam.Feature(iidc.FeatureTrigger)
	if err != nil {
		t.Fatal(err)
	}
	want := []iidc.TriggerMode{iidc.TriggerMode0, iidc.TriggerMode1, iidc.TriggerMode3, iidc.TriggerMode14}
	if !slices.Equal(f.TriggerModes, want) {
		t.Fatalf("trigger modes %v, want %v", f.TriggerModes, want)
	}
	if !f.PolarityCapable {
		t.Fatal("trigger polarity should be switchable")
	}

	if err := cam.SetTriggerMode(iidc.TriggerMode14); err != nil {
		t.Fatalf("mode 14: %v", err)
	}
	if err := cam.SetTriggerMode(iidc.TriggerMode2); !errors.Is(err, iidc.ErrInvalidTriggerMode) {
		t.Fatalf("expected ErrInvalidTriggerMode, got %v", err)
	}
	if err := cam.SetTriggerPolarity(iidc.TriggerActiveHigh); err != nil {
		t.Fatalf("polarity: %v", err)
	}
	if err := cam.SetFeatureOnOff(iidc.FeatureTrigger, true); err != nil {
		t.Fatalf("trigger on: %v", err)
	}

	f, _ = cam.Feature(iidc.FeatureTrigger)
	if f.TriggerMode != iidc.TriggerMode14 || f.TriggerPolarity != iidc.TriggerActiveHigh || !f.On {
		t.Fatalf("trigger state %+v", f)
	}
}
