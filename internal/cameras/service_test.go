package cameras

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/pkg/iidc"
	"github.com/smazurov/iidcnode/pkg/iidc/simbus"
)

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc     *Service
	bus     *simbus.Bus
	cam     *simbus.Camera
	id      string
	events  *recorder
	presets *config.PresetStore
}

func newFixture(t *testing.T, presets ...config.Preset) *fixture {
	t.Helper()
	bus := simbus.New()
	cam := simbus.NewCamera(0xFFC0)
	bus.Attach(cam)

	store := config.NewPresetStore(filepath.Join(t.TempDir(), "presets.toml"))
	for _, p := range presets {
		if err := store.Put(p); err != nil {
			t.Fatalf("put preset: %v", err)
		}
	}
	id := CameraID(cam.DeviceInfo().GUID)
	if len(presets) > 0 {
		if err := store.Bind(id, presets[0].Name); err != nil {
			t.Fatal(err)
		}
	}

	rec := &recorder{}
	svc := New(Options{
		Transport: bus,
		Devices:   []iidc.DeviceInfo{cam.DeviceInfo()},
		Presets:   store,
		EventBus:  rec,
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return &fixture{svc: svc, bus: bus, cam: cam, id: id, events: rec, presets: store}
}

func TestStartOpensCameras(t *testing.T) {
	f := newFixture(t)
	list := f.svc.List()
	if len(list) != 1 || list[0].ID != f.id {
		t.Fatalf("cameras %+v", list)
	}
	if list[0].Mode != "640x480_MONO8" || list[0].IsoState != "idle" {
		t.Fatalf("camera %+v", list[0])
	}
	var opened bool
	for _, ev := range f.events.all() {
		if e, ok := ev.(events.CameraOpenedEvent); ok && e.CameraID == f.id {
			opened = true
		}
	}
	if !opened {
		t.Fatal("no CameraOpenedEvent")
	}
	if _, err := f.svc.Get("nope"); !HasCode(err, ErrCodeCameraNotFound) {
		t.Fatalf("expected CAMERA_NOT_FOUND, got %v", err)
	}
}

func TestStartFailsWhenNothingOpens(t *testing.T) {
	svc := New(Options{
		Transport: simbus.New(),
		Devices:   []iidc.DeviceInfo{{Node: 0xFFC3, UnitDirectory: simbus.UnitDirectory}},
	})
	defer svc.Close()
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("start succeeded without a camera")
	}
}

func TestPresetAppliedOnStart(t *testing.T) {
	f := newFixture(t, config.Preset{
		Name:      "night",
		Mode:      "640x480_MONO8",
		Framerate: 15,
		Features: map[string]config.FeatureSetting{
			"gain":     {Mode: config.FeatureManual, Value: ptr(uint32(100))},
			"exposure": {Mode: config.FeatureAuto},
			"shutter":  {Absolute: ptr(0.5)},
		},
	})

	info, _ := f.svc.Get(f.id)
	if info.Preset != "night" || info.Framerate != "15fps" {
		t.Fatalf("camera %+v", info)
	}
	gain, err := f.svc.Feature(f.id, "gain")
	if err != nil || gain.Value != 100 || gain.Auto {
		t.Fatalf("gain %+v err %v", gain, err)
	}
	exposure, _ := f.svc.Feature(f.id, "exposure")
	if !exposure.Auto || !exposure.On {
		t.Fatalf("exposure %+v", exposure)
	}
	shutter, _ := f.svc.Feature(f.id, "shutter")
	if !shutter.AbsoluteControl || shutter.AbsValue != 0.5 {
		t.Fatalf("shutter %+v", shutter)
	}

	var applied *events.PresetAppliedEvent
	for _, ev := range f.events.all() {
		if e, ok := ev.(events.PresetAppliedEvent); ok {
			applied = &e
		}
	}
	if applied == nil || applied.Preset != "night" || applied.Error != "" {
		t.Fatalf("preset event %+v", applied)
	}
}

func TestPresetFailureIsReported(t *testing.T) {
	// FORMAT_2 is not implemented by the simulated camera
	f := newFixture(t, config.Preset{Name: "big", Mode: "1280x960_MONO8"})

	info, _ := f.svc.Get(f.id)
	if info.Preset != "" {
		t.Fatalf("failed preset recorded as applied: %+v", info)
	}
	var failed bool
	for _, ev := range f.events.all() {
		if e, ok := ev.(events.PresetAppliedEvent); ok && e.Error != "" {
			failed = true
		}
	}
	if !failed {
		t.Fatal("no failed PresetAppliedEvent")
	}
	if err := f.svc.ApplyPreset(f.id, "big"); !HasCode(err, ErrCodePresetError) {
		t.Fatalf("expected PRESET_ERROR, got %v", err)
	}
	if err := f.svc.ApplyPreset(f.id, "missing"); !errors.Is(err, config.ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestReloadPresets(t *testing.T) {
	f := newFixture(t, config.Preset{Name: "day", Framerate: 30})

	ps := f.presets.Snapshot()
	p := ps.Presets["day"]
	p.Framerate = 7.5
	ps.Presets["day"] = p
	f.svc.ReloadPresets(ps)

	info, _ := f.svc.Get(f.id)
	if info.Framerate != "7.5fps" {
		t.Fatalf("framerate %q after reload", info.Framerate)
	}
	if got, _ := f.presets.Get("day"); got.Framerate != 7.5 {
		t.Fatal("store not updated by reload")
	}
}

func TestSetFeature(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		feature string
		setting config.FeatureSetting
		check   func(iidc.FeatureInfo) bool
		err     error
	}{
		{
			name:    "manual value",
			feature: "brightness",
			setting: config.FeatureSetting{Mode: config.FeatureManual, Value: ptr(uint32(200))},
			check:   func(fi iidc.FeatureInfo) bool { return fi.Value == 200 && !fi.Auto },
		},
		{
			name:    "white balance",
			feature: "white_balance",
			setting: config.FeatureSetting{Values: []uint32{100, 300}},
			check:   func(fi iidc.FeatureInfo) bool { return fi.BUValue == 100 && fi.RVValue == 300 },
		},
		{
			name:    "trigger",
			feature: "trigger",
			setting: config.FeatureSetting{Mode: config.FeatureManual, Value: ptr(uint32(1)), Polarity: config.PolarityHigh},
			check: func(fi iidc.FeatureInfo) bool {
				return fi.On && fi.TriggerMode == iidc.TriggerMode0+1 && fi.TriggerPolarity == iidc.TriggerActiveHigh
			},
		},
		{
			name:    "off",
			feature: "gamma",
			setting: config.FeatureSetting{Mode: config.FeatureOff},
			check:   func(fi iidc.FeatureInfo) bool { return !fi.On },
		},
		{
			name:    "out of range",
			feature: "brightness",
			setting: config.FeatureSetting{Value: ptr(uint32(4000))},
			err:     iidc.ErrValueOutOfRange,
		},
		{
			name:    "cannot switch off",
			feature: "sharpness",
			setting: config.FeatureSetting{Mode: config.FeatureOff},
			err:     iidc.ErrFunctionNotSupported,
		},
		{
			name:    "missing feature",
			feature: "zoom",
			setting: config.FeatureSetting{Value: ptr(uint32(1))},
			err:     iidc.ErrInvalidFeature,
		},
		{
			name:    "unknown feature",
			feature: "warp",
			err:     iidc.ErrInvalidFeature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fi, err := f.svc.SetFeature(f.id, tt.feature, tt.setting)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("set: %v", err)
			}
			if !tt.check(fi) {
				t.Fatalf("feature state %+v", fi)
			}
		})
	}

	if _, err := f.svc.SetFeature(f.id, "gain", config.FeatureSetting{Mode: "turbo"}); !HasCode(err, ErrCodeInvalidParams) {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}

	var changed int
	for _, ev := range f.events.all() {
		if _, ok := ev.(events.FeatureChangedEvent); ok {
			changed++
		}
	}
	if changed != 4 {
		t.Fatalf("%d FeatureChangedEvents, want 4", changed)
	}
}

func TestFeaturesListsAvailableOnly(t *testing.T) {
	f := newFixture(t)
	list, err := f.svc.Features(f.id)
	if err != nil {
		t.Fatal(err)
	}
	for _, fi := range list {
		if !fi.Available {
			t.Fatalf("unavailable feature listed: %s", fi.Name)
		}
		if fi.ID == iidc.FeatureZoom {
			t.Fatal("zoom listed on a camera without it")
		}
	}
	if len(list) == 0 {
		t.Fatal("no features")
	}
}

func TestSetVideo(t *testing.T) {
	f := newFixture(t)
	vi, err := f.svc.SetVideo(f.id, VideoSettings{Mode: "320x240_YUV422", Framerate: 15})
	if err != nil {
		t.Fatal(err)
	}
	if vi.Mode != "320x240_YUV422" || vi.Framerate != "15fps" || vi.Geometry.Width != 320 {
		t.Fatalf("video %+v", vi)
	}
	if len(vi.Modes) == 0 || len(vi.Framerates) == 0 {
		t.Fatalf("supported lists empty: %+v", vi)
	}

	vi, err = f.svc.SetVideo(f.id, VideoSettings{
		Mode: "FORMAT7_0",
		ROI:  &config.ROISetting{ColorCoding: "RAW8", Left: 16, Top: 8, Width: 320, Height: 240},
	})
	if err != nil {
		t.Fatal(err)
	}
	if vi.Geometry.Width != 320 || vi.Geometry.ColorCoding != iidc.ColorRaw8 || vi.Framerate != "" {
		t.Fatalf("format7 video %+v", vi)
	}

	if _, err := f.svc.SetVideo(f.id, VideoSettings{Mode: "bogus"}); !HasCode(err, ErrCodeInvalidParams) {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
}

func TestCaptureLifecycle(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Snapshot(context.Background(), f.id); !HasCode(err, ErrCodeCaptureInactive) {
		t.Fatalf("expected CAPTURE_INACTIVE, got %v", err)
	}
	info, err := f.svc.StartCapture(f.id, CaptureParams{Buffers: 2})
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	if info.ID == "" || info.Buffers != 2 || !info.DropFrames || info.Speed != 400 {
		t.Fatalf("session %+v", info)
	}
	if _, err := f.svc.StartCapture(f.id, CaptureParams{}); !HasCode(err, ErrCodeCaptureActive) {
		t.Fatalf("expected CAPTURE_ACTIVE, got %v", err)
	}
	if _, err := f.svc.SetVideo(f.id, VideoSettings{Framerate: 15}); !HasCode(err, ErrCodeCaptureActive) {
		t.Fatalf("expected CAPTURE_ACTIVE for a mode change, got %v", err)
	}

	if err := f.cam.EmitFrames(3); err != nil {
		t.Fatal(err)
	}
	st := f.svc.CaptureStats()[f.id]
	if st.Frames != 3 || st.Dropped != 1 {
		t.Fatalf("stats %+v", st)
	}

	snap, err := f.svc.Snapshot(context.Background(), f.id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Sequence != 2 || simbus.FrameNumber(snap.Data) != 2 {
		t.Fatalf("snapshot sequence %d frame %d, want newest", snap.Sequence, simbus.FrameNumber(snap.Data))
	}
	if len(snap.Data) != snap.Geometry.FrameBytes() || snap.Geometry.Width != 640 {
		t.Fatalf("snapshot geometry %+v with %d bytes", snap.Geometry, len(snap.Data))
	}
	if st := f.svc.CaptureStats()[f.id]; st.Filled != 0 || st.CheckedOut != 0 {
		t.Fatalf("snapshot left buffers out: %+v", st)
	}

	stopped, err := f.svc.StopCapture(f.id)
	if err != nil {
		t.Fatal(err)
	}
	if stopped.ID != info.ID || stopped.Stats.Frames != 3 {
		t.Fatalf("stopped session %+v", stopped)
	}
	if _, err := f.svc.StopCapture(f.id); !HasCode(err, ErrCodeCaptureInactive) {
		t.Fatalf("expected CAPTURE_INACTIVE, got %v", err)
	}
	if f.bus.FreeBandwidth() != simbus.DefaultBandwidth {
		t.Fatalf("bandwidth not returned: %d", f.bus.FreeBandwidth())
	}
	if len(f.svc.CaptureStats()) != 0 {
		t.Fatal("stats reported for a stopped capture")
	}

	var dropped bool
	states := map[string]bool{}
	for _, ev := range f.events.all() {
		switch e := ev.(type) {
		case events.FrameLostEvent:
			dropped = dropped || (e.Reason == events.LostDropped && e.SessionID == info.ID)
		case events.IsoStateChangedEvent:
			states[e.State] = true
		}
	}
	if !dropped {
		t.Fatal("no FrameLostEvent for the dropped frame")
	}
	if !states["transmitting"] || len(states) < 2 {
		t.Fatalf("iso states %v", states)
	}
}

func TestCaptureUsesPresetDefaults(t *testing.T) {
	f := newFixture(t, config.Preset{Name: "slow", Buffers: 6, Speed: 200, DropFrames: ptr(false)})
	info, err := f.svc.StartCapture(f.id, CaptureParams{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Buffers != 6 || info.Speed != 200 || info.DropFrames {
		t.Fatalf("session %+v", info)
	}
	if _, err := f.svc.StopCapture(f.id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.StartCapture(f.id, CaptureParams{Speed: 123}); !errors.Is(err, iidc.ErrInvalidIsoSpeed) {
		t.Fatalf("expected ErrInvalidIsoSpeed, got %v", err)
	}
	if _, err := f.svc.StartCapture(f.id, CaptureParams{Buffers: -1}); !HasCode(err, ErrCodeInvalidParams) {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
}

func TestSnapshotWaitsForFrame(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.StartCapture(f.id, CaptureParams{}); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = f.cam.EmitFrame()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := f.svc.Snapshot(ctx, f.id)
	if err != nil || snap.Sequence != 0 {
		t.Fatalf("snapshot %d err %v", snap.Sequence, err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.svc.Snapshot(ctx, f.id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestSnapshotStoppedAfterDequeue(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.StartCapture(f.id, CaptureParams{}); err != nil {
		t.Fatal(err)
	}
	if err := f.cam.EmitFrames(2); err != nil {
		t.Fatal(err)
	}
	f.svc.afterDequeue = func() {
		if _, err := f.svc.StopCapture(f.id); err != nil {
			t.Errorf("stop capture: %v", err)
		}
	}

	_, err := f.svc.Snapshot(context.Background(), f.id)
	if !HasCode(err, ErrCodeCaptureInactive) {
		t.Fatalf("expected CAPTURE_INACTIVE, got %v", err)
	}
	f.svc.afterDequeue = nil
	if _, err := f.svc.Session(f.id); !HasCode(err, ErrCodeCaptureInactive) {
		t.Fatalf("session still running: %v", err)
	}
	if _, err := f.svc.StartCapture(f.id, CaptureParams{}); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestSimulatedCameras(t *testing.T) {
	svc := New(Options{SimCameras: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	list := svc.List()
	if len(list) != 2 || list[0].ID >= list[1].ID {
		t.Fatalf("cameras %+v", list)
	}
	if _, err := svc.StartCapture(list[1].ID, CaptureParams{}); err != nil {
		t.Fatal(err)
	}
	wait, stop := context.WithTimeout(ctx, 2*time.Second)
	defer stop()
	if _, err := svc.Snapshot(wait, list[1].ID); err != nil {
		t.Fatalf("no frame from the simulated camera: %v", err)
	}
	units, err := svc.Bandwidth(list[1].ID)
	if err != nil || units == 0 {
		t.Fatalf("bandwidth %d err %v", units, err)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.StartCapture(f.id, CaptureParams{}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Close(); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.List()) != 0 {
		t.Fatal("cameras left after close")
	}
	if f.cam.Transmitting() {
		t.Fatal("camera still transmitting after close")
	}
	var closed bool
	for _, ev := range f.events.all() {
		if _, ok := ev.(events.CameraClosedEvent); ok {
			closed = true
		}
	}
	if !closed {
		t.Fatal("no CameraClosedEvent")
	}
}
