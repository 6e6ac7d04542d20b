package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	got := make(chan FrameLostEvent, 1)
	unsub := bus.Subscribe(func(e FrameLostEvent) { got <- e })
	defer unsub()

	bus.Publish(FrameLostEvent{CameraID: "cam0", Sequence: 7, Reason: LostOverrun})
	e := receive(t, got)
	if e.CameraID != "cam0" || e.Sequence != 7 || e.Reason != LostOverrun {
		t.Fatalf("event %+v", e)
	}
}

func TestBusTypeRouting(t *testing.T) {
	bus := New()
	frames := make(chan FrameCapturedEvent, 4)
	iso := make(chan IsoStateChangedEvent, 4)
	defer bus.Subscribe(func(e FrameCapturedEvent) { frames <- e })()
	defer bus.Subscribe(func(e IsoStateChangedEvent) { iso <- e })()

	bus.Publish(IsoStateChangedEvent{CameraID: "cam0", State: "transmitting", Channel: 3})
	if e := receive(t, iso); e.Channel != 3 {
		t.Fatalf("iso event %+v", e)
	}
	select {
	case e := <-frames:
		t.Fatalf("frame subscriber got %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := New()
	a := make(chan PresetAppliedEvent, 1)
	b := make(chan PresetAppliedEvent, 1)
	defer bus.Subscribe(func(e PresetAppliedEvent) { a <- e })()
	defer bus.Subscribe(func(e PresetAppliedEvent) { b <- e })()

	bus.Publish(PresetAppliedEvent{CameraID: "cam0", Preset: "vga"})
	if receive(t, a).Preset != "vga" || receive(t, b).Preset != "vga" {
		t.Fatal("subscribers saw different events")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	got := make(chan CameraClosedEvent, 2)
	unsub := bus.Subscribe(func(e CameraClosedEvent) { got <- e })

	bus.Publish(CameraClosedEvent{CameraID: "a"})
	receive(t, got)
	unsub()
	bus.Publish(CameraClosedEvent{CameraID: "b"})
	select {
	case e := <-got:
		t.Fatalf("received %+v after unsubscribe", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusUnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBusOrderPerSubscriber(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	var seqs []uint64
	done := make(chan struct{})
	defer bus.Subscribe(func(e FrameCapturedEvent) {
		mu.Lock()
		seqs = append(seqs, e.Sequence)
		n := len(seqs)
		mu.Unlock()
		if n == 100 {
			close(done)
		}
	})()

	for i := uint64(0); i < 100; i++ {
		bus.Publish(FrameCapturedEvent{CameraID: "cam0", Sequence: i})
	}
	receive(t, done)
	mu.Lock()
	defer mu.Unlock()
	for i, s := range seqs {
		if s != uint64(i) {
			t.Fatalf("sequence %d at position %d", s, i)
		}
	}
}

func TestEventTypesAreDistinct(t *testing.T) {
	all := []Event{
		CameraOpenedEvent{}, CameraClosedEvent{}, FrameCapturedEvent{}, FrameLostEvent{},
		IsoStateChangedEvent{}, FeatureChangedEvent{}, PresetAppliedEvent{},
	}
	seen := map[uint32]bool{}
	for _, e := range all {
		if seen[e.Type()] {
			t.Fatalf("duplicate type %d for %T", e.Type(), e)
		}
		seen[e.Type()] = true
	}
}

func TestFeatureChangedJSON(t *testing.T) {
	data, err := json.Marshal(FeatureChangedEvent{CameraID: "cam0", Feature: "gain", Mode: "manual", Value: 12})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["feature"] != "gain" || m["value"] != float64(12) {
		t.Fatalf("json %s", data)
	}
	if _, ok := m["absolute"]; ok {
		t.Fatalf("zero absolute serialized: %s", data)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	defer SubscribeToChannel[FrameLostEvent](bus, ch)()

	bus.Publish(FrameLostEvent{Sequence: 1})
	v := receive(t, ch)
	if e, ok := v.(FrameLostEvent); !ok || e.Sequence != 1 {
		t.Fatalf("got %#v", v)
	}

	// a full channel drops instead of blocking the dispatcher
	for i := 0; i < 10; i++ {
		bus.Publish(FrameLostEvent{Sequence: uint64(i)})
	}
	time.Sleep(20 * time.Millisecond)
	if len(ch) != 1 {
		t.Fatalf("channel holds %d events", len(ch))
	}
}
