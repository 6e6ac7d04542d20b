package iidc

import (
	"context"
	"errors"
	"testing"
	"time"
)

// 16 byte frames, delivered as two 8 byte packets
func testRing(t *testing.T, buffers int, drop bool) *Capture {
	t.Helper()
	g := FrameGeometry{Mode: Mode640x480Mono8, Width: 4, Height: 4, ColorCoding: ColorMono8, QuadletsPerPacket: 2, QuadletsPerFrame: 4}
	r, err := newRing(g, CaptureConfig{Buffers: buffers, DropFrames: drop, Speed: Speed400}, nil)
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	t.Cleanup(func() { _ = r.Release() })
	return r
}

func sendFrame(r *Capture, fill byte) {
	half := make([]byte, 8)
	for i := range half {
		half[i] = fill
	}
	r.HandlePacket(IsoPacket{Sync: true, Payload: half})
	r.HandlePacket(IsoPacket{Payload: half})
}

func TestRingIgnoresPacketsBeforeSync(t *testing.T) {
	r := testRing(t, 2, true)
	r.HandlePacket(IsoPacket{Payload: make([]byte, 16)})
	if st := r.Stats(); st.Frames != 0 {
		t.Fatalf("frame assembled without a sync packet: %+v", st)
	}
	sendFrame(r, 7)
	f, err := r.Capture(context.Background(), CapturePoll)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range f.Data() {
		if b != 7 {
			t.Fatalf("payload %v", f.Data())
		}
	}
}

func TestRingResync(t *testing.T) {
	var events []CaptureEventKind
	r := testRing(t, 2, true)
	r.cfg.Notify = func(ev CaptureEvent) { events = append(events, ev.Kind) }

	// a sync packet in the middle of a frame restarts it in the same slot
	r.HandlePacket(IsoPacket{Sync: true, Payload: make([]byte, 8)})
	sendFrame(r, 3)

	st := r.Stats()
	if st.Frames != 1 || st.Resyncs != 1 {
		t.Fatalf("stats %+v", st)
	}
	if len(events) != 2 || events[0] != EventResync || events[1] != EventFrameFilled {
		t.Fatalf("events %v", events)
	}
	f, _ := r.Capture(context.Background(), CapturePoll)
	if f.Data()[0] != 3 || f.Data()[15] != 3 {
		t.Fatalf("payload %v", f.Data())
	}
}

func TestRingDropOldest(t *testing.T) {
	r := testRing(t, 2, true)
	for i := byte(0); i < 5; i++ {
		sendFrame(r, i)
	}
	st := r.Stats()
	if st.Frames != 5 || st.Dropped != 3 || st.Filled != 2 {
		t.Fatalf("stats %+v", st)
	}
	for _, want := range []uint64{3, 4} {
		f, err := r.Capture(context.Background(), CapturePoll)
		if err != nil {
			t.Fatal(err)
		}
		if f.Sequence != want || f.Data()[0] != byte(want) {
			t.Fatalf("sequence %d payload %d, want %d", f.Sequence, f.Data()[0], want)
		}
		if err := r.DoneWithBuffer(f); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRingTimestamps(t *testing.T) {
	r := testRing(t, 1, true)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.HandlePacket(IsoPacket{Sync: true, Payload: make([]byte, 8), Time: at})
	r.HandlePacket(IsoPacket{Payload: make([]byte, 8), Time: at.Add(time.Millisecond)})
	f, err := r.Capture(context.Background(), CapturePoll)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Timestamp.Equal(at.Add(time.Millisecond)) {
		t.Fatalf("timestamp %v", f.Timestamp)
	}
}

func TestRingDoneWithForeignFrame(t *testing.T) {
	a := testRing(t, 1, true)
	b := testRing(t, 1, true)
	sendFrame(a, 1)
	f, _ := a.Capture(context.Background(), CapturePoll)
	if err := b.DoneWithBuffer(f); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := b.DoneWithBuffer(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil, got %v", err)
	}
}

func TestRingInvalidPolicy(t *testing.T) {
	r := testRing(t, 1, true)
	if _, err := r.Capture(context.Background(), CapturePolicy(7)); !errors.Is(err, ErrInvalidCaptureMode) {
		t.Fatalf("expected ErrInvalidCaptureMode, got %v", err)
	}
}

func TestRingUnlistenDrains(t *testing.T) {
	r := testRing(t, 2, true)
	sendFrame(r, 1)
	if err := r.Unlisten(); err != nil {
		t.Fatal(err)
	}
	sendFrame(r, 2)

	f, err := r.Capture(context.Background(), CaptureWait)
	if err != nil {
		t.Fatalf("filled frame lost on unlisten: %v", err)
	}
	_ = r.DoneWithBuffer(f)
	if _, err := r.Capture(context.Background(), CaptureWait); !errors.Is(err, ErrCaptureNotSet) {
		t.Fatalf("expected ErrCaptureNotSet, got %v", err)
	}
}

func TestRingDrain(t *testing.T) {
	r := testRing(t, 4, true)
	packets := make(chan IsoPacket, 8)
	for i := 0; i < 3; i++ {
		packets <- IsoPacket{Sync: true, Payload: make([]byte, 8)}
		packets <- IsoPacket{Payload: make([]byte, 8)}
	}
	close(packets)
	if err := r.Drain(context.Background(), packets); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if st := r.Stats(); st.Frames != 3 {
		t.Fatalf("stats %+v", st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Drain(ctx, make(chan IsoPacket)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRingReleaseFreesOnce(t *testing.T) {
	r := testRing(t, 2, true)
	sendFrame(r, 1)
	for i := 0; i < 3; i++ {
		if err := r.Release(); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	// late packets after release are ignored
	sendFrame(r, 2)
	if _, err := r.Capture(context.Background(), CapturePoll); !errors.Is(err, ErrCaptureNotSet) {
		t.Fatalf("expected ErrCaptureNotSet, got %v", err)
	}
	if err := r.OnFrame(func(*Frame) {}); !errors.Is(err, ErrCaptureNotSet) {
		t.Fatalf("expected ErrCaptureNotSet, got %v", err)
	}
}

func TestRingReleaseKeepsCheckedOutData(t *testing.T) {
	r := testRing(t, 2, true)
	sendFrame(r, 9)
	sendFrame(r, 4)

	held, err := r.Capture(context.Background(), CapturePoll)
	if err != nil {
		t.Fatal(err)
	}
	d := held.Data()
	if err := r.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if held.Data() != nil {
		t.Fatal("Data returned a payload after release")
	}
	// the slice taken before release is still mapped
	if d[len(d)-1] != 9 {
		t.Fatalf("payload after release %v", d)
	}
	r.writeMu.Lock()
	kept := r.mem != nil
	r.writeMu.Unlock()
	if !kept {
		t.Fatal("ring memory freed while a frame was checked out")
	}

	if err := r.DoneWithBuffer(held); !errors.Is(err, ErrCaptureNotSet) {
		t.Fatalf("expected ErrCaptureNotSet, got %v", err)
	}
	r.writeMu.Lock()
	freed := r.mem == nil
	r.writeMu.Unlock()
	if !freed {
		t.Fatal("ring memory not freed by the last returned frame")
	}
	if err := r.DoneWithBuffer(held); !errors.Is(err, ErrCaptureNotSet) {
		t.Fatalf("second return: expected ErrCaptureNotSet, got %v", err)
	}
	if st := r.Stats(); st.CheckedOut != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestRingReleaseWithoutFramesFreesAtOnce(t *testing.T) {
	r := testRing(t, 2, true)
	sendFrame(r, 1)
	if err := r.Release(); err != nil {
		t.Fatal(err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.mem != nil {
		t.Fatal("ring memory kept with no frame checked out")
	}
}

func TestNewRingValidation(t *testing.T) {
	if _, err := newRing(FrameGeometry{QuadletsPerFrame: 4}, CaptureConfig{Buffers: 0}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := newRing(FrameGeometry{}, CaptureConfig{Buffers: 1}, nil); !errors.Is(err, ErrInvalidVideoMode) {
		t.Fatalf("expected ErrInvalidVideoMode, got %v", err)
	}
}
