package iidc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type slotState int

const (
	slotEmpty slotState = iota
	slotFilling
	slotFilled
	slotCheckedOut
)

type slot struct {
	state slotState
	// gen changes every time the slot is handed out or returned, so a stale
	// Frame can be told apart from the current holder.
	gen uint64
	seq uint64
	ts  time.Time
}

// CaptureEventKind identifies a CaptureEvent.
type CaptureEventKind int

// Capture event kinds.
const (
	EventFrameFilled CaptureEventKind = iota + 1
	EventFrameDropped
	EventOverrun
	EventResync
)

func (k CaptureEventKind) String() string {
	switch k {
	case EventFrameFilled:
		return "filled"
	case EventFrameDropped:
		return "dropped"
	case EventOverrun:
		return "overrun"
	case EventResync:
		return "resync"
	}
	return "unknown"
}

// CaptureEvent reports what happened to a frame on the delivery path.
type CaptureEvent struct {
	Kind     CaptureEventKind
	Sequence uint64
	Time     time.Time
}

// CaptureStats is a snapshot of ring counters.
type CaptureStats struct {
	Buffers    int    `json:"buffers"`
	Frames     uint64 `json:"frames"`
	Dropped    uint64 `json:"dropped"`
	Overruns   uint64 `json:"overruns"`
	Resyncs    uint64 `json:"resyncs"`
	Filled     int    `json:"filled"`
	CheckedOut int    `json:"checked_out"`
}

// Capture is a ring of frame slots fed by isochronous packets. Slots move
// EMPTY -> FILLING -> FILLED -> checked out -> EMPTY. A checked-out slot
// belongs to the application until DoneWithBuffer and is never recycled.
type Capture struct {
	cam      *Camera
	geometry FrameGeometry
	cfg      CaptureConfig
	channel  int
	units    uint32
	logger   *slog.Logger

	frameSize int
	mem       []byte
	freeOnce  sync.Once
	freeErr   error

	mu            sync.Mutex
	cond          *sync.Cond
	slots         []slot
	filled        []int
	next          int
	seq           uint64
	listening     bool
	released      bool
	stats         CaptureStats
	handlerCancel context.CancelFunc

	// Writer side. Only the packet delivery path takes writeMu, so frame
	// payloads are copied without holding mu.
	writeMu sync.Mutex
	cur     int
	written int
}

func newRing(g FrameGeometry, cfg CaptureConfig, logger *slog.Logger) (*Capture, error) {
	const op = "allocate ring"
	if cfg.Buffers < 1 {
		return nil, errorf(op, CodeInvalidArgument, "buffer count %d", cfg.Buffers)
	}
	frameSize := g.FrameBytes()
	if frameSize <= 0 {
		return nil, errorf(op, CodeInvalidVideoMode, "empty frame")
	}
	mem, err := allocRing(frameSize * cfg.Buffers)
	if err != nil {
		return nil, newError(op, CodeMemoryAllocationFailure, err)
	}
	if logger == nil {
		logger = slog.Default().With("component", "iidc")
	}
	r := &Capture{
		geometry:  g,
		cfg:       cfg,
		channel:   -1,
		logger:    logger,
		frameSize: frameSize,
		mem:       mem,
		slots:     make([]slot, cfg.Buffers),
		filled:    make([]int, 0, cfg.Buffers),
		cur:       -1,
		listening: true,
	}
	r.cond = sync.NewCond(&r.mu)
	r.stats.Buffers = cfg.Buffers
	return r, nil
}

// HandlePacket assembles packets into slots. A packet with Sync set starts
// a frame; packets before the first sync are ignored.
func (c *Capture) HandlePacket(p IsoPacket) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.mem == nil {
		return
	}

	var events []CaptureEvent
	switch {
	case p.Sync && c.cur >= 0:
		if c.written > 0 {
			c.mu.Lock()
			c.stats.Resyncs++
			c.mu.Unlock()
			events = append(events, CaptureEvent{Kind: EventResync, Time: p.Time})
		}
		c.written = 0
	case p.Sync:
		idx, ev := c.beginFrame(p.Time)
		if ev != nil {
			events = append(events, *ev)
		}
		c.cur = idx
	}
	if c.cur < 0 {
		c.notify(events)
		return
	}

	off := c.cur * c.frameSize
	c.written += copy(c.mem[off+c.written:off+c.frameSize], p.Payload)
	if c.written == c.frameSize {
		if ev, ok := c.commit(c.cur, p.Time); ok {
			events = append(events, ev)
		}
		c.cur = -1
		c.written = 0
	}
	c.notify(events)
}

func (c *Capture) notify(events []CaptureEvent) {
	if c.cfg.Notify == nil {
		return
	}
	for _, ev := range events {
		c.cfg.Notify(ev)
	}
}

// beginFrame picks the slot for a new frame: the next EMPTY slot, else the
// oldest FILLED one when dropping is enabled. It returns -1 when the frame
// has to be discarded.
func (c *Capture) beginFrame(t time.Time) (int, *CaptureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || !c.listening {
		return -1, nil
	}
	n := len(c.slots)
	for i := 0; i < n; i++ {
		idx := (c.next + i) % n
		if c.slots[idx].state == slotEmpty {
			c.slots[idx].state = slotFilling
			c.next = (idx + 1) % n
			return idx, nil
		}
	}
	if c.cfg.DropFrames && len(c.filled) > 0 {
		idx := c.filled[0]
		c.filled = c.filled[1:]
		c.slots[idx].state = slotFilling
		c.stats.Dropped++
		return idx, &CaptureEvent{Kind: EventFrameDropped, Sequence: c.slots[idx].seq, Time: t}
	}
	c.stats.Overruns++
	return -1, &CaptureEvent{Kind: EventOverrun, Time: t}
}

func (c *Capture) commit(idx int, t time.Time) (CaptureEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return CaptureEvent{}, false
	}
	if t.IsZero() {
		t = time.Now()
	}
	s := &c.slots[idx]
	s.state = slotFilled
	s.seq = c.seq
	s.ts = t
	c.seq++
	c.filled = append(c.filled, idx)
	c.stats.Frames++
	c.cond.Broadcast()
	return CaptureEvent{Kind: EventFrameFilled, Sequence: s.seq, Time: t}, true
}

// Drain feeds packets from a channel into the ring until ctx is done, the
// channel is closed or the capture is released.
func (c *Capture) Drain(ctx context.Context, packets <-chan IsoPacket) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			c.HandlePacket(p)
			if c.isReleased() {
				return nil
			}
		}
	}
}

func (c *Capture) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Frame is a checked-out slot.
type Frame struct {
	Sequence     uint64
	Timestamp    time.Time
	FramesBehind int
	Geometry     FrameGeometry

	capture *Capture
	slot    int
	gen     uint64
}

func (f *Frame) validLocked() bool {
	return !f.capture.released && f.heldLocked()
}

// heldLocked reports whether the frame's slot is still checked out to it,
// before or after Release.
func (f *Frame) heldLocked() bool {
	c := f.capture
	if f.slot < 0 || f.slot >= len(c.slots) {
		return false
	}
	s := c.slots[f.slot]
	return s.state == slotCheckedOut && s.gen == f.gen
}

// Valid reports whether the frame is still checked out.
func (f *Frame) Valid() bool {
	if f == nil || f.capture == nil {
		return false
	}
	f.capture.mu.Lock()
	defer f.capture.mu.Unlock()
	return f.validLocked()
}

// Data returns the frame payload, or nil once the frame has been returned
// or the capture released. A slice obtained before Release stays readable
// until the frame is handed back; it must not be used after DoneWithBuffer.
func (f *Frame) Data() []byte {
	if f == nil || f.capture == nil {
		return nil
	}
	c := f.capture
	c.mu.Lock()
	defer c.mu.Unlock()
	if !f.validLocked() {
		return nil
	}
	off := f.slot * c.frameSize
	return c.mem[off : off+c.frameSize : off+c.frameSize]
}

// Capture dequeues the oldest filled frame. CaptureWait blocks until one is
// filled, the capture stops listening or ctx is done; CapturePoll returns
// ErrNoFrame at once when nothing is filled.
func (c *Capture) Capture(ctx context.Context, policy CapturePolicy) (*Frame, error) {
	const op = "capture"
	if policy != CaptureWait && policy != CapturePoll {
		return nil, errorf(op, CodeInvalidCaptureMode, "policy %d", policy)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if policy == CaptureWait && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer stop()
	}

	for len(c.filled) == 0 {
		if c.released || !c.listening {
			return nil, newError(op, CodeCaptureNotSet, nil)
		}
		if policy == CapturePoll {
			return nil, newError(op, CodeNoFrame, nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.cond.Wait()
	}
	if c.released {
		return nil, newError(op, CodeCaptureNotSet, nil)
	}

	idx := c.filled[0]
	c.filled = c.filled[1:]
	s := &c.slots[idx]
	s.state = slotCheckedOut
	s.gen++
	return &Frame{
		Sequence:     s.seq,
		Timestamp:    s.ts,
		FramesBehind: len(c.filled),
		Geometry:     c.geometry,
		capture:      c,
		slot:         idx,
		gen:          s.gen,
	}, nil
}

// DoneWithBuffer returns a frame's slot to the ring. After Release it
// still takes the slot back, freeing the ring memory with the last
// outstanding frame, and reports ErrCaptureNotSet.
func (c *Capture) DoneWithBuffer(f *Frame) error {
	const op = "done with buffer"
	c.mu.Lock()
	released := c.released
	if f == nil || f.capture != c || !f.heldLocked() {
		c.mu.Unlock()
		if released {
			return newError(op, CodeCaptureNotSet, nil)
		}
		return errorf(op, CodeInvalidArgument, "frame is not checked out from this capture")
	}
	s := &c.slots[f.slot]
	s.state = slotEmpty
	s.gen++
	last := released && c.checkedOutLocked() == 0
	c.mu.Unlock()

	if !released {
		return nil
	}
	if last {
		if err := c.freeMemory(); err != nil {
			c.logger.Warn("failed to free ring memory", "error", err)
		}
	}
	return newError(op, CodeCaptureNotSet, nil)
}

func (c *Capture) checkedOutLocked() int {
	n := 0
	for _, sl := range c.slots {
		if sl.state == slotCheckedOut {
			n++
		}
	}
	return n
}

// freeMemory unmaps the ring exactly once. Lock order is writeMu, then mu.
func (c *Capture) freeMemory() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.freeOnce.Do(func() {
		c.mu.Lock()
		mem := c.mem
		c.mem = nil
		c.mu.Unlock()
		c.freeErr = freeRing(mem)
	})
	return c.freeErr
}

// OnFrame starts one goroutine that hands every filled frame to handler and
// returns the slot afterwards. It consumes the same queue as Capture.
func (c *Capture) OnFrame(handler func(*Frame)) error {
	const op = "on frame"
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return newError(op, CodeCaptureNotSet, nil)
	}
	if c.handlerCancel != nil {
		c.mu.Unlock()
		return errorf(op, CodeCaptureRunning, "a frame handler is already registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.handlerCancel = cancel
	c.mu.Unlock()

	go func() {
		for {
			f, err := c.Capture(ctx, CaptureWait)
			if err != nil {
				return
			}
			handler(f)
			// also hands the slot back after a concurrent Release
			_ = c.DoneWithBuffer(f)
		}
	}()
	return nil
}

// Stats returns a snapshot of the ring counters.
func (c *Capture) Stats() CaptureStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Filled = len(c.filled)
	s.CheckedOut = c.checkedOutLocked()
	return s
}

// Geometry returns the frame layout the ring was sized for.
func (c *Capture) Geometry() FrameGeometry { return c.geometry }

// Channel returns the allocated ISO channel.
func (c *Capture) Channel() int { return c.channel }

// BandwidthUnits returns the bus bandwidth held by the capture.
func (c *Capture) BandwidthUnits() uint32 { return c.units }

// Config returns the configuration the capture was set up with.
func (c *Capture) Config() CaptureConfig { return c.cfg }

// Unlisten stops packet delivery. Frames already filled can still be
// dequeued; blocked waiters with nothing to dequeue fail with
// ErrCaptureNotSet.
func (c *Capture) Unlisten() error {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return nil
	}
	c.listening = false
	c.cond.Broadcast()
	c.mu.Unlock()

	if c.cam == nil {
		return nil
	}
	if err := c.cam.bus.StopIsoListen(c.cam.info.Port, c.channel); err != nil {
		return newError("unlisten", CodeFailure, err)
	}
	return nil
}

// Release stops delivery, frees the channel, bandwidth and ring memory, and
// fails every blocked Capture call. Outstanding frames become invalid, but
// their data stays mapped until they are handed back with DoneWithBuffer.
// It may be called any number of times, including from a frame handler.
func (c *Capture) Release() error {
	const op = "release capture"
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	wasListening := c.listening
	c.released = true
	c.listening = false
	cancel := c.handlerCancel
	stats := c.stats
	outstanding := c.checkedOutLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var errs []error
	if c.cam != nil {
		port := c.cam.info.Port
		if wasListening {
			if err := c.cam.bus.StopIsoListen(port, c.channel); err != nil {
				errs = append(errs, newError(op, CodeFailure, err))
			}
		}
		if c.units > 0 {
			if err := c.cam.bus.ReleaseBandwidth(port, c.units); err != nil {
				errs = append(errs, newError(op, CodeBandwidthAllocation, err))
			}
		}
		if c.channel >= 0 {
			if err := c.cam.bus.ReleaseIsoChannel(port, c.channel); err != nil {
				errs = append(errs, newError(op, CodeIsoChannelAllocation, err))
			}
		}
		c.cam.detachCapture(c)
	}

	// frames still checked out keep the memory mapped; the last
	// DoneWithBuffer frees it
	if outstanding == 0 {
		if err := c.freeMemory(); err != nil {
			errs = append(errs, newError(op, CodeFailure, err))
		}
	} else {
		c.logger.Debug("ring memory held by checked out frames", "frames", outstanding)
	}

	c.logger.Info("capture released",
		"channel", c.channel,
		"frames", stats.Frames,
		"dropped", stats.Dropped,
		"overruns", stats.Overruns)
	return errors.Join(errs...)
}
