package iidc

import (
	"context"
	"errors"
)

// CaptureConfig sizes a capture ring.
type CaptureConfig struct {
	// Buffers is the number of frame slots.
	Buffers int
	// DropFrames recycles the oldest filled slot when the ring is full.
	// Without it, new frames are discarded and counted as overruns.
	DropFrames bool
	Speed      IsoSpeed
	// Notify is called on the delivery goroutine for every filled, dropped
	// or discarded frame. It must not block.
	Notify func(CaptureEvent)
}

// DefaultCaptureConfig returns four buffers at S400 with frame dropping.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{Buffers: 4, DropFrames: true, Speed: Speed400}
}

// SetupCapture resolves the frame geometry of the current mode, allocates
// an ISO channel and bandwidth, programs the camera and registers a ring
// with the transport. Transmission is started separately with
// StartIsoTransmission.
func (c *Camera) SetupCapture(cfg CaptureConfig) (*Capture, error) {
	const op = "setup capture"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}
	if cfg.Buffers < 1 {
		return nil, errorf(op, CodeInvalidArgument, "buffer count %d", cfg.Buffers)
	}
	if !cfg.Speed.valid() {
		return nil, errorf(op, CodeInvalidIsoSpeed, "speed %d", uint32(cfg.Speed))
	}

	c.mu.Lock()
	if c.capture != nil {
		c.mu.Unlock()
		return nil, newError(op, CodeCaptureRunning, nil)
	}
	// reserve the slot so concurrent setups fail fast
	placeholder := &Capture{}
	c.capture = placeholder
	c.mu.Unlock()

	ring, err := c.setupCapture(op, cfg)

	c.mu.Lock()
	closed := c.closed
	if err != nil || closed {
		c.capture = nil
	} else {
		c.capture = ring
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// Close ran while the ring was being set up and only saw the placeholder
	if closed {
		_ = ring.Release()
		return nil, newError(op, CodeCameraNotInitialized, nil)
	}
	return ring, nil
}

func (c *Camera) setupCapture(op string, cfg CaptureConfig) (*Capture, error) {
	g, err := c.Geometry()
	if err != nil {
		return nil, err
	}
	opMode, err := c.OperationMode()
	if err != nil {
		return nil, err
	}
	if opMode == OperationModeLegacy && cfg.Speed > legacySpeedMax {
		return nil, errorf(op, CodeInvalidIsoSpeed, "%s requires 1394b operation mode", cfg.Speed)
	}
	units, err := BandwidthUnits(g.QuadletsPerPacket, cfg.Speed)
	if err != nil {
		return nil, err
	}

	port := c.info.Port
	channel, err := c.bus.AllocateIsoChannel(port)
	if err != nil {
		return nil, newError(op, CodeIsoChannelAllocation, err)
	}
	if err := c.bus.AllocateBandwidth(port, units); err != nil {
		_ = c.bus.ReleaseIsoChannel(port, channel)
		return nil, newError(op, CodeBandwidthAllocation, err)
	}
	undo := func() {
		_ = c.bus.ReleaseBandwidth(port, units)
		_ = c.bus.ReleaseIsoChannel(port, channel)
	}
	if err := c.SetIsoChannelAndSpeed(channel, cfg.Speed); err != nil {
		undo()
		return nil, err
	}

	ring, err := newRing(g, cfg, c.logger)
	if err != nil {
		undo()
		return nil, err
	}
	ring.cam = c
	ring.channel = channel
	ring.units = units

	if err := c.bus.StartIsoListen(port, channel, ring); err != nil {
		ring.mu.Lock()
		ring.listening = false
		ring.mu.Unlock()
		_ = ring.Release()
		return nil, newError(op, CodeFailure, err)
	}

	c.logger.Info("capture set up",
		"mode", g.Mode.String(),
		"width", g.Width,
		"height", g.Height,
		"buffers", cfg.Buffers,
		"drop_frames", cfg.DropFrames,
		"channel", channel,
		"speed", cfg.Speed.String(),
		"bandwidth_units", units)
	return ring, nil
}

// Capture returns the active capture, or nil.
func (c *Camera) Capture() *Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture != nil && c.capture.cam == nil {
		// setup in progress
		return nil
	}
	return c.capture
}

func (c *Camera) detachCapture(r *Capture) {
	c.mu.Lock()
	if c.capture == r {
		c.capture = nil
	}
	c.mu.Unlock()
}

// CaptureAll dequeues one frame from each capture. On failure the frames
// already dequeued are returned to their rings.
func CaptureAll(ctx context.Context, policy CapturePolicy, captures ...*Capture) ([]*Frame, error) {
	frames := make([]*Frame, 0, len(captures))
	for _, c := range captures {
		f, err := c.Capture(ctx, policy)
		if err != nil {
			var errs []error
			for i, done := range frames {
				if e := captures[i].DoneWithBuffer(done); e != nil {
					errs = append(errs, e)
				}
			}
			return nil, errors.Join(append([]error{err}, errs...)...)
		}
		frames = append(frames, f)
	}
	return frames, nil
}
