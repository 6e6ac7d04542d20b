package iidc

// SessionState is the streaming state of a camera.
type SessionState int

// Session states.
const (
	SessionIdle SessionState = iota
	SessionChannelSet
	SessionTransmitting
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionChannelSet:
		return "channel_set"
	case SessionTransmitting:
		return "transmitting"
	}
	return "unknown"
}

// IsoState is the streaming session of a camera. Channel and Speed keep
// their last programmed values after transmission stops.
type IsoState struct {
	State   SessionState `json:"state"`
	Channel int          `json:"channel"`
	Speed   IsoSpeed     `json:"speed"`
	B1394   bool         `json:"b1394"`
	IsoOn   bool         `json:"iso_on"`
}

// IsoState returns the driver's view of the streaming session. Channel is
// -1 until one has been programmed.
func (c *Camera) IsoState() IsoState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iso
}

// SetIsoChannelAndSpeed programs ISO_DATA. The 1394b layout is used when
// the camera supports it and is already in 1394b operation mode; otherwise
// the legacy layout is used, which cannot carry speeds above S400.
func (c *Camera) SetIsoChannelAndSpeed(channel int, speed IsoSpeed) error {
	const op = "set iso channel"
	if !speed.valid() {
		return errorf(op, CodeInvalidIsoSpeed, "speed %d", uint32(speed))
	}
	c.mu.Lock()
	transmitting := c.iso.State == SessionTransmitting
	c.mu.Unlock()
	if transmitting {
		return errorf(op, CodeCaptureRunning, "stop iso transmission first")
	}

	inq, err := c.ReadRegister(regBasicFuncInq)
	if err != nil {
		return err
	}
	cur, err := c.ReadRegister(regIsoData)
	if err != nil {
		return err
	}

	d := isoData{speed: speed}
	if decodeBasicFunctions(inq).is1394b && cur&isoDataB1394 != 0 {
		if channel < 0 || channel > 63 {
			return errorf(op, CodeInvalidArgument, "channel %d outside [0, 63]", channel)
		}
		d.b1394 = true
	} else {
		if speed > legacySpeedMax {
			return errorf(op, CodeInvalidIsoSpeed,
				"%s requested in legacy operation mode, switch to 1394b first", speed)
		}
		if channel < 0 || channel > 15 {
			return errorf(op, CodeInvalidArgument, "channel %d outside [0, 15]", channel)
		}
	}
	d.channel = uint32(channel)

	if err := c.WriteRegister(regIsoData, d.encode()); err != nil {
		return err
	}

	c.mu.Lock()
	c.iso.Channel = channel
	c.iso.Speed = speed
	c.iso.B1394 = d.b1394
	c.iso.State = SessionChannelSet
	c.mu.Unlock()
	c.logger.Debug("iso channel set", "channel", channel, "speed", speed.String(), "1394b", d.b1394)
	return nil
}

// IsoChannelAndSpeed reads ISO_DATA.
func (c *Camera) IsoChannelAndSpeed() (channel int, speed IsoSpeed, err error) {
	q, err := c.ReadRegister(regIsoData)
	if err != nil {
		return 0, 0, err
	}
	d := decodeIsoData(q)
	return int(d.channel), d.speed, nil
}

// StartIsoTransmission sets ISO_EN. Starting an already transmitting
// session is a no-op.
func (c *Camera) StartIsoTransmission() error {
	c.mu.Lock()
	if c.iso.State == SessionTransmitting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.WriteRegister(regIsoEnable, bit31); err != nil {
		return err
	}

	c.mu.Lock()
	c.iso.State = SessionTransmitting
	c.iso.IsoOn = true
	c.mu.Unlock()
	c.logger.Debug("iso transmission started")
	return nil
}

// StopIsoTransmission clears ISO_EN. It always succeeds when the camera
// answers, whatever the current state.
func (c *Camera) StopIsoTransmission() error {
	if err := c.WriteRegister(regIsoEnable, 0); err != nil {
		return err
	}
	c.mu.Lock()
	was := c.iso.State
	c.iso.State = SessionIdle
	c.iso.IsoOn = false
	c.mu.Unlock()
	if was == SessionTransmitting {
		c.logger.Debug("iso transmission stopped")
	}
	return nil
}

// IsoStatus reads ISO_EN back from the camera and updates the session.
func (c *Camera) IsoStatus() (bool, error) {
	q, err := c.ReadRegister(regIsoEnable)
	if err != nil {
		return false, err
	}
	on := q&bit31 != 0
	c.mu.Lock()
	c.iso.IsoOn = on
	switch {
	case on:
		c.iso.State = SessionTransmitting
	case c.iso.State == SessionTransmitting:
		c.iso.State = SessionIdle
	}
	c.mu.Unlock()
	return on, nil
}
