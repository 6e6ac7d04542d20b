package iidc

// VideoMode reads the current format and mode registers.
func (c *Camera) VideoMode() (VideoMode, error) {
	fq, err := c.ReadRegister(regCurVideoFormat)
	if err != nil {
		return 0, err
	}
	mq, err := c.ReadRegister(regCurVideoMode)
	if err != nil {
		return 0, err
	}
	return modeFromRegisters(VideoFormat(unpackField3(fq)), unpackField3(mq))
}

// SetVideoMode writes the format and mode registers.
func (c *Camera) SetVideoMode(mode VideoMode) error {
	format, idx, err := mode.split()
	if err != nil {
		return err
	}
	if err := c.WriteRegister(regCurVideoFormat, packField3(uint32(format))); err != nil {
		return err
	}
	if err := c.WriteRegister(regCurVideoMode, packField3(idx)); err != nil {
		return err
	}
	c.logger.Debug("video mode set", "mode", mode.String())
	return nil
}

// Framerate reads the current fixed framerate.
func (c *Camera) Framerate() (Framerate, error) {
	q, err := c.ReadRegister(regCurFrameRate)
	if err != nil {
		return 0, err
	}
	f := Framerate1_875 + Framerate(unpackField3(q))
	if _, err := f.index(); err != nil {
		return 0, err
	}
	return f, nil
}

// SetFramerate writes the fixed framerate. Format7 modes derive their rate
// from the packet size instead.
func (c *Camera) SetFramerate(rate Framerate) error {
	const op = "set framerate"
	idx, err := rate.index()
	if err != nil {
		return err
	}
	mode, err := c.VideoMode()
	if err != nil {
		return err
	}
	if mode.IsScalable() {
		return errorf(op, CodeInvalidVideoFormat, "%s has no fixed framerate", mode)
	}
	return c.WriteRegister(regCurFrameRate, packField3(idx))
}

// SupportedModes lists the modes advertised by the format and mode
// inquiry registers.
func (c *Camera) SupportedModes() ([]VideoMode, error) {
	formats, err := c.ReadRegister(regVFormatInq)
	if err != nil {
		return nil, err
	}
	var modes []VideoMode
	for _, format := range []VideoFormat{Format0, Format1, Format2, Format6, Format7} {
		if formats&(bit31>>uint32(format)) == 0 {
			continue
		}
		mq, err := c.ReadRegister(regVModeInqBase + 4*uint64(format))
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < 8; i++ {
			if mq&(bit31>>i) == 0 {
				continue
			}
			if m, err := modeFromRegisters(format, i); err == nil {
				modes = append(modes, m)
			}
		}
	}
	return modes, nil
}

// SupportedFramerates lists the framerates the camera advertises for a
// fixed mode.
func (c *Camera) SupportedFramerates(mode VideoMode) ([]Framerate, error) {
	const op = "supported framerates"
	format, idx, err := mode.split()
	if err != nil {
		return nil, err
	}
	if format != Format0 && format != Format1 && format != Format2 {
		return nil, errorf(op, CodeInvalidVideoMode, "%s has no fixed framerates", mode)
	}
	q, err := c.ReadRegister(regVRateInqBase + 0x20*uint64(format) + 4*uint64(idx))
	if err != nil {
		return nil, err
	}
	var rates []Framerate
	for i := uint32(0); i < framerateCount; i++ {
		if q&(bit31>>i) != 0 {
			rates = append(rates, Framerate1_875+Framerate(i))
		}
	}
	return rates, nil
}

// OperationMode reports which ISO_DATA layout is in use.
func (c *Camera) OperationMode() (OperationMode, error) {
	q, err := c.ReadRegister(regIsoData)
	if err != nil {
		return 0, err
	}
	if q&isoDataB1394 != 0 {
		return OperationMode1394B, nil
	}
	return OperationModeLegacy, nil
}

// SetOperationMode switches the ISO_DATA layout. 1394b needs a capable
// camera.
func (c *Camera) SetOperationMode(mode OperationMode) error {
	const op = "set operation mode"
	switch mode {
	case OperationModeLegacy:
		return c.modifyRegister(regIsoData, func(q uint32) uint32 { return q &^ isoDataB1394 })
	case OperationMode1394B:
		if !c.caps.B1394 {
			return errorf(op, CodeFunctionNotSupported, "camera is not 1394b capable")
		}
		return c.modifyRegister(regIsoData, func(q uint32) uint32 { return q | isoDataB1394 })
	}
	return errorf(op, CodeInvalidArgument, "operation mode %d", uint32(mode))
}

// SetOneShot requests a single frame while transmission is off.
func (c *Camera) SetOneShot(on bool) error {
	if !c.caps.OneShot {
		return errorf("one shot", CodeFunctionNotSupported, "")
	}
	return c.modifyRegister(regOneShot, func(q uint32) uint32 { return setBit(q, oneShotBit, on) })
}

// SetMultiShot requests count frames while transmission is off.
func (c *Camera) SetMultiShot(count uint16, on bool) error {
	if !c.caps.MultiShot {
		return errorf("multi shot", CodeFunctionNotSupported, "")
	}
	return c.modifyRegister(regOneShot, func(q uint32) uint32 {
		q = setBit(q, multiShotBit, on)
		return q&^shotCount | uint32(count)
	})
}

// SetPower switches the camera's power on or off.
func (c *Camera) SetPower(on bool) error {
	if !c.caps.PowerControl {
		return errorf("power", CodeFunctionNotSupported, "")
	}
	return c.modifyRegister(regPower, func(q uint32) uint32 { return setBit(q, bit31, on) })
}

// Reset returns every register to its factory default.
func (c *Camera) Reset() error {
	if err := c.WriteRegister(regInitialize, bit31); err != nil {
		return err
	}
	c.mu.Lock()
	c.features = newFeatureSet()
	c.iso = IsoState{Channel: -1}
	c.mu.Unlock()
	return nil
}

func (c *Camera) checkMemoryChannel(op string, channel uint32) error {
	if channel > c.caps.MemoryChannels {
		return errorf(op, CodeValueOutOfRange, "memory channel %d, camera has %d", channel, c.caps.MemoryChannels)
	}
	return nil
}

// MemorySave stores the current settings in a camera memory channel.
// Channel 0 holds factory defaults and cannot be written.
func (c *Camera) MemorySave(channel uint32) error {
	const op = "memory save"
	if channel == 0 {
		return errorf(op, CodeInvalidArgument, "channel 0 is read only")
	}
	if err := c.checkMemoryChannel(op, channel); err != nil {
		return err
	}
	if err := c.WriteRegister(regMemSaveCh, channel<<28); err != nil {
		return err
	}
	return c.WriteRegister(regMemorySave, bit31)
}

// MemoryBusy reports whether a save is still in progress.
func (c *Camera) MemoryBusy() (bool, error) {
	q, err := c.ReadRegister(regMemorySave)
	if err != nil {
		return false, err
	}
	return q&bit31 != 0, nil
}

// MemoryLoad restores settings from a memory channel.
func (c *Camera) MemoryLoad(channel uint32) error {
	const op = "memory load"
	if err := c.checkMemoryChannel(op, channel); err != nil {
		return err
	}
	if err := c.WriteRegister(regCurMemCh, channel<<28); err != nil {
		return err
	}
	c.mu.Lock()
	c.features = newFeatureSet()
	c.mu.Unlock()
	return nil
}

// MemoryChannel returns the channel the current settings came from.
func (c *Camera) MemoryChannel() (uint32, error) {
	q, err := c.ReadRegister(regCurMemCh)
	if err != nil {
		return 0, err
	}
	return q >> 28, nil
}

// DataDepth returns the number of significant bits per pixel component.
func (c *Camera) DataDepth() (uint32, error) {
	mode, err := c.VideoMode()
	if err != nil {
		return 0, err
	}
	var coding ColorCoding
	if mode.IsScalable() {
		if c.version >= IIDC131 {
			q, err := c.readFormat7(mode, f7DataDepth)
			if err == nil && q>>24 != 0 {
				return q >> 24, nil
			}
		}
		if coding, err = c.Format7ColorCoding(mode); err != nil {
			return 0, err
		}
	} else {
		if c.version >= IIDC131 {
			q, err := c.ReadRegister(regDataDepth)
			if err == nil && q>>24 != 0 {
				return q >> 24, nil
			}
		}
		if coding, err = ModeColorCoding(mode); err != nil {
			return 0, err
		}
	}
	switch coding {
	case ColorMono16, ColorMono16S, ColorRGB16, ColorRGB16S, ColorRaw16:
		return 16, nil
	}
	return 8, nil
}

// FrameGeometry describes the frames produced by the current mode.
type FrameGeometry struct {
	Mode              VideoMode   `json:"mode"`
	Framerate         Framerate   `json:"framerate,omitempty"`
	Width             uint32      `json:"width"`
	Height            uint32      `json:"height"`
	ColorCoding       ColorCoding `json:"color_coding"`
	QuadletsPerPacket uint32      `json:"quadlets_per_packet"`
	QuadletsPerFrame  uint32      `json:"quadlets_per_frame"`
}

// FrameBytes is the size of one frame.
func (g FrameGeometry) FrameBytes() int {
	return int(g.QuadletsPerFrame) * 4
}

// Geometry resolves the current mode into frame and packet sizes. Fixed
// modes come from the tables; Format7 modes are read from the camera.
func (c *Camera) Geometry() (FrameGeometry, error) {
	const op = "geometry"
	mode, err := c.VideoMode()
	if err != nil {
		return FrameGeometry{}, err
	}
	g := FrameGeometry{Mode: mode}
	switch {
	case mode.IsScalable():
		if g.Width, g.Height, err = c.Format7ImageSize(mode); err != nil {
			return g, err
		}
		if g.ColorCoding, err = c.Format7ColorCoding(mode); err != nil {
			return g, err
		}
		bpp, err := c.Format7PacketSize(mode)
		if err != nil {
			return g, err
		}
		if bpp == 0 {
			if bpp, err = c.Format7RecommendedPacketSize(mode); err != nil {
				return g, err
			}
		}
		if bpp == 0 {
			return g, errorf(op, CodeFunctionNotSupported, "%s has no packet size", mode)
		}
		g.QuadletsPerPacket = bpp / 4
	case mode == ModeEXIF:
		return g, errorf(op, CodeInvalidVideoMode, "EXIF capture is not supported")
	default:
		if g.Framerate, err = c.Framerate(); err != nil {
			return g, err
		}
		if g.QuadletsPerPacket, err = QuadletsPerPacket(mode, g.Framerate); err != nil {
			return g, err
		}
		gm, _ := fixedGeometry(mode)
		g.Width, g.Height, g.ColorCoding = gm.width, gm.height, gm.coding
	}
	if g.QuadletsPerFrame, err = FrameQuadlets(g.Width, g.Height, g.ColorCoding); err != nil {
		return g, err
	}
	return g, nil
}

// BandwidthUsage returns the bus allocation units the current mode needs
// at the current ISO speed.
func (c *Camera) BandwidthUsage() (uint32, error) {
	g, err := c.Geometry()
	if err != nil {
		return 0, err
	}
	q, err := c.ReadRegister(regIsoData)
	if err != nil {
		return 0, err
	}
	return BandwidthUnits(g.QuadletsPerPacket, decodeIsoData(q).speed)
}
