package iidc

import (
	"math"
	"time"
)

// Number of VALUE_SETTING reads before giving up on the camera.
const valueSettingPolls = 50

func (c *Camera) format7Base(mode VideoMode) (uint64, error) {
	const op = "format7"
	if !mode.IsScalable() {
		return 0, errorf(op, CodeInvalidVideoMode, "%s is not a Format7 mode", mode)
	}
	idx := mode - format7Min
	c.mu.Lock()
	base := c.f7Base[idx]
	c.mu.Unlock()
	if base != 0 {
		return base, nil
	}
	q, err := c.ReadRegister(regVCSRInqBase + 4*uint64(idx))
	if err != nil {
		return 0, err
	}
	if q == 0 {
		return 0, errorf(op, CodeFunctionNotSupported, "%s has no CSR", mode)
	}
	base = uint64(q) * 4
	c.mu.Lock()
	c.f7Base[idx] = base
	c.mu.Unlock()
	return base, nil
}

func (c *Camera) readFormat7(mode VideoMode, off uint64) (uint32, error) {
	base, err := c.format7Base(mode)
	if err != nil {
		return 0, err
	}
	return c.readCSR(base + off)
}

func (c *Camera) writeFormat7(mode VideoMode, off uint64, q uint32) error {
	base, err := c.format7Base(mode)
	if err != nil {
		return err
	}
	return c.writeCSR(base+off, q)
}

func (c *Camera) readFormat7Pair(mode VideoMode, off uint64) (uint32, uint32, error) {
	q, err := c.readFormat7(mode, off)
	if err != nil {
		return 0, 0, err
	}
	hi, lo := pair16(q)
	return hi, lo, nil
}

// Format7MaxImageSize returns the sensor area available to the mode.
func (c *Camera) Format7MaxImageSize(mode VideoMode) (width, height uint32, err error) {
	return c.readFormat7Pair(mode, f7MaxImageSize)
}

// Format7UnitSize returns the size granularity.
func (c *Camera) Format7UnitSize(mode VideoMode) (h, v uint32, err error) {
	return c.readFormat7Pair(mode, f7UnitSize)
}

// Format7UnitPosition returns the position granularity. Cameras before
// 1.30 use the size unit.
func (c *Camera) Format7UnitPosition(mode VideoMode) (h, v uint32, err error) {
	if c.version >= IIDC130 {
		h, v, err = c.readFormat7Pair(mode, f7UnitPosition)
		if err != nil {
			return 0, 0, err
		}
		if h != 0 && v != 0 {
			return h, v, nil
		}
	}
	return c.Format7UnitSize(mode)
}

// Format7ImagePosition returns the ROI origin.
func (c *Camera) Format7ImagePosition(mode VideoMode) (left, top uint32, err error) {
	return c.readFormat7Pair(mode, f7ImagePosition)
}

// Format7ImageSize returns the ROI size.
func (c *Camera) Format7ImageSize(mode VideoMode) (width, height uint32, err error) {
	return c.readFormat7Pair(mode, f7ImageSize)
}

// SetFormat7ImagePosition moves the ROI origin.
func (c *Camera) SetFormat7ImagePosition(mode VideoMode, left, top uint32) error {
	const op = "set format7 position"
	w, h, err := c.Format7ImageSize(mode)
	if err != nil {
		return err
	}
	if err := c.checkROI(op, mode, left, top, w, h); err != nil {
		return err
	}
	if err := c.writeFormat7(mode, f7ImagePosition, packPair16(left, top)); err != nil {
		return err
	}
	return c.format7Handshake(mode)
}

// SetFormat7ImageSize resizes the ROI.
func (c *Camera) SetFormat7ImageSize(mode VideoMode, width, height uint32) error {
	const op = "set format7 size"
	left, top, err := c.Format7ImagePosition(mode)
	if err != nil {
		return err
	}
	if err := c.checkROI(op, mode, left, top, width, height); err != nil {
		return err
	}
	if err := c.writeFormat7(mode, f7ImageSize, packPair16(width, height)); err != nil {
		return err
	}
	return c.format7Handshake(mode)
}

func (c *Camera) checkROI(op string, mode VideoMode, left, top, width, height uint32) error {
	maxW, maxH, err := c.Format7MaxImageSize(mode)
	if err != nil {
		return err
	}
	if width == 0 || height == 0 || left+width > maxW || top+height > maxH {
		return errorf(op, CodeValueOutOfRange, "roi %dx%d+%d+%d exceeds %dx%d", width, height, left, top, maxW, maxH)
	}
	uw, uh, err := c.Format7UnitSize(mode)
	if err != nil {
		return err
	}
	if uw != 0 && width%uw != 0 || uh != 0 && height%uh != 0 {
		return errorf(op, CodeInvalidArgument, "size %dx%d is not a multiple of %dx%d", width, height, uw, uh)
	}
	pw, ph, err := c.Format7UnitPosition(mode)
	if err != nil {
		return err
	}
	if pw != 0 && left%pw != 0 || ph != 0 && top%ph != 0 {
		return errorf(op, CodeInvalidArgument, "position %d,%d is not a multiple of %dx%d", left, top, pw, ph)
	}
	return nil
}

// Format7ColorCodings lists the codings the mode supports.
func (c *Camera) Format7ColorCodings(mode VideoMode) ([]ColorCoding, error) {
	q, err := c.readFormat7(mode, f7ColorCodingInq)
	if err != nil {
		return nil, err
	}
	var codings []ColorCoding
	for cc := ColorMono8; cc <= ColorRaw16; cc++ {
		if q&(bit31>>uint32(cc-ColorMono8)) != 0 {
			codings = append(codings, cc)
		}
	}
	return codings, nil
}

// Format7ColorCoding returns the selected coding.
func (c *Camera) Format7ColorCoding(mode VideoMode) (ColorCoding, error) {
	q, err := c.readFormat7(mode, f7ColorCodingID)
	if err != nil {
		return 0, err
	}
	cc := ColorMono8 + ColorCoding(q>>24)
	if !cc.valid() {
		return 0, errorf("format7 color coding", CodeInvalidColorCoding, "id %d", q>>24)
	}
	return cc, nil
}

// SetFormat7ColorCoding selects a coding from Format7ColorCodings.
func (c *Camera) SetFormat7ColorCoding(mode VideoMode, coding ColorCoding) error {
	const op = "set format7 color coding"
	if !coding.valid() {
		return errorf(op, CodeInvalidColorCoding, "coding %d", uint32(coding))
	}
	supported, err := c.Format7ColorCodings(mode)
	if err != nil {
		return err
	}
	ok := false
	for _, s := range supported {
		ok = ok || s == coding
	}
	if !ok {
		return errorf(op, CodeInvalidColorCoding, "%s not supported by %s", coding, mode)
	}
	if err := c.writeFormat7(mode, f7ColorCodingID, uint32(coding-ColorMono8)<<24); err != nil {
		return err
	}
	return c.format7Handshake(mode)
}

// Format7ColorFilter returns the Bayer tile of a raw mode.
func (c *Camera) Format7ColorFilter(mode VideoMode) (ColorFilter, error) {
	const op = "format7 color filter"
	if c.version < IIDC131 {
		return 0, errorf(op, CodeFunctionNotSupported, "IIDC %s", c.version)
	}
	q, err := c.readFormat7(mode, f7ColorFilterID)
	if err != nil {
		return 0, err
	}
	f := FilterRGGB + ColorFilter(q>>24)
	if f > FilterBGGR {
		return 0, errorf(op, CodeInvalidColorFilter, "filter id %d", q>>24)
	}
	return f, nil
}

// Format7PacketParameters returns the packet size unit and maximum in bytes.
func (c *Camera) Format7PacketParameters(mode VideoMode) (unit, max uint32, err error) {
	return c.readFormat7Pair(mode, f7PacketPara)
}

// Format7PacketSize returns the configured bytes per packet.
func (c *Camera) Format7PacketSize(mode VideoMode) (uint32, error) {
	bpp, _, err := c.readFormat7Pair(mode, f7BytePerPacket)
	return bpp, err
}

// Format7RecommendedPacketSize returns the camera's suggestion, or 0.
func (c *Camera) Format7RecommendedPacketSize(mode VideoMode) (uint32, error) {
	_, rec, err := c.readFormat7Pair(mode, f7BytePerPacket)
	return rec, err
}

// SetFormat7PacketSize sets the bytes per packet, which also fixes the
// framerate of the mode.
func (c *Camera) SetFormat7PacketSize(mode VideoMode, bytes uint32) error {
	const op = "set format7 packet size"
	unit, max, err := c.Format7PacketParameters(mode)
	if err != nil {
		return err
	}
	if bytes == 0 || bytes > max {
		return errorf(op, CodeValueOutOfRange, "packet size %d outside (0, %d]", bytes, max)
	}
	if unit != 0 && bytes%unit != 0 {
		return errorf(op, CodeInvalidArgument, "packet size %d is not a multiple of %d", bytes, unit)
	}
	if err := c.writeFormat7(mode, f7BytePerPacket, packPair16(bytes, 0)); err != nil {
		return err
	}
	return c.format7Handshake(mode)
}

// Format7PixelNumber returns the number of pixels in the ROI.
func (c *Camera) Format7PixelNumber(mode VideoMode) (uint32, error) {
	return c.readFormat7(mode, f7PixelNumber)
}

// Format7TotalBytes returns the frame size including padding.
func (c *Camera) Format7TotalBytes(mode VideoMode) (uint64, error) {
	hi, err := c.readFormat7(mode, f7TotalBytesHi)
	if err != nil {
		return 0, err
	}
	lo, err := c.readFormat7(mode, f7TotalBytesLo)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// Format7PacketsPerFrame returns the number of packets in one frame.
func (c *Camera) Format7PacketsPerFrame(mode VideoMode) (uint32, error) {
	if c.version < IIDC131 {
		bpp, err := c.Format7PacketSize(mode)
		if err != nil || bpp == 0 {
			return 0, err
		}
		total, err := c.Format7TotalBytes(mode)
		if err != nil {
			return 0, err
		}
		return uint32((total + uint64(bpp) - 1) / uint64(bpp)), nil
	}
	return c.readFormat7(mode, f7PacketPerFrame)
}

// Format7FrameInterval returns the frame period in seconds, if the camera
// reports one.
func (c *Camera) Format7FrameInterval(mode VideoMode) (float32, error) {
	q, err := c.readFormat7(mode, f7FrameInterval)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(q), nil
}

// ROI is a complete Format7 configuration.
type ROI struct {
	ColorCoding ColorCoding
	// PacketSize in bytes; 0 selects the recommended size, or the maximum
	// when the camera has no recommendation.
	PacketSize uint32
	Left, Top  uint32
	Width      uint32
	Height     uint32
}

// SetFormat7ROI applies coding, position, size and packet size in the
// order the camera needs to recompute its packet parameters.
func (c *Camera) SetFormat7ROI(mode VideoMode, roi ROI) error {
	const op = "set format7 roi"
	if err := c.checkROI(op, mode, roi.Left, roi.Top, roi.Width, roi.Height); err != nil {
		return err
	}
	if err := c.SetFormat7ColorCoding(mode, roi.ColorCoding); err != nil {
		return err
	}
	// Move to the origin first so the intermediate ROI stays inside the sensor.
	if err := c.writeFormat7(mode, f7ImagePosition, packPair16(0, 0)); err != nil {
		return err
	}
	if err := c.writeFormat7(mode, f7ImageSize, packPair16(roi.Width, roi.Height)); err != nil {
		return err
	}
	if err := c.writeFormat7(mode, f7ImagePosition, packPair16(roi.Left, roi.Top)); err != nil {
		return err
	}
	if err := c.format7Handshake(mode); err != nil {
		return err
	}
	size := roi.PacketSize
	if size == 0 {
		rec, err := c.Format7RecommendedPacketSize(mode)
		if err != nil {
			return err
		}
		if size = rec; size == 0 {
			if _, size, err = c.Format7PacketParameters(mode); err != nil {
				return err
			}
		}
	}
	return c.SetFormat7PacketSize(mode, size)
}

// format7Handshake asks the camera to recompute the packet parameters and
// reports the error flags it raises. Cameras without VALUE_SETTING skip it.
func (c *Camera) format7Handshake(mode VideoMode) error {
	const op = "format7 value setting"
	if c.version < IIDC130 {
		return nil
	}
	q, err := c.readFormat7(mode, f7ValueSetting)
	if err != nil {
		return err
	}
	if !decodeValueSetting(q).present {
		return nil
	}
	if err := c.writeFormat7(mode, f7ValueSetting, vsSetting1); err != nil {
		return err
	}
	for i := 0; i < valueSettingPolls; i++ {
		if q, err = c.readFormat7(mode, f7ValueSetting); err != nil {
			return err
		}
		vs := decodeValueSetting(q)
		if vs.setting1 {
			time.Sleep(time.Millisecond)
			continue
		}
		switch {
		case vs.err1:
			return newError(op, CodeFormat7ErrorFlag1, nil)
		case vs.err2:
			return newError(op, CodeFormat7ErrorFlag2, nil)
		}
		return nil
	}
	return errorf(op, CodeFailure, "camera did not clear setting_1")
}
