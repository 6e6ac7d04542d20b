package iidc

import (
	"fmt"
	"strings"
)

// VideoFormat is the IIDC format family a video mode belongs to.
type VideoFormat uint32

// Video formats. Values match the CUR_VIDEO_FORMAT register field.
const (
	Format0 VideoFormat = 0
	Format1 VideoFormat = 1
	Format2 VideoFormat = 2
	Format6 VideoFormat = 6
	Format7 VideoFormat = 7
)

// VideoMode enumerates every mode across formats 0, 1, 2, 6 and 7.
type VideoMode uint32

// Video modes.
const (
	Mode160x120YUV444 VideoMode = iota + 64
	Mode320x240YUV422
	Mode640x480YUV411
	Mode640x480YUV422
	Mode640x480RGB8
	Mode640x480Mono8
	Mode640x480Mono16
	Mode800x600YUV422
	Mode800x600RGB8
	Mode800x600Mono8
	Mode1024x768YUV422
	Mode1024x768RGB8
	Mode1024x768Mono8
	Mode800x600Mono16
	Mode1024x768Mono16
	Mode1280x960YUV422
	Mode1280x960RGB8
	Mode1280x960Mono8
	Mode1600x1200YUV422
	Mode1600x1200RGB8
	Mode1600x1200Mono8
	Mode1280x960Mono16
	Mode1600x1200Mono16
	ModeEXIF
	ModeFormat7_0
	ModeFormat7_1
	ModeFormat7_2
	ModeFormat7_3
	ModeFormat7_4
	ModeFormat7_5
	ModeFormat7_6
	ModeFormat7_7
)

const (
	format0Min = Mode160x120YUV444
	format0Max = Mode640x480Mono16
	format1Min = Mode800x600YUV422
	format1Max = Mode1024x768Mono16
	format2Min = Mode1280x960YUV422
	format2Max = Mode1600x1200Mono16
	format7Min = ModeFormat7_0
	format7Max = ModeFormat7_7
)

// Format returns the format family of the mode.
func (m VideoMode) Format() (VideoFormat, error) {
	f, _, err := m.split()
	return f, err
}

// split returns the format and the mode index within that format, as
// written to CUR_VIDEO_FORMAT and CUR_VIDEO_MODE.
func (m VideoMode) split() (VideoFormat, uint32, error) {
	switch {
	case m >= format0Min && m <= format0Max:
		return Format0, uint32(m - format0Min), nil
	case m >= format1Min && m <= format1Max:
		return Format1, uint32(m - format1Min), nil
	case m >= format2Min && m <= format2Max:
		return Format2, uint32(m - format2Min), nil
	case m == ModeEXIF:
		return Format6, 0, nil
	case m >= format7Min && m <= format7Max:
		return Format7, uint32(m - format7Min), nil
	}
	return 0, 0, errorf("video mode", CodeInvalidVideoMode, "mode %d does not belong to any format", uint32(m))
}

// IsScalable reports whether the mode is a Format7 mode.
func (m VideoMode) IsScalable() bool {
	return m >= format7Min && m <= format7Max
}

func modeFromRegisters(format VideoFormat, index uint32) (VideoMode, error) {
	var base, max VideoMode
	switch format {
	case Format0:
		base, max = format0Min, format0Max
	case Format1:
		base, max = format1Min, format1Max
	case Format2:
		base, max = format2Min, format2Max
	case Format6:
		base, max = ModeEXIF, ModeEXIF
	case Format7:
		base, max = format7Min, format7Max
	default:
		return 0, errorf("video mode", CodeInvalidVideoFormat, "format %d", uint32(format))
	}
	m := base + VideoMode(index)
	if m > max {
		return 0, errorf("video mode", CodeInvalidVideoMode, "format %d mode index %d", uint32(format), index)
	}
	return m, nil
}

func (m VideoMode) String() string {
	if m.IsScalable() {
		return fmt.Sprintf("FORMAT7_%d", m-format7Min)
	}
	if m == ModeEXIF {
		return "EXIF"
	}
	if g, ok := fixedGeometry(m); ok {
		return fmt.Sprintf("%dx%d_%s", g.width, g.height, g.coding)
	}
	return fmt.Sprintf("VideoMode(%d)", uint32(m))
}

// ParseVideoMode accepts the names produced by VideoMode.String.
func ParseVideoMode(s string) (VideoMode, error) {
	for m := format0Min; m <= format7Max; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, errorf("parse video mode", CodeInvalidVideoMode, "unknown mode %q", s)
}

// Framerate enumerates the fixed IIDC framerates.
type Framerate uint32

// Framerates.
const (
	Framerate1_875 Framerate = iota + 32
	Framerate3_75
	Framerate7_5
	Framerate15
	Framerate30
	Framerate60
	Framerate120
	Framerate240
)

const framerateCount = 8

func (f Framerate) index() (uint32, error) {
	if f < Framerate1_875 || f > Framerate240 {
		return 0, errorf("framerate", CodeInvalidFramerate, "framerate %d", uint32(f))
	}
	return uint32(f - Framerate1_875), nil
}

// FPS returns the framerate in frames per second.
func (f Framerate) FPS() float64 {
	i, err := f.index()
	if err != nil {
		return 0
	}
	return 1.875 * float64(uint32(1)<<i)
}

func (f Framerate) String() string {
	if _, err := f.index(); err != nil {
		return fmt.Sprintf("Framerate(%d)", uint32(f))
	}
	return fmt.Sprintf("%gfps", f.FPS())
}

// ParseFramerate accepts a value in frames per second such as "7.5" or "30".
func ParseFramerate(fps float64) (Framerate, error) {
	for f := Framerate1_875; f <= Framerate240; f++ {
		if f.FPS() == fps {
			return f, nil
		}
	}
	return 0, errorf("parse framerate", CodeInvalidFramerate, "unsupported framerate %g", fps)
}

// ColorCoding is the pixel encoding of a frame.
type ColorCoding uint32

// Color codings. The offset from ColorMono8 is the Format7 color coding ID.
const (
	ColorMono8 ColorCoding = iota + 352
	ColorYUV411
	ColorYUV422
	ColorYUV444
	ColorRGB8
	ColorMono16
	ColorRGB16
	ColorMono16S
	ColorRGB16S
	ColorRaw8
	ColorRaw16
)

var colorCodingNames = [...]string{
	"MONO8", "YUV411", "YUV422", "YUV444", "RGB8", "MONO16", "RGB16", "MONO16S", "RGB16S", "RAW8", "RAW16",
}

func (c ColorCoding) valid() bool {
	return c >= ColorMono8 && c <= ColorRaw16
}

func (c ColorCoding) String() string {
	if !c.valid() {
		return fmt.Sprintf("ColorCoding(%d)", uint32(c))
	}
	return colorCodingNames[c-ColorMono8]
}

// ParseColorCoding accepts names such as "MONO8" or "yuv422".
func ParseColorCoding(s string) (ColorCoding, error) {
	for i, name := range colorCodingNames {
		if strings.EqualFold(name, s) {
			return ColorMono8 + ColorCoding(i), nil
		}
	}
	return 0, errorf("parse color coding", CodeInvalidColorCoding, "unknown color coding %q", s)
}

// BitsPerPixel returns the storage size of one pixel in bits.
func (c ColorCoding) BitsPerPixel() (uint32, error) {
	switch c {
	case ColorMono8, ColorRaw8:
		return 8, nil
	case ColorYUV411:
		return 12, nil
	case ColorYUV422, ColorMono16, ColorMono16S, ColorRaw16:
		return 16, nil
	case ColorYUV444, ColorRGB8:
		return 24, nil
	case ColorRGB16, ColorRGB16S:
		return 48, nil
	}
	return 0, errorf("bits per pixel", CodeInvalidColorCoding, "color coding %d", uint32(c))
}

// ColorFilter is the elementary Bayer tile of a raw sensor.
type ColorFilter uint32

// Bayer tiles.
const (
	FilterRGGB ColorFilter = iota + 512
	FilterGBRG
	FilterGRBG
	FilterBGGR
)

func (f ColorFilter) String() string {
	switch f {
	case FilterRGGB:
		return "RGGB"
	case FilterGBRG:
		return "GBRG"
	case FilterGRBG:
		return "GRBG"
	case FilterBGGR:
		return "BGGR"
	}
	return fmt.Sprintf("ColorFilter(%d)", uint32(f))
}

// IsoSpeed is the bus speed code.
type IsoSpeed uint32

// ISO speeds. Values are the register codes.
const (
	Speed100 IsoSpeed = iota
	Speed200
	Speed400
	Speed800
	Speed1600
	Speed3200
)

// legacySpeedMax is the fastest speed the legacy ISO_DATA layout can carry.
const legacySpeedMax = Speed400

func (s IsoSpeed) valid() bool { return s <= Speed3200 }

// Mbps returns the nominal bus speed.
func (s IsoSpeed) Mbps() int {
	if !s.valid() {
		return 0
	}
	return 100 << s
}

func (s IsoSpeed) String() string {
	if !s.valid() {
		return fmt.Sprintf("IsoSpeed(%d)", uint32(s))
	}
	return fmt.Sprintf("S%d", s.Mbps())
}

// ParseIsoSpeed converts Mbps (100..3200) to a speed code.
func ParseIsoSpeed(mbps int) (IsoSpeed, error) {
	for s := Speed100; s <= Speed3200; s++ {
		if s.Mbps() == mbps {
			return s, nil
		}
	}
	return 0, errorf("parse iso speed", CodeInvalidIsoSpeed, "unsupported speed %d", mbps)
}

// OperationMode selects the ISO_DATA register layout.
type OperationMode uint32

// Operation modes.
const (
	OperationModeLegacy OperationMode = iota + 480
	OperationMode1394B
)

func (m OperationMode) String() string {
	switch m {
	case OperationModeLegacy:
		return "legacy"
	case OperationMode1394B:
		return "1394b"
	}
	return fmt.Sprintf("OperationMode(%d)", uint32(m))
}

// ParseOperationMode accepts "legacy" or "1394b".
func ParseOperationMode(s string) (OperationMode, error) {
	switch strings.ToLower(s) {
	case "legacy", "1394a":
		return OperationModeLegacy, nil
	case "1394b", "b":
		return OperationMode1394B, nil
	}
	return 0, errorf("parse operation mode", CodeInvalidArgument, "unknown operation mode %q", s)
}

// TriggerMode is the external trigger behaviour.
type TriggerMode uint32

// Trigger modes. The register field holds the IIDC mode number.
const (
	TriggerMode0 TriggerMode = iota + 384
	TriggerMode1
	TriggerMode2
	TriggerMode3
	TriggerMode4
	TriggerMode5
	TriggerMode14
	TriggerMode15
)

func (m TriggerMode) number() (uint32, error) {
	switch {
	case m >= TriggerMode0 && m <= TriggerMode5:
		return uint32(m - TriggerMode0), nil
	case m == TriggerMode14:
		return 14, nil
	case m == TriggerMode15:
		return 15, nil
	}
	return 0, errorf("trigger mode", CodeInvalidTriggerMode, "trigger mode %d", uint32(m))
}

func triggerModeFromNumber(n uint32) (TriggerMode, error) {
	switch {
	case n <= 5:
		return TriggerMode0 + TriggerMode(n), nil
	case n == 14:
		return TriggerMode14, nil
	case n == 15:
		return TriggerMode15, nil
	}
	return 0, errorf("trigger mode", CodeInvalidTriggerMode, "trigger mode number %d", n)
}

// TriggerPolarity is the active edge of the trigger input.
type TriggerPolarity uint32

// Trigger polarities.
const (
	TriggerActiveLow TriggerPolarity = iota + 704
	TriggerActiveHigh
)

// IIDCVersion is the protocol revision a camera implements.
type IIDCVersion uint32

// IIDC versions.
const (
	IIDC104 IIDCVersion = iota + 544
	IIDC120
	IIDCPtGrey
	IIDC130
	IIDC131
	IIDC132
	IIDC133
	IIDC134
	IIDC135
	IIDC136
	IIDC137
	IIDC138
	IIDC139
)

func (v IIDCVersion) String() string {
	switch v {
	case IIDC104:
		return "1.04"
	case IIDC120:
		return "1.20"
	case IIDCPtGrey:
		return "PTGREY"
	case IIDC130:
		return "1.30"
	}
	if v >= IIDC131 && v <= IIDC139 {
		return fmt.Sprintf("1.3%d", v-IIDC131+1)
	}
	return fmt.Sprintf("IIDCVersion(%d)", uint32(v))
}

// Capture policies for Capture.Capture.
type CapturePolicy int

const (
	// CaptureWait blocks until a frame is filled or the capture is released.
	CaptureWait CapturePolicy = iota
	// CapturePoll returns ErrNoFrame when nothing is filled.
	CapturePoll
)
