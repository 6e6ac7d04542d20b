package iidc

// Quadlets per isochronous packet for formats 0-2, indexed by
// mode*framerateCount + framerate. Zero marks an unsupported pair.
var (
	qppFormat0 = [7 * framerateCount]uint32{
		0, 0, 15, 30, 60, 120, 240, 480,
		10, 20, 40, 80, 160, 320, 640, 1280,
		30, 60, 120, 240, 480, 960, 1920, 3840,
		40, 80, 160, 320, 640, 1280, 2560, 5120,
		60, 120, 240, 480, 960, 1920, 3840, 7680,
		20, 40, 80, 160, 320, 640, 1280, 2560,
		40, 80, 160, 320, 640, 1280, 2560, 5120,
	}
	qppFormat1 = [8 * framerateCount]uint32{
		0, 125, 250, 500, 1000, 2000, 4000, 8000,
		0, 0, 375, 750, 1500, 3000, 6000, 0,
		0, 0, 125, 250, 500, 1000, 2000, 4000,
		96, 192, 384, 768, 1536, 3072, 6144, 0,
		144, 288, 576, 1152, 2304, 4608, 0, 0,
		48, 96, 192, 384, 768, 1536, 3073, 6144,
		0, 125, 250, 500, 1000, 2000, 4000, 8000,
		96, 192, 384, 768, 1536, 3072, 6144, 0,
	}
	qppFormat2 = [8 * framerateCount]uint32{
		160, 320, 640, 1280, 2560, 5120, 0, 0,
		240, 480, 960, 1920, 3840, 7680, 0, 0,
		80, 160, 320, 640, 1280, 2560, 5120, 0,
		250, 500, 1000, 2000, 4000, 8000, 0, 0,
		375, 750, 1500, 3000, 6000, 0, 0, 0,
		125, 250, 500, 1000, 2000, 4000, 8000, 0,
		160, 320, 640, 1280, 2560, 5120, 0, 0,
		250, 500, 1000, 2000, 4000, 8000, 0, 0,
	}
)

// QuadletsPerPacket returns the isochronous payload size of a fixed mode at
// the given framerate. Formats 6 and 7 have no fixed packet size.
func QuadletsPerPacket(mode VideoMode, rate Framerate) (uint32, error) {
	const op = "quadlets per packet"
	format, idx, err := mode.split()
	if err != nil {
		return 0, err
	}
	ri, err := rate.index()
	if err != nil {
		return 0, errorf(op, CodeInvalidVideoMode, "%s at framerate %d", mode, uint32(rate))
	}
	var table []uint32
	switch format {
	case Format0:
		table = qppFormat0[:]
	case Format1:
		table = qppFormat1[:]
	case Format2:
		table = qppFormat2[:]
	default:
		return 0, errorf(op, CodeInvalidVideoFormat, "format %d has no fixed packet size", uint32(format))
	}
	i := int(idx)*framerateCount + int(ri)
	if i >= len(table) || table[i] == 0 {
		return 0, errorf(op, CodeInvalidVideoMode, "%s is not defined at %s", mode, rate)
	}
	return table[i], nil
}

type geometry struct {
	width, height uint32
	coding        ColorCoding
}

var fixedGeometries = map[VideoMode]geometry{
	Mode160x120YUV444:   {160, 120, ColorYUV444},
	Mode320x240YUV422:   {320, 240, ColorYUV422},
	Mode640x480YUV411:   {640, 480, ColorYUV411},
	Mode640x480YUV422:   {640, 480, ColorYUV422},
	Mode640x480RGB8:     {640, 480, ColorRGB8},
	Mode640x480Mono8:    {640, 480, ColorMono8},
	Mode640x480Mono16:   {640, 480, ColorMono16},
	Mode800x600YUV422:   {800, 600, ColorYUV422},
	Mode800x600RGB8:     {800, 600, ColorRGB8},
	Mode800x600Mono8:    {800, 600, ColorMono8},
	Mode1024x768YUV422:  {1024, 768, ColorYUV422},
	Mode1024x768RGB8:    {1024, 768, ColorRGB8},
	Mode1024x768Mono8:   {1024, 768, ColorMono8},
	Mode800x600Mono16:   {800, 600, ColorMono16},
	Mode1024x768Mono16:  {1024, 768, ColorMono16},
	Mode1280x960YUV422:  {1280, 960, ColorYUV422},
	Mode1280x960RGB8:    {1280, 960, ColorRGB8},
	Mode1280x960Mono8:   {1280, 960, ColorMono8},
	Mode1600x1200YUV422: {1600, 1200, ColorYUV422},
	Mode1600x1200RGB8:   {1600, 1200, ColorRGB8},
	Mode1600x1200Mono8:  {1600, 1200, ColorMono8},
	Mode1280x960Mono16:  {1280, 960, ColorMono16},
	Mode1600x1200Mono16: {1600, 1200, ColorMono16},
}

func fixedGeometry(m VideoMode) (geometry, bool) {
	g, ok := fixedGeometries[m]
	return g, ok
}

// ImageSize returns the nominal size of a fixed mode. Format7 sizes are
// read from the camera with (*Camera).Format7ImageSize.
func ImageSize(mode VideoMode) (width, height uint32, err error) {
	g, ok := fixedGeometry(mode)
	if !ok {
		return 0, 0, errorf("image size", CodeInvalidVideoMode, "%s has no fixed size", mode)
	}
	return g.width, g.height, nil
}

// ModeColorCoding returns the color coding of a fixed mode.
func ModeColorCoding(mode VideoMode) (ColorCoding, error) {
	g, ok := fixedGeometry(mode)
	if !ok {
		return 0, errorf("color coding", CodeInvalidVideoMode, "%s has no fixed color coding", mode)
	}
	return g.coding, nil
}

// FrameQuadlets returns ceil(width*height*bytesPerPixel/4).
func FrameQuadlets(width, height uint32, coding ColorCoding) (uint32, error) {
	bits, err := coding.BitsPerPixel()
	if err != nil {
		return 0, err
	}
	totalBits := uint64(width) * uint64(height) * uint64(bits)
	return uint32((totalBits + 31) / 32), nil
}

// framerate range per mode: the first and last framerate with a defined
// packet size.
func framerateRange(mode VideoMode) (lo, hi Framerate, err error) {
	found := false
	for f := Framerate1_875; f <= Framerate240; f++ {
		if _, e := QuadletsPerPacket(mode, f); e != nil {
			continue
		}
		if !found {
			lo, found = f, true
		}
		hi = f
	}
	if !found {
		return 0, 0, errorf("framerate range", CodeInvalidVideoMode, "%s has no fixed framerates", mode)
	}
	return lo, hi, nil
}

// BandwidthUnits converts a packet payload at a given speed into bus
// allocation units, where one unit is a quadlet at S400. The packet header
// and CRC add three quadlets.
func BandwidthUnits(quadletsPerPacket uint32, speed IsoSpeed) (uint32, error) {
	if !speed.valid() {
		return 0, errorf("bandwidth", CodeInvalidIsoSpeed, "speed %d", uint32(speed))
	}
	q := quadletsPerPacket + 3
	switch {
	case speed < Speed400:
		return q << (Speed400 - speed), nil
	case speed > Speed400:
		shift := speed - Speed400
		return (q + (1 << shift) - 1) >> shift, nil
	}
	return q, nil
}
