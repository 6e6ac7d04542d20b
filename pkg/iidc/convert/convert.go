// Package convert turns completed capture buffers into Go images.
//
// Conversions are pure functions over a frame's bytes and its geometry;
// they never touch the camera or the ring.
package convert

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

// BayerMethod selects the demosaicing algorithm for raw codings.
type BayerMethod int

// Bayer methods.
const (
	// BayerNearest copies each missing color from the nearest sample in
	// the same 2x2 tile.
	BayerNearest BayerMethod = iota
	// BayerSimple averages the two greens of a tile and paints the whole
	// tile with one color.
	BayerSimple
)

func (m BayerMethod) String() string {
	switch m {
	case BayerNearest:
		return "nearest"
	case BayerSimple:
		return "simple"
	}
	return fmt.Sprintf("BayerMethod(%d)", int(m))
}

// ParseBayerMethod maps a name to a method.
func ParseBayerMethod(s string) (BayerMethod, error) {
	switch s {
	case "", "nearest":
		return BayerNearest, nil
	case "simple":
		return BayerSimple, nil
	}
	return 0, &iidc.Error{Code: iidc.CodeInvalidBayerMethod, Op: "parse bayer method", Message: fmt.Sprintf("unknown method %q", s)}
}

// Options control raw and high bit depth conversions.
type Options struct {
	// Filter is the Bayer tile of RAW8/RAW16 frames.
	Filter iidc.ColorFilter
	Method BayerMethod
	// Bits is the number of significant bits in 16 bit samples. Zero
	// means 16.
	Bits uint32
}

// ToRGBA converts one frame. data must hold at least the image bytes of g;
// trailing padding up to the quadlet boundary is ignored.
func ToRGBA(data []byte, g iidc.FrameGeometry, opts Options) (*image.RGBA, error) {
	const op = "convert"
	w, h := int(g.Width), int(g.Height)
	if w == 0 || h == 0 {
		return nil, &iidc.Error{Code: iidc.CodeInvalidArgument, Op: op, Message: "empty geometry"}
	}
	bits, err := g.ColorCoding.BitsPerPixel()
	if err != nil {
		return nil, err
	}
	need := (w*h*int(bits) + 7) / 8
	switch g.ColorCoding {
	case iidc.ColorYUV422:
		need = (w*h + 1) / 2 * 4
	case iidc.ColorYUV411:
		need = (w*h + 3) / 4 * 6
	}
	if len(data) < need {
		return nil, &iidc.Error{Code: iidc.CodeInvalidArgument, Op: op,
			Message: fmt.Sprintf("%d bytes for a %dx%d %s frame, want %d", len(data), w, h, g.ColorCoding, need)}
	}
	shift := uint(8)
	if opts.Bits > 8 && opts.Bits < 16 {
		shift = uint(opts.Bits - 8)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	px := img.Pix
	n := w * h

	switch g.ColorCoding {
	case iidc.ColorMono8:
		for i := 0; i < n; i++ {
			setRGB(px, i, data[i], data[i], data[i])
		}
	case iidc.ColorMono16, iidc.ColorMono16S:
		for i := 0; i < n; i++ {
			y := clampShift(binary.BigEndian.Uint16(data[2*i:]), shift)
			setRGB(px, i, y, y, y)
		}
	case iidc.ColorRGB8:
		for i := 0; i < n; i++ {
			setRGB(px, i, data[3*i], data[3*i+1], data[3*i+2])
		}
	case iidc.ColorRGB16, iidc.ColorRGB16S:
		for i := 0; i < n; i++ {
			s := data[6*i:]
			setRGB(px, i,
				clampShift(binary.BigEndian.Uint16(s), shift),
				clampShift(binary.BigEndian.Uint16(s[2:]), shift),
				clampShift(binary.BigEndian.Uint16(s[4:]), shift))
		}
	case iidc.ColorYUV444:
		// U Y V
		for i := 0; i < n; i++ {
			s := data[3*i:]
			r, gg, b := yuvToRGB(s[1], s[0], s[2])
			setRGB(px, i, r, gg, b)
		}
	case iidc.ColorYUV422:
		// U Y0 V Y1
		for i := 0; i < n; i += 2 {
			s := data[2*i:]
			u, v := s[0], s[2]
			r, gg, b := yuvToRGB(s[1], u, v)
			setRGB(px, i, r, gg, b)
			if i+1 < n {
				r, gg, b = yuvToRGB(s[3], u, v)
				setRGB(px, i+1, r, gg, b)
			}
		}
	case iidc.ColorYUV411:
		// U Y0 Y1 V Y2 Y3
		for i := 0; i < n; i += 4 {
			s := data[i*3/2:]
			u, v := s[0], s[3]
			ys := [4]byte{s[1], s[2], s[4], s[5]}
			for k := 0; k < 4 && i+k < n; k++ {
				r, gg, b := yuvToRGB(ys[k], u, v)
				setRGB(px, i+k, r, gg, b)
			}
		}
	case iidc.ColorRaw8:
		if err := demosaic(px, w, h, func(i int) byte { return data[i] }, opts); err != nil {
			return nil, err
		}
	case iidc.ColorRaw16:
		sample := func(i int) byte { return clampShift(binary.BigEndian.Uint16(data[2*i:]), shift) }
		if err := demosaic(px, w, h, sample, opts); err != nil {
			return nil, err
		}
	default:
		return nil, &iidc.Error{Code: iidc.CodeInvalidColorCoding, Op: op, Message: g.ColorCoding.String()}
	}
	return img, nil
}

// WritePNG converts a frame and encodes it as PNG.
func WritePNG(w io.Writer, data []byte, g iidc.FrameGeometry, opts Options) error {
	img, err := ToRGBA(data, g, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func setRGB(px []byte, i int, r, g, b byte) {
	p := px[4*i : 4*i+4 : 4*i+4]
	p[0], p[1], p[2], p[3] = r, g, b, 0xFF
}

func clampShift(v uint16, shift uint) byte {
	v >>= shift
	if v > 0xFF {
		return 0xFF
	}
	return byte(v)
}

func clamp(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 0xFF:
		return 0xFF
	}
	return byte(v)
}

// yuvToRGB uses the 10 bit fixed point ITU-R BT.601 coefficients.
func yuvToRGB(y, u, v byte) (byte, byte, byte) {
	yy := int(y)
	uu := int(u) - 128
	vv := int(v) - 128
	r := yy + (vv*1436)>>10
	g := yy - (uu*352+vv*731)>>10
	b := yy + (uu*1814)>>10
	return clamp(r), clamp(g), clamp(b)
}

// tile offsets of the red and blue samples within a 2x2 block, as (x, y)
var bayerTiles = map[iidc.ColorFilter][2][2]int{
	iidc.FilterRGGB: {{0, 0}, {1, 1}},
	iidc.FilterGBRG: {{0, 1}, {1, 0}},
	iidc.FilterGRBG: {{1, 0}, {0, 1}},
	iidc.FilterBGGR: {{1, 1}, {0, 0}},
}

func demosaic(px []byte, w, h int, sample func(int) byte, opts Options) error {
	const op = "demosaic"
	tile, ok := bayerTiles[opts.Filter]
	if !ok {
		return &iidc.Error{Code: iidc.CodeInvalidColorFilter, Op: op, Message: opts.Filter.String()}
	}
	if opts.Method != BayerNearest && opts.Method != BayerSimple {
		return &iidc.Error{Code: iidc.CodeInvalidBayerMethod, Op: op, Message: opts.Method.String()}
	}
	rx, ry := tile[0][0], tile[0][1]
	bx, by := tile[1][0], tile[1][1]

	// odd trailing rows and columns reuse the previous tile
	at := func(x, y int) byte {
		if x >= w {
			x -= 2
		}
		if y >= h {
			y -= 2
		}
		if x < 0 || y < 0 {
			return 0
		}
		return sample(y*w + x)
	}

	for ty := 0; ty < h; ty += 2 {
		for tx := 0; tx < w; tx += 2 {
			r := at(tx+rx, ty+ry)
			b := at(tx+bx, ty+by)
			// the greens sit on the other diagonal from red
			g0 := at(tx+1-rx, ty+ry)
			g1 := at(tx+rx, ty+1-ry)
			avg := byte((int(g0) + int(g1) + 1) / 2)
			for dy := 0; dy < 2 && ty+dy < h; dy++ {
				for dx := 0; dx < 2 && tx+dx < w; dx++ {
					g := avg
					if opts.Method == BayerNearest {
						// take the green on the same row
						g = g0
						if dy != ry {
							g = g1
						}
					}
					setRGB(px, (ty+dy)*w+tx+dx, r, g, b)
				}
			}
		}
	}
	return nil
}
