package convert

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

func geometry(w, h uint32, coding iidc.ColorCoding) iidc.FrameGeometry {
	return iidc.FrameGeometry{Width: w, Height: h, ColorCoding: coding}
}

func TestToRGBA(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		g    iidc.FrameGeometry
		opts Options
		want []color.RGBA
	}{
		{
			name: "mono8",
			data: []byte{10, 200},
			g:    geometry(2, 1, iidc.ColorMono8),
			want: []color.RGBA{{10, 10, 10, 255}, {200, 200, 200, 255}},
		},
		{
			name: "mono16",
			data: []byte{0x12, 0x34, 0xFF, 0xFF},
			g:    geometry(2, 1, iidc.ColorMono16),
			want: []color.RGBA{{0x12, 0x12, 0x12, 255}, {0xFF, 0xFF, 0xFF, 255}},
		},
		{
			name: "mono16 with 12 significant bits",
			data: []byte{0x0F, 0xFF, 0x08, 0x00},
			g:    geometry(2, 1, iidc.ColorMono16),
			opts: Options{Bits: 12},
			want: []color.RGBA{{0xFF, 0xFF, 0xFF, 255}, {0x80, 0x80, 0x80, 255}},
		},
		{
			name: "rgb8",
			data: []byte{1, 2, 3, 4, 5, 6},
			g:    geometry(2, 1, iidc.ColorRGB8),
			want: []color.RGBA{{1, 2, 3, 255}, {4, 5, 6, 255}},
		},
		{
			name: "yuv444",
			data: []byte{85, 76, 255},
			g:    geometry(1, 1, iidc.ColorYUV444),
			want: []color.RGBA{{254, 1, 0, 255}},
		},
		{
			name: "yuv422 neutral chroma",
			data: []byte{128, 50, 128, 60},
			g:    geometry(2, 1, iidc.ColorYUV422),
			want: []color.RGBA{{50, 50, 50, 255}, {60, 60, 60, 255}},
		},
		{
			name: "yuv411 neutral chroma",
			data: []byte{128, 1, 2, 128, 3, 4},
			g:    geometry(4, 1, iidc.ColorYUV411),
			want: []color.RGBA{{1, 1, 1, 255}, {2, 2, 2, 255}, {3, 3, 3, 255}, {4, 4, 4, 255}},
		},
		{
			name: "raw8 rggb nearest",
			data: []byte{200, 100, 50, 10},
			g:    geometry(2, 2, iidc.ColorRaw8),
			opts: Options{Filter: iidc.FilterRGGB},
			want: []color.RGBA{{200, 100, 10, 255}, {200, 100, 10, 255}, {200, 50, 10, 255}, {200, 50, 10, 255}},
		},
		{
			name: "raw8 rggb simple",
			data: []byte{200, 100, 50, 10},
			g:    geometry(2, 2, iidc.ColorRaw8),
			opts: Options{Filter: iidc.FilterRGGB, Method: BayerSimple},
			want: []color.RGBA{{200, 75, 10, 255}, {200, 75, 10, 255}, {200, 75, 10, 255}, {200, 75, 10, 255}},
		},
		{
			name: "raw8 bggr nearest",
			data: []byte{200, 100, 50, 10},
			g:    geometry(2, 2, iidc.ColorRaw8),
			opts: Options{Filter: iidc.FilterBGGR},
			want: []color.RGBA{{10, 100, 200, 255}, {10, 100, 200, 255}, {10, 50, 200, 255}, {10, 50, 200, 255}},
		},
		{
			name: "raw8 odd width",
			data: []byte{200, 100, 201, 50, 10, 51},
			g:    geometry(3, 2, iidc.ColorRaw8),
			opts: Options{Filter: iidc.FilterRGGB},
			want: []color.RGBA{
				{200, 100, 10, 255}, {200, 100, 10, 255}, {201, 100, 10, 255},
				{200, 50, 10, 255}, {200, 50, 10, 255}, {201, 51, 10, 255},
			},
		},
		{
			name: "raw16",
			data: []byte{0xC8, 0, 0x64, 0, 0x32, 0, 0x0A, 0},
			g:    geometry(2, 2, iidc.ColorRaw16),
			opts: Options{Filter: iidc.FilterRGGB, Method: BayerSimple},
			want: []color.RGBA{{200, 75, 10, 255}, {200, 75, 10, 255}, {200, 75, 10, 255}, {200, 75, 10, 255}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ToRGBA(tt.data, tt.g, tt.opts)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			w := int(tt.g.Width)
			for i, want := range tt.want {
				if got := img.RGBAAt(i%w, i/w); got != want {
					t.Errorf("pixel %d: got %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestToRGBAErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		g    iidc.FrameGeometry
		opts Options
		want error
	}{
		{"empty geometry", nil, geometry(0, 4, iidc.ColorMono8), Options{}, iidc.ErrInvalidArgument},
		{"short buffer", make([]byte, 3), geometry(2, 2, iidc.ColorMono8), Options{}, iidc.ErrInvalidArgument},
		{"short yuv411 group", make([]byte, 4), geometry(2, 1, iidc.ColorYUV411), Options{}, iidc.ErrInvalidArgument},
		{"unknown coding", make([]byte, 16), geometry(2, 2, iidc.ColorCoding(1)), Options{}, iidc.ErrInvalidColorCoding},
		{"bad method", make([]byte, 4), geometry(2, 2, iidc.ColorRaw8), Options{Filter: iidc.FilterRGGB, Method: BayerMethod(9)}, iidc.ErrInvalidBayerMethod},
		{"bad filter", make([]byte, 4), geometry(2, 2, iidc.ColorRaw8), Options{Filter: iidc.ColorFilter(3)}, iidc.ErrInvalidColorFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToRGBA(tt.data, tt.g, tt.opts); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseBayerMethod(t *testing.T) {
	if m, err := ParseBayerMethod("simple"); err != nil || m != BayerSimple {
		t.Fatalf("simple: %s err %v", m, err)
	}
	if m, err := ParseBayerMethod(""); err != nil || m != BayerNearest {
		t.Fatalf("default: %s err %v", m, err)
	}
	if _, err := ParseBayerMethod("bilinear"); !errors.Is(err, iidc.ErrInvalidBayerMethod) {
		t.Fatalf("expected ErrInvalidBayerMethod, got %v", err)
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	data := make([]byte, 8*4)
	for i := range data {
		data[i] = byte(i * 8)
	}
	if err := WritePNG(&buf, data, geometry(8, 4, iidc.ColorMono8), Options{}); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds %v", b)
	}
	r, _, _, _ := img.At(3, 1).RGBA()
	if byte(r>>8) != data[11] {
		t.Fatalf("pixel (3,1) red %d, want %d", r>>8, data[11])
	}
}
