package simbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

// ErrNotTransmitting is returned by EmitFrame while ISO_EN is clear.
var ErrNotTransmitting = errors.New("camera is not transmitting")

// Config ROM layout of a simulated camera, as CSR offsets.
const (
	UnitDirectory    uint64 = 0x438
	unitDepDirectory uint64 = 0x450
	CommandBase      uint64 = 0xF00000
	format7CSRBase          = CommandBase + 0x1000
	absCSRBase              = CommandBase + 0x2000
)

// Command register offsets the simulator reacts to.
const (
	RegInitialize     uint64 = 0x000
	RegVFormatInq     uint64 = 0x100
	RegVModeInqBase   uint64 = 0x180
	RegVRateInqBase   uint64 = 0x200
	RegVCSRInqBase    uint64 = 0x2E0
	RegBasicFuncInq   uint64 = 0x400
	RegFeatureHiInq   uint64 = 0x404
	RegFeatureLoInq   uint64 = 0x408
	RegFeatureInqBase uint64 = 0x500
	RegCurFrameRate   uint64 = 0x600
	RegCurVideoMode   uint64 = 0x604
	RegCurVideoFormat uint64 = 0x608
	RegIsoData        uint64 = 0x60C
	RegPower          uint64 = 0x610
	RegIsoEnable      uint64 = 0x614
	RegMemorySave     uint64 = 0x618
	RegOneShot        uint64 = 0x61C
	RegMemSaveCh      uint64 = 0x620
	RegCurMemCh       uint64 = 0x624
	RegSoftTrigger    uint64 = 0x62C
	RegAbsCSRBase     uint64 = 0x700
	RegFeatureBase    uint64 = 0x800
)

// Format7 CSR offsets within a mode's block.
const (
	f7MaxImageSize   uint64 = 0x000
	f7UnitSize       uint64 = 0x004
	f7ImagePosition  uint64 = 0x008
	f7ImageSize      uint64 = 0x00C
	f7ColorCodingID  uint64 = 0x010
	f7ColorCodingInq uint64 = 0x014
	f7PixelNumber    uint64 = 0x034
	f7TotalBytesHi   uint64 = 0x038
	f7TotalBytesLo   uint64 = 0x03C
	f7PacketPara     uint64 = 0x040
	f7BytePerPacket  uint64 = 0x044
	f7PacketPerFrame uint64 = 0x048
	f7UnitPosition   uint64 = 0x04C
	f7DataDepth      uint64 = 0x054
	f7ColorFilterID  uint64 = 0x058
	f7ValueSetting   uint64 = 0x07C
	f7BlockSize      uint64 = 0x100
	format7Modes            = 2
)

const (
	f7PacketUnit      uint32 = 8
	f7PacketMax       uint32 = 4096
	f7PacketRecommend uint32 = 2048
)

// Feature inquiry bits.
const (
	inqPresence uint32 = 0x80000000
	inqAbs      uint32 = 0x40000000
	inqOnePush  uint32 = 0x10000000
	inqReadout  uint32 = 0x08000000
	inqOnOff    uint32 = 0x04000000
	inqAuto     uint32 = 0x02000000
	inqManual   uint32 = 0x01000000
	inqPolarity uint32 = 0x02000000
)

const (
	ctlPresence uint32 = 0x80000000
	ctlOnePush  uint32 = 0x04000000
	ctlOnOff    uint32 = 0x02000000
	bit31       uint32 = 0x80000000
)

type featureSpec struct {
	inq     uint32
	min     uint32
	max     uint32
	control uint32
	abs     *[3]float32
}

func defaultFeatures() map[iidc.Feature]featureSpec {
	rw := inqPresence | inqReadout | inqManual
	return map[iidc.Feature]featureSpec{
		iidc.FeatureBrightness:     {inq: rw | inqAuto, max: 255, control: 128},
		iidc.FeatureExposure:       {inq: rw | inqAuto | inqOnOff | inqOnePush, max: 1023, control: ctlOnOff | 512},
		iidc.FeatureSharpness:      {inq: rw, max: 255, control: 80},
		iidc.FeatureWhiteBalance:   {inq: rw | inqAuto | inqOnOff | inqOnePush, max: 1023, control: ctlOnOff | 512<<12 | 400},
		iidc.FeatureHue:            {inq: rw, max: 255, control: 128},
		iidc.FeatureSaturation:     {inq: rw, max: 255, control: 128},
		iidc.FeatureGamma:          {inq: rw | inqOnOff, max: 2, control: 1},
		iidc.FeatureShutter:        {inq: rw | inqAuto | inqAbs, min: 1, max: 4095, control: 500, abs: &[3]float32{0.0001, 4, 0.01}},
		iidc.FeatureGain:           {inq: rw | inqAuto | inqAbs, max: 680, control: 0, abs: &[3]float32{0, 24, 0}},
		iidc.FeatureTemperature:    {inq: rw | inqAuto, max: 4095, control: 3000<<12 | 2990},
		iidc.FeatureTrigger:        {inq: inqPresence | inqReadout | inqOnOff | inqPolarity | 0x8000 | 0x4000 | 0x1000 | 0x0002},
		iidc.FeatureTriggerDelay:   {inq: rw | inqOnOff | inqAbs, max: 4095, abs: &[3]float32{0, 0.1, 0}},
		iidc.FeatureWhiteShading:   {inq: rw, max: 255, control: 128<<16 | 128<<8 | 128},
		iidc.FeatureFrameRate:      {inq: rw | inqAuto | inqOnOff | inqAbs, max: 4095, control: ctlOnOff | 2048, abs: &[3]float32{1.875, 60, 30}},
		iidc.FeaturePan:            {inq: rw, max: 1000, control: 500},
		iidc.FeatureCaptureQuality: {inq: rw, max: 7, control: 3},
	}
}

// featureIndex mirrors the IIDC bit layout: features from zoom on live in
// the low bank, with capture size and quality after a 12 entry gap.
func featureIndex(f iidc.Feature) (uint64, bool) {
	if f >= iidc.FeatureZoom {
		n := uint64(f - iidc.FeatureZoom)
		if f >= iidc.FeatureCaptureSize {
			n += 12
		}
		return n, true
	}
	return uint64(f - iidc.FeatureBrightness), false
}

func featureRegister(base uint64, f iidc.Feature) uint64 {
	n, lo := featureIndex(f)
	if lo {
		return base + 0x80 + 4*n
	}
	return base + 4*n
}

// Option customizes a simulated camera.
type Option func(*config)

type config struct {
	vendor, model  string
	guid           uint64
	b1394          bool
	memoryChannels uint32
	swVersion      uint32
	subVersion     uint32
	without        map[iidc.Feature]bool
}

// With1394b makes the camera 1394b capable.
func With1394b() Option { return func(c *config) { c.b1394 = true } }

// WithMemoryChannels sets the number of user memory channels.
func WithMemoryChannels(n uint32) Option { return func(c *config) { c.memoryChannels = n } }

// WithIIDCVersion sets the unit software version and sub version entries.
func WithIIDCVersion(sw, sub uint32) Option {
	return func(c *config) { c.swVersion, c.subVersion = sw, sub }
}

// WithoutFeature removes features from the camera.
func WithoutFeature(ids ...iidc.Feature) Option {
	return func(c *config) {
		for _, id := range ids {
			c.without[id] = true
		}
	}
}

// WithModel sets the vendor and model strings.
func WithModel(vendor, model string) Option {
	return func(c *config) { c.vendor, c.model = vendor, model }
}

// WithGUID sets the camera GUID.
func WithGUID(guid uint64) Option { return func(c *config) { c.guid = guid } }

// Camera is a simulated IIDC camera.
type Camera struct {
	mu       sync.Mutex
	bus      *Bus
	node     uint16
	cfg      config
	features map[iidc.Feature]featureSpec
	regs     map[uint64]uint32
	memory   map[uint32]map[uint64]uint32
	writes   map[uint64]int
	frames   uint64
}

// NewCamera builds a camera answering at node.
func NewCamera(node uint16, opts ...Option) *Camera {
	cfg := config{
		vendor:         "Simulated",
		model:          "IIDC Camera",
		guid:           0x0814436100000000 | uint64(node),
		memoryChannels: 2,
		swVersion:      0x102,
		subVersion:     0x10,
		without:        make(map[iidc.Feature]bool),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Camera{
		node:     node,
		cfg:      cfg,
		features: defaultFeatures(),
		memory:   make(map[uint32]map[uint64]uint32),
		writes:   make(map[uint64]int),
	}
	for id := range cfg.without {
		delete(c.features, id)
	}
	c.regs = c.factoryRegisters()
	return c
}

// DeviceInfo returns what discovery would report for the camera.
func (c *Camera) DeviceInfo() iidc.DeviceInfo {
	return iidc.DeviceInfo{
		Node:          c.node,
		UnitDirectory: UnitDirectory,
		GUID:          c.cfg.guid,
		Vendor:        c.cfg.vendor,
		Model:         c.cfg.model,
	}
}

func (c *Camera) factoryRegisters() map[uint64]uint32 {
	r := make(map[uint64]uint32)

	// unit directory: software version, sub version, unit dependent directory
	r[UnitDirectory] = 3 << 16
	r[UnitDirectory+4] = 0x13<<24 | c.cfg.swVersion
	r[UnitDirectory+8] = 0x38<<24 | c.cfg.subVersion
	r[UnitDirectory+12] = 0xD4<<24 | uint32((unitDepDirectory-(UnitDirectory+12))/4)
	r[unitDepDirectory] = 1 << 16
	r[unitDepDirectory+4] = 0x40<<24 | uint32(CommandBase/4)

	cmd := func(off uint64, v uint32) { r[CommandBase+off] = v }

	cmd(RegVFormatInq, bit31|bit31>>1|bit31>>7)
	cmd(RegVModeInqBase+0, 0xFE000000)
	cmd(RegVModeInqBase+4, 0xFF000000)
	cmd(RegVModeInqBase+28, 0xC0000000)
	for mode := iidc.Mode160x120YUV444; mode <= iidc.Mode1024x768Mono16; mode++ {
		format, _ := mode.Format()
		idx := uint64(mode - iidc.Mode160x120YUV444)
		if format == iidc.Format1 {
			idx = uint64(mode - iidc.Mode800x600YUV422)
		}
		var rates uint32
		for i := uint32(0); i < 8; i++ {
			if _, err := iidc.QuadletsPerPacket(mode, iidc.Framerate1_875+iidc.Framerate(i)); err == nil {
				rates |= bit31 >> i
			}
		}
		cmd(RegVRateInqBase+0x20*uint64(format)+4*idx, rates)
	}
	for i := uint64(0); i < format7Modes; i++ {
		cmd(RegVCSRInqBase+4*i, uint32((format7CSRBase+f7BlockSize*i)/4))
		c.format7Defaults(r, format7CSRBase+f7BlockSize*i)
	}

	basic := uint32(0x00008000 | 0x00001000 | 0x00000800 | c.cfg.memoryChannels&0xF)
	if c.cfg.b1394 {
		basic |= 0x00800000
	}
	cmd(RegBasicFuncInq, basic)

	var hi, lo uint32
	for id, spec := range c.features {
		n, isLo := featureIndex(id)
		if isLo {
			lo |= bit31 >> n
		} else {
			hi |= bit31 >> n
		}
		inq := spec.inq
		if id != iidc.FeatureTrigger {
			inq |= (spec.min&0xFFF)<<12 | spec.max&0xFFF
		}
		r[featureRegister(CommandBase+RegFeatureInqBase, id)] = inq
		r[featureRegister(CommandBase+RegFeatureBase, id)] = ctlPresence | spec.control
		if spec.abs != nil {
			idx, _ := featureIndex(id)
			if isLo {
				idx += 32
			}
			base := absCSRBase + 0x10*idx
			r[featureRegister(CommandBase+RegAbsCSRBase, id)] = uint32(base / 4)
			r[base+0] = math.Float32bits(spec.abs[0])
			r[base+4] = math.Float32bits(spec.abs[1])
			r[base+8] = math.Float32bits(spec.abs[2])
		}
	}
	cmd(RegFeatureHiInq, hi)
	cmd(RegFeatureLoInq, lo)

	cmd(RegCurFrameRate, 4<<29)
	cmd(RegCurVideoMode, 5<<29)
	cmd(RegCurVideoFormat, 0)
	cmd(RegIsoData, uint32(iidc.Speed400)<<24)
	cmd(RegPower, bit31)
	return r
}

func (c *Camera) format7Defaults(r map[uint64]uint32, base uint64) {
	r[base+f7MaxImageSize] = 1280<<16 | 960
	r[base+f7UnitSize] = 8<<16 | 2
	r[base+f7UnitPosition] = 2<<16 | 2
	r[base+f7ImagePosition] = 0
	r[base+f7ImageSize] = 640<<16 | 480
	r[base+f7ColorCodingID] = 0
	// MONO8, YUV422, MONO16, RAW8, RAW16
	r[base+f7ColorCodingInq] = bit31 | bit31>>2 | bit31>>5 | bit31>>9 | bit31>>10
	r[base+f7BytePerPacket] = f7PacketRecommend<<16 | f7PacketRecommend
	r[base+f7DataDepth] = 8 << 24
	r[base+f7ColorFilterID] = 0
	r[base+f7ValueSetting] = bit31
	recomputeFormat7(r, base)
}

func recomputeFormat7(r map[uint64]uint32, base uint64) {
	w, h := r[base+f7ImageSize]>>16, r[base+f7ImageSize]&0xFFFF
	coding := iidc.ColorMono8 + iidc.ColorCoding(r[base+f7ColorCodingID]>>24)
	bits, err := coding.BitsPerPixel()
	if err != nil {
		bits = 8
	}
	total := (uint64(w)*uint64(h)*uint64(bits) + 7) / 8
	r[base+f7PixelNumber] = w * h
	r[base+f7TotalBytesHi] = uint32(total >> 32)
	r[base+f7TotalBytesLo] = uint32(total)
	r[base+f7PacketPara] = f7PacketUnit<<16 | f7PacketMax
	bpp := r[base+f7BytePerPacket] >> 16
	r[base+f7BytePerPacket] = bpp<<16 | f7PacketRecommend
	if bpp > 0 {
		r[base+f7PacketPerFrame] = uint32((total + uint64(bpp) - 1) / uint64(bpp))
	}
	if coding == iidc.ColorMono16 || coding == iidc.ColorRaw16 {
		r[base+f7DataDepth] = 16 << 24
	} else {
		r[base+f7DataDepth] = 8 << 24
	}
}

func (c *Camera) read(off uint64) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.regs[off]
	if !ok && !c.mappedLocked(off) {
		return 0, fmt.Errorf("0x%x: %w", off, ErrAddress)
	}
	return v, nil
}

// mappedLocked reports whether off falls inside a region that reads as zero
// when unset.
func (c *Camera) mappedLocked(off uint64) bool {
	return off >= CommandBase && off < absCSRBase+0x1000
}

func (c *Camera) write(off uint64, v uint32) error {
	c.mu.Lock()
	if !c.mappedLocked(off) {
		c.mu.Unlock()
		return fmt.Errorf("0x%x: %w", off, ErrAddress)
	}
	c.writes[off]++
	after := c.applyLocked(off, v)
	c.mu.Unlock()
	if after != nil {
		after()
	}
	return nil
}

func inRange(off, base, size uint64) bool { return off >= base && off < base+size }

// applyLocked stores a write and runs the camera side effects. The returned
// function, if any, runs after the lock is released.
func (c *Camera) applyLocked(off uint64, v uint32) func() {
	if off >= format7CSRBase && off < format7CSRBase+f7BlockSize*format7Modes {
		c.applyFormat7Locked(off, v)
		return nil
	}
	if inRange(off, absCSRBase, 0x1000) {
		c.regs[off] = v
		return nil
	}

	rel := off - CommandBase
	switch {
	case rel != RegInitialize && rel < RegCurFrameRate || inRange(rel, RegAbsCSRBase, 0x100):
		// inquiry space is read only
		return nil
	case inRange(rel, RegFeatureBase, 0x100):
		// presence is hardwired and one-push completes immediately
		c.regs[off] = (v | ctlPresence) &^ ctlOnePush
		return nil
	}

	switch rel {
	case RegInitialize:
		if v&bit31 != 0 {
			c.regs = c.factoryRegisters()
		}
	case RegOneShot:
		c.regs[off] = 0
		switch {
		case v&bit31 != 0:
			return func() { _ = c.emit(1, true) }
		case v&0x40000000 != 0:
			n := int(v & 0xFFFF)
			return func() { _ = c.emit(n, true) }
		}
	case RegMemorySave:
		if v&bit31 != 0 {
			ch := c.regs[CommandBase+RegMemSaveCh] >> 28
			c.memory[ch] = c.settingsLocked()
		}
		c.regs[off] = 0
	case RegCurMemCh:
		ch := v >> 28
		c.regs[off] = v & 0xF0000000
		src := c.memory[ch]
		if ch == 0 {
			src = settingsOf(c.factoryRegisters())
		}
		for k, val := range src {
			c.regs[k] = val
		}
	case RegSoftTrigger:
		c.regs[off] = v & bit31
		trig := c.regs[featureRegister(CommandBase+RegFeatureBase, iidc.FeatureTrigger)]
		if v&bit31 != 0 && trig&ctlOnOff != 0 {
			return func() { _ = c.emit(1, true) }
		}
	default:
		c.regs[off] = v
	}
	return nil
}

func (c *Camera) applyFormat7Locked(off uint64, v uint32) {
	block := (off - format7CSRBase) / f7BlockSize
	base := format7CSRBase + block*f7BlockSize
	switch off - base {
	case f7ImagePosition, f7ImageSize, f7ColorCodingID:
		c.regs[off] = v
		recomputeFormat7(c.regs, base)
	case f7BytePerPacket:
		// the recommended size in the low half is read only
		c.regs[off] = v&0xFFFF0000 | c.regs[off]&0xFFFF
		recomputeFormat7(c.regs, base)
	case f7ValueSetting:
		if v&0x40000000 == 0 {
			return
		}
		var flags uint32
		maxW, maxH := c.regs[base+f7MaxImageSize]>>16, c.regs[base+f7MaxImageSize]&0xFFFF
		x, y := c.regs[base+f7ImagePosition]>>16, c.regs[base+f7ImagePosition]&0xFFFF
		w, h := c.regs[base+f7ImageSize]>>16, c.regs[base+f7ImageSize]&0xFFFF
		if x+w > maxW || y+h > maxH {
			flags |= 0x00800000
		}
		if bpp := c.regs[base+f7BytePerPacket] >> 16; bpp > f7PacketMax || bpp%f7PacketUnit != 0 {
			flags |= 0x00400000
		}
		recomputeFormat7(c.regs, base)
		c.regs[off] = bit31 | flags
	case f7MaxImageSize, f7UnitSize, f7UnitPosition, f7ColorCodingInq, f7PacketPara,
		f7PixelNumber, f7TotalBytesHi, f7TotalBytesLo, f7PacketPerFrame, f7DataDepth, f7ColorFilterID:
	default:
		c.regs[off] = v
	}
}

func (c *Camera) settingsLocked() map[uint64]uint32 {
	return settingsOf(c.regs)
}

// settingsOf extracts what a memory channel stores: feature controls and
// the current mode.
func settingsOf(r map[uint64]uint32) map[uint64]uint32 {
	out := make(map[uint64]uint32)
	for off, v := range r {
		if off < CommandBase {
			continue
		}
		rel := off - CommandBase
		if inRange(rel, RegFeatureBase, 0x100) || rel == RegCurFrameRate ||
			rel == RegCurVideoMode || rel == RegCurVideoFormat {
			out[off] = v
		}
	}
	return out
}

func (c *Camera) geometryLocked() (frameBytes, packetBytes int, err error) {
	format := c.regs[CommandBase+RegCurVideoFormat] >> 29
	idx := c.regs[CommandBase+RegCurVideoMode] >> 29

	var w, h uint32
	var coding iidc.ColorCoding
	switch format {
	case 0, 1, 2:
		mode := [...]iidc.VideoMode{iidc.Mode160x120YUV444, iidc.Mode800x600YUV422, iidc.Mode1280x960YUV422}[format] +
			iidc.VideoMode(idx)
		rate := iidc.Framerate1_875 + iidc.Framerate(c.regs[CommandBase+RegCurFrameRate]>>29)
		qpp, err := iidc.QuadletsPerPacket(mode, rate)
		if err != nil {
			return 0, 0, err
		}
		if w, h, err = iidc.ImageSize(mode); err != nil {
			return 0, 0, err
		}
		if coding, err = iidc.ModeColorCoding(mode); err != nil {
			return 0, 0, err
		}
		packetBytes = int(qpp) * 4
	case 7:
		if idx >= format7Modes {
			return 0, 0, fmt.Errorf("format7 mode %d: %w", idx, ErrAddress)
		}
		base := format7CSRBase + f7BlockSize*uint64(idx)
		w, h = c.regs[base+f7ImageSize]>>16, c.regs[base+f7ImageSize]&0xFFFF
		coding = iidc.ColorMono8 + iidc.ColorCoding(c.regs[base+f7ColorCodingID]>>24)
		packetBytes = int(c.regs[base+f7BytePerPacket] >> 16)
		if packetBytes == 0 {
			packetBytes = int(f7PacketRecommend)
		}
	default:
		return 0, 0, fmt.Errorf("format %d cannot stream", format)
	}
	q, err := iidc.FrameQuadlets(w, h, coding)
	if err != nil {
		return 0, 0, err
	}
	return int(q) * 4, packetBytes, nil
}

func (c *Camera) nextFrame(force bool) (int, []iidc.IsoPacket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && c.regs[CommandBase+RegIsoEnable]&bit31 == 0 {
		return 0, nil, ErrNotTransmitting
	}
	frameBytes, packetBytes, err := c.geometryLocked()
	if err != nil {
		return 0, nil, err
	}
	iso := c.regs[CommandBase+RegIsoData]
	channel := int(iso>>28) & 0xF
	if iso&0x8000 != 0 {
		channel = int(iso>>8) & 0x3F
	}

	frame := c.frames
	c.frames++
	payload := make([]byte, frameBytes)
	for i := range payload {
		payload[i] = byte(i/64 + int(frame))
	}
	if frameBytes >= 8 {
		binary.BigEndian.PutUint64(payload, frame)
	}

	now := time.Now()
	packets := make([]iidc.IsoPacket, 0, (frameBytes+packetBytes-1)/packetBytes)
	for off := 0; off < frameBytes; off += packetBytes {
		end := min(off+packetBytes, frameBytes)
		packets = append(packets, iidc.IsoPacket{
			Channel: channel,
			Sync:    off == 0,
			Cycle:   uint16(len(packets)),
			Payload: payload[off:end],
			Time:    now,
		})
	}
	return channel, packets, nil
}

func (c *Camera) emit(n int, force bool) error {
	for i := 0; i < n; i++ {
		channel, packets, err := c.nextFrame(force)
		if err != nil {
			return err
		}
		if c.bus != nil {
			c.bus.deliver(channel, packets)
		}
	}
	return nil
}

// EmitFrame sends one frame on the programmed channel. It fails while
// ISO_EN is clear.
func (c *Camera) EmitFrame() error {
	return c.emit(1, false)
}

// EmitFrames sends n frames back to back.
func (c *Camera) EmitFrames(n int) error {
	return c.emit(n, false)
}

// FrameNumber extracts the generator's frame counter from a payload.
func FrameNumber(payload []byte) uint64 {
	if len(payload) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(payload)
}

func (c *Camera) interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	fps := 30.0
	if c.regs[CommandBase+RegCurVideoFormat]>>29 != 7 {
		rate := iidc.Framerate1_875 + iidc.Framerate(c.regs[CommandBase+RegCurFrameRate]>>29)
		if f := rate.FPS(); f > 0 {
			fps = f
		}
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run emits frames at the programmed framerate while transmission is on,
// until ctx is done.
func (c *Camera) Run(ctx context.Context) error {
	timer := time.NewTimer(c.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := c.EmitFrame(); err != nil && !errors.Is(err, ErrNotTransmitting) {
				return err
			}
			timer.Reset(c.interval())
		}
	}
}

// Register returns a command register, bypassing the bus.
func (c *Camera) Register(off uint64) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[CommandBase+off]
}

// SetRegister overwrites a command register without side effects.
func (c *Camera) SetRegister(off uint64, v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[CommandBase+off] = v
}

// WriteCount returns how many bus writes hit a command register.
func (c *Camera) WriteCount(off uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[CommandBase+off]
}

// FeatureControlOffset returns the control register offset of a feature.
func FeatureControlOffset(f iidc.Feature) uint64 {
	return featureRegister(RegFeatureBase, f)
}

// Transmitting reports whether ISO_EN is set.
func (c *Camera) Transmitting() bool {
	return c.Register(RegIsoEnable)&bit31 != 0
}

// Format7CSROffset returns the command-relative offset of a Format7 mode's
// CSR block, for use with Register and SetRegister.
func Format7CSROffset(mode int) uint64 {
	return format7CSRBase - CommandBase + f7BlockSize*uint64(mode)
}
