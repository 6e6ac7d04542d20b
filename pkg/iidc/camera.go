package iidc

import (
	"fmt"
	"log/slog"
	"sync"
)

// Capabilities are read once when a camera is opened and never change for
// the lifetime of the handle.
type Capabilities struct {
	Broadcast        bool
	AdvancedFeatures bool
	B1394            bool
	OneShot          bool
	MultiShot        bool
	PowerControl     bool
	MemoryChannels   uint32
}

// Camera is an open IIDC camera.
type Camera struct {
	bus    Transport
	info   DeviceInfo
	logger *slog.Logger

	commandBase   uint64
	unitDepDir    uint64
	version       IIDCVersion
	caps          Capabilities
	advFeatureCSR uint64

	mu        sync.Mutex
	closed    bool
	broadcast bool
	tags      map[tagKey]tagEntry
	f7Base    [8]uint64
	absBase   [featureCount]uint64
	features  FeatureSet
	iso       IsoState
	capture   *Capture
}

type tagKey struct {
	dir uint64
	key uint32
}

type tagEntry struct {
	addr  uint64
	value uint32
}

// Option configures Open.
type Option func(*Camera)

// WithLogger sets the logger used by the camera and its captures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Camera) {
		if l != nil {
			c.logger = l
		}
	}
}

// Open reads the camera's config ROM directories, locates the command
// registers and caches the capability flags.
func Open(bus Transport, info DeviceInfo, opts ...Option) (*Camera, error) {
	const op = "open camera"
	if bus == nil {
		return nil, errorf(op, CodeNoCamera, "nil transport")
	}
	c := &Camera{
		bus:    bus,
		info:   info,
		logger: slog.Default().With("component", "iidc"),
		tags:   make(map[tagKey]tagEntry),
		iso:    IsoState{Channel: -1},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("node", fmt.Sprintf("0x%04x", info.Node), "port", info.Port)
	c.features = newFeatureSet()

	dep, err := c.lookupTag(info.UnitDirectory, keyUnitDependentDirectory)
	if err != nil {
		return nil, notACamera(op, err)
	}
	// Directory entries point relative to themselves, in quadlets.
	c.unitDepDir = dep.addr + uint64(dep.value)*4

	cmd, err := c.lookupTag(c.unitDepDir, keyCommandRegsBase)
	if err != nil {
		return nil, notACamera(op, err)
	}
	c.commandBase = uint64(cmd.value) * 4

	if c.version, err = c.readVersion(); err != nil {
		return nil, err
	}

	q, err := c.ReadRegister(regBasicFuncInq)
	if err != nil {
		return nil, err
	}
	bf := decodeBasicFunctions(q)
	c.caps = Capabilities{
		Broadcast:        c.version >= IIDC131,
		AdvancedFeatures: bf.advancedFeatures,
		B1394:            bf.is1394b,
		OneShot:          bf.oneShot,
		MultiShot:        bf.multiShot,
		PowerControl:     bf.powerControl,
		MemoryChannels:   bf.memoryChannels,
	}
	if bf.advancedFeatures {
		if q, err := c.ReadRegister(regAdvFeatureInq); err == nil {
			c.advFeatureCSR = uint64(q) * 4
		}
	}

	c.logger.Debug("camera opened",
		"vendor", info.Vendor,
		"model", info.Model,
		"iidc", c.version.String(),
		"command_base", fmt.Sprintf("0x%x", c.commandBase),
		"1394b", c.caps.B1394)
	return c, nil
}

func notACamera(op string, cause error) error {
	return &Error{Code: CodeNotACamera, Op: op, Cause: cause}
}

func (c *Camera) readVersion() (IIDCVersion, error) {
	const op = "iidc version"
	sw, err := c.lookupTag(c.info.UnitDirectory, keyUnitSoftwareVersion)
	if err != nil {
		return 0, err
	}
	switch sw.value {
	case 0x100:
		return IIDC104, nil
	case 0x101:
		return IIDC120, nil
	case 0x114:
		return IIDCPtGrey, nil
	case 0x102:
		sub, err := c.lookupTag(c.info.UnitDirectory, keyUnitSubSoftwareVersion)
		if err != nil {
			// cameras before 1.31 have no sub version entry
			return IIDC130, nil
		}
		n := sub.value >> 4
		if n == 0 {
			return IIDC130, nil
		}
		if n > 9 {
			return 0, errorf(op, CodeInvalidIIDCVersion, "sub version 0x%x", sub.value)
		}
		return IIDC131 + IIDCVersion(n-1), nil
	}
	return 0, errorf(op, CodeInvalidIIDCVersion, "unit software version 0x%x", sw.value)
}

// lookupTag scans the directory at dir (a CSR offset) for key and caches
// the result.
func (c *Camera) lookupTag(dir uint64, key uint32) (tagEntry, error) {
	k := tagKey{dir: dir, key: key}
	c.mu.Lock()
	e, ok := c.tags[k]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	header, err := c.readCSR(dir)
	if err != nil {
		return tagEntry{}, err
	}
	length := uint64(header >> 16)
	for i := uint64(1); i <= length; i++ {
		addr := dir + 4*i
		q, err := c.readCSR(addr)
		if err != nil {
			return tagEntry{}, err
		}
		if q>>24 == key {
			e = tagEntry{addr: addr, value: q & 0xFFFFFF}
			c.mu.Lock()
			c.tags[k] = e
			c.mu.Unlock()
			return e, nil
		}
	}
	return tagEntry{}, errorf("tagged register", CodeTaggedRegisterNotFound, "key 0x%02x in directory 0x%x", key, dir)
}

// Info returns the discovery data the camera was opened with.
func (c *Camera) Info() DeviceInfo { return c.info }

// Capabilities returns the flags read at open.
func (c *Camera) Capabilities() Capabilities { return c.caps }

// Version returns the IIDC revision the camera implements.
func (c *Camera) Version() IIDCVersion { return c.version }

// CommandBase returns the CSR offset of the command registers.
func (c *Camera) CommandBase() uint64 { return c.commandBase }

// SetBroadcast makes register writes go to every camera on the bus.
func (c *Camera) SetBroadcast(on bool) error {
	if on && !c.caps.Broadcast {
		return errorf("set broadcast", CodeFunctionNotSupported, "IIDC %s", c.version)
	}
	c.mu.Lock()
	c.broadcast = on
	c.mu.Unlock()
	return nil
}

func (c *Camera) checkOpen(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(op, CodeCameraNotInitialized, nil)
	}
	return nil
}

func (c *Camera) writeNode() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broadcast {
		return c.info.Node | 0x3F
	}
	return c.info.Node
}

// readCSR reads a quadlet at a CSR offset relative to ConfigROMBase.
func (c *Camera) readCSR(offset uint64) (uint32, error) {
	op := fmt.Sprintf("read 0x%x", offset)
	if err := c.checkOpen(op); err != nil {
		return 0, err
	}
	q, err := c.bus.Read(c.info.Node, ConfigROMBase+offset)
	if err != nil {
		return 0, newError(op, CodeTransactionFailure, err)
	}
	return q, nil
}

func (c *Camera) writeCSR(offset uint64, value uint32) error {
	op := fmt.Sprintf("write 0x%x", offset)
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if err := c.bus.Write(c.writeNode(), ConfigROMBase+offset, value); err != nil {
		return newError(op, CodeTransactionFailure, err)
	}
	return nil
}

// ReadRegister reads a command register.
func (c *Camera) ReadRegister(offset uint64) (uint32, error) {
	return c.readCSR(c.commandBase + offset)
}

// WriteRegister writes a command register.
func (c *Camera) WriteRegister(offset uint64, value uint32) error {
	return c.writeCSR(c.commandBase+offset, value)
}

// ReadAdvancedRegister reads a register in the vendor advanced feature
// space. It fails when the camera has none.
func (c *Camera) ReadAdvancedRegister(offset uint64) (uint32, error) {
	if c.advFeatureCSR == 0 {
		return 0, errorf("read advanced register", CodeFunctionNotSupported, "no advanced feature CSR")
	}
	return c.readCSR(c.advFeatureCSR + offset)
}

// modifyRegister does a read-modify-write of a command register.
func (c *Camera) modifyRegister(offset uint64, fn func(uint32) uint32) error {
	q, err := c.ReadRegister(offset)
	if err != nil {
		return err
	}
	return c.WriteRegister(offset, fn(q))
}

// Close releases the capture, if any, and invalidates the handle.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	// a setup still in progress sees closed and releases its own ring
	c.closed = true
	capture := c.capture
	c.mu.Unlock()

	var err error
	if capture != nil && capture.cam != nil {
		err = capture.Release()
	}
	c.logger.Debug("camera closed")
	return err
}
