// Package simbus is an in-memory IEEE 1394 bus carrying simulated IIDC
// cameras. It implements iidc.Transport: register transactions hit a
// per-camera register file that mimics camera behaviour (self-clearing
// one-push bits, memory channels, Format7 packet recomputation), and frames
// are generated as isochronous packets on the programmed channel.
package simbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

// Bandwidth available on a fresh bus, in allocation units.
const DefaultBandwidth uint32 = 4915

// Errors returned by the bus.
var (
	ErrNoNode          = errors.New("no such node")
	ErrAddress         = errors.New("address error")
	ErrNoChannel       = errors.New("no free isochronous channel")
	ErrNoBandwidth     = errors.New("insufficient isochronous bandwidth")
	ErrChannelNotOwned = errors.New("channel not allocated")
	ErrChannelBusy     = errors.New("channel already has a listener")
)

// Op is the kind of transaction passed to a fault hook.
type Op int

// Transaction kinds.
const (
	OpRead Op = iota
	OpWrite
)

// FaultFunc may fail a transaction before it reaches the register file.
// addr is the CSR offset relative to iidc.ConfigROMBase.
type FaultFunc func(op Op, node uint16, addr uint64) error

// Bus is a simulated bus on a single port.
type Bus struct {
	mu        sync.Mutex
	cameras   map[uint16]*Camera
	channels  [64]bool
	bandwidth uint32
	listeners map[int]iidc.IsoSink
	fault     FaultFunc
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		cameras:   make(map[uint16]*Camera),
		bandwidth: DefaultBandwidth,
		listeners: make(map[int]iidc.IsoSink),
	}
}

// Attach plugs a camera into the bus.
func (b *Bus) Attach(c *Camera) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.bus = b
	b.cameras[c.node] = c
}

// Devices returns discovery records for every attached camera.
func (b *Bus) Devices() []iidc.DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]iidc.DeviceInfo, 0, len(b.cameras))
	for _, c := range b.cameras {
		out = append(out, c.DeviceInfo())
	}
	return out
}

// SetFault installs a fault hook; nil removes it.
func (b *Bus) SetFault(f FaultFunc) {
	b.mu.Lock()
	b.fault = f
	b.mu.Unlock()
}

// FreeBandwidth returns the unallocated bandwidth.
func (b *Bus) FreeBandwidth() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bandwidth
}

// ChannelAllocated reports whether ch is allocated.
func (b *Bus) ChannelAllocated(ch int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ch >= 0 && ch < len(b.channels) && b.channels[ch]
}

func (b *Bus) targets(node uint16) ([]*Camera, FaultFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if node&0x3F == 0x3F {
		out := make([]*Camera, 0, len(b.cameras))
		for _, c := range b.cameras {
			out = append(out, c)
		}
		return out, b.fault, nil
	}
	c, ok := b.cameras[node]
	if !ok {
		return nil, b.fault, fmt.Errorf("node 0x%04x: %w", node, ErrNoNode)
	}
	return []*Camera{c}, b.fault, nil
}

func csrOffset(addr uint64) (uint64, error) {
	if addr < iidc.ConfigROMBase {
		return 0, fmt.Errorf("0x%x: %w", addr, ErrAddress)
	}
	return addr - iidc.ConfigROMBase, nil
}

// Read implements iidc.Transport.
func (b *Bus) Read(node uint16, addr uint64) (uint32, error) {
	off, err := csrOffset(addr)
	if err != nil {
		return 0, err
	}
	if node&0x3F == 0x3F {
		return 0, fmt.Errorf("broadcast read: %w", ErrAddress)
	}
	cams, fault, err := b.targets(node)
	if err != nil {
		return 0, err
	}
	if fault != nil {
		if err := fault(OpRead, node, off); err != nil {
			return 0, err
		}
	}
	return cams[0].read(off)
}

// Write implements iidc.Transport.
func (b *Bus) Write(node uint16, addr uint64, value uint32) error {
	off, err := csrOffset(addr)
	if err != nil {
		return err
	}
	cams, fault, err := b.targets(node)
	if err != nil {
		return err
	}
	if fault != nil {
		if err := fault(OpWrite, node, off); err != nil {
			return err
		}
	}
	for _, c := range cams {
		if err := c.write(off, value); err != nil {
			return err
		}
	}
	return nil
}

// AllocateIsoChannel implements iidc.Transport.
func (b *Bus) AllocateIsoChannel(port int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.channels {
		if !b.channels[ch] {
			b.channels[ch] = true
			return ch, nil
		}
	}
	return -1, ErrNoChannel
}

// ReleaseIsoChannel implements iidc.Transport.
func (b *Bus) ReleaseIsoChannel(port int, channel int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if channel < 0 || channel >= len(b.channels) || !b.channels[channel] {
		return fmt.Errorf("channel %d: %w", channel, ErrChannelNotOwned)
	}
	b.channels[channel] = false
	return nil
}

// AllocateBandwidth implements iidc.Transport.
func (b *Bus) AllocateBandwidth(port int, units uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if units > b.bandwidth {
		return fmt.Errorf("%d units requested, %d free: %w", units, b.bandwidth, ErrNoBandwidth)
	}
	b.bandwidth -= units
	return nil
}

// ReleaseBandwidth implements iidc.Transport.
func (b *Bus) ReleaseBandwidth(port int, units uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bandwidth = min(b.bandwidth+units, DefaultBandwidth)
	return nil
}

// StartIsoListen implements iidc.Transport.
func (b *Bus) StartIsoListen(port int, channel int, sink iidc.IsoSink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[channel]; ok {
		return fmt.Errorf("channel %d: %w", channel, ErrChannelBusy)
	}
	b.listeners[channel] = sink
	return nil
}

// StopIsoListen implements iidc.Transport.
func (b *Bus) StopIsoListen(port int, channel int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, channel)
	return nil
}

// deliver hands packets to the listener of channel on the caller's
// goroutine. It reports whether anyone was listening.
func (b *Bus) deliver(channel int, packets []iidc.IsoPacket) bool {
	b.mu.Lock()
	sink, ok := b.listeners[channel]
	b.mu.Unlock()
	if !ok {
		return false
	}
	for _, p := range packets {
		sink.HandlePacket(p)
	}
	return true
}
