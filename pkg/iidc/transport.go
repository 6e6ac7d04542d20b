package iidc

import "time"

// Transport is the bus layer a camera is reached through. Addresses are
// full 48-bit bus addresses (ConfigROMBase plus a CSR offset). Every method
// is a single attempt; implementations must not retry.
type Transport interface {
	Read(node uint16, addr uint64) (uint32, error)
	Write(node uint16, addr uint64, value uint32) error

	AllocateIsoChannel(port int) (int, error)
	ReleaseIsoChannel(port int, channel int) error
	AllocateBandwidth(port int, units uint32) error
	ReleaseBandwidth(port int, units uint32) error

	// StartIsoListen begins delivering packets received on channel to sink.
	// Delivery may happen on any goroutine but never concurrently for one
	// channel.
	StartIsoListen(port int, channel int, sink IsoSink) error
	StopIsoListen(port int, channel int) error
}

// IsoPacket is one isochronous packet payload. Sync marks the first packet
// of a frame.
type IsoPacket struct {
	Channel int
	Sync    bool
	Cycle   uint16
	Payload []byte
	Time    time.Time
}

// IsoSink receives packets from the transport.
type IsoSink interface {
	HandlePacket(p IsoPacket)
}

// DeviceInfo describes a camera found by bus discovery.
type DeviceInfo struct {
	Port int
	Node uint16
	// UnitDirectory is the CSR offset of the camera's unit directory.
	UnitDirectory uint64
	GUID          uint64
	Vendor        string
	Model         string
}
