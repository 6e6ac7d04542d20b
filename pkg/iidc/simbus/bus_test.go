package simbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/iidcnode/pkg/iidc"
)

type sinkFunc func(iidc.IsoPacket)

func (f sinkFunc) HandlePacket(p iidc.IsoPacket) { f(p) }

func TestChannelAllocation(t *testing.T) {
	b := New()
	for want := 0; want < 64; want++ {
		ch, err := b.AllocateIsoChannel(0)
		if err != nil || ch != want {
			t.Fatalf("allocation %d: got %d err %v", want, ch, err)
		}
	}
	if _, err := b.AllocateIsoChannel(0); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if err := b.ReleaseIsoChannel(0, 10); err != nil {
		t.Fatal(err)
	}
	if err := b.ReleaseIsoChannel(0, 10); !errors.Is(err, ErrChannelNotOwned) {
		t.Fatalf("expected ErrChannelNotOwned, got %v", err)
	}
	if ch, _ := b.AllocateIsoChannel(0); ch != 10 {
		t.Fatalf("reallocated %d, want 10", ch)
	}
}

func TestBandwidthAllocation(t *testing.T) {
	b := New()
	if err := b.AllocateBandwidth(0, 4000); err != nil {
		t.Fatal(err)
	}
	if err := b.AllocateBandwidth(0, 1000); !errors.Is(err, ErrNoBandwidth) {
		t.Fatalf("expected ErrNoBandwidth, got %v", err)
	}
	if err := b.ReleaseBandwidth(0, 9999); err != nil {
		t.Fatal(err)
	}
	if b.FreeBandwidth() != DefaultBandwidth {
		t.Fatalf("free %d", b.FreeBandwidth())
	}
}

func TestListeners(t *testing.T) {
	b := New()
	var got []iidc.IsoPacket
	sink := sinkFunc(func(p iidc.IsoPacket) { got = append(got, p) })
	if err := b.StartIsoListen(0, 3, sink); err != nil {
		t.Fatal(err)
	}
	if err := b.StartIsoListen(0, 3, sink); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("expected ErrChannelBusy, got %v", err)
	}
	if !b.deliver(3, []iidc.IsoPacket{{Channel: 3}, {Channel: 3}}) || len(got) != 2 {
		t.Fatalf("delivered %d packets", len(got))
	}
	if b.deliver(4, []iidc.IsoPacket{{Channel: 4}}) {
		t.Fatal("delivered on a channel nobody listens to")
	}
	_ = b.StopIsoListen(0, 3)
	if b.deliver(3, []iidc.IsoPacket{{}}) {
		t.Fatal("delivered after stop")
	}
}

func TestRegisterAccess(t *testing.T) {
	b := New()
	c := NewCamera(0xFFC0)
	b.Attach(c)

	q, err := b.Read(0xFFC0, iidc.ConfigROMBase+CommandBase+RegCurVideoMode)
	if err != nil || q != 5<<29 {
		t.Fatalf("mode register 0x%08x err %v", q, err)
	}
	if _, err := b.Read(0xFFC5, iidc.ConfigROMBase+CommandBase); !errors.Is(err, ErrNoNode) {
		t.Fatalf("expected ErrNoNode, got %v", err)
	}
	if _, err := b.Read(0xFFC0, 0x1000); !errors.Is(err, ErrAddress) {
		t.Fatalf("expected ErrAddress, got %v", err)
	}
	if _, err := b.Read(0xFFC0, iidc.ConfigROMBase+0x10); !errors.Is(err, ErrAddress) {
		t.Fatalf("expected ErrAddress for an unmapped ROM offset, got %v", err)
	}
	if _, err := b.Read(0xFFFF, iidc.ConfigROMBase+CommandBase); !errors.Is(err, ErrAddress) {
		t.Fatalf("expected ErrAddress for a broadcast read, got %v", err)
	}

	// inquiry registers are read only
	if err := b.Write(0xFFC0, iidc.ConfigROMBase+CommandBase+RegBasicFuncInq, 0); err != nil {
		t.Fatal(err)
	}
	if c.Register(RegBasicFuncInq) == 0 {
		t.Fatal("inquiry register was overwritten")
	}
	if c.WriteCount(RegBasicFuncInq) != 1 {
		t.Fatalf("write count %d", c.WriteCount(RegBasicFuncInq))
	}
}

func TestFaultHook(t *testing.T) {
	b := New()
	b.Attach(NewCamera(0xFFC0))
	boom := errors.New("ack busy")
	var seen []Op
	b.SetFault(func(op Op, node uint16, addr uint64) error {
		seen = append(seen, op)
		if op == OpWrite {
			return boom
		}
		return nil
	})
	if _, err := b.Read(0xFFC0, iidc.ConfigROMBase+CommandBase); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(0xFFC0, iidc.ConfigROMBase+CommandBase+RegIsoEnable, 1<<31); !errors.Is(err, boom) {
		t.Fatalf("expected fault error, got %v", err)
	}
	if len(seen) != 2 || seen[0] != OpRead || seen[1] != OpWrite {
		t.Fatalf("fault hook saw %v", seen)
	}
}

func TestEmitFramePackets(t *testing.T) {
	b := New()
	c := NewCamera(0xFFC0)
	b.Attach(c)

	var packets []iidc.IsoPacket
	if err := b.StartIsoListen(0, 0, sinkFunc(func(p iidc.IsoPacket) { packets = append(packets, p) })); err != nil {
		t.Fatal(err)
	}
	if err := c.EmitFrame(); !errors.Is(err, ErrNotTransmitting) {
		t.Fatalf("expected ErrNotTransmitting, got %v", err)
	}
	c.SetRegister(RegIsoEnable, bit31)
	if err := c.EmitFrames(2); err != nil {
		t.Fatal(err)
	}

	// 640x480 MONO8 at 30fps: 320 quadlets per packet
	perFrame := 640 * 480 / 1280
	if len(packets) != 2*perFrame {
		t.Fatalf("%d packets, want %d", len(packets), 2*perFrame)
	}
	for i, p := range packets {
		if p.Sync != (i%perFrame == 0) {
			t.Fatalf("packet %d sync=%t", i, p.Sync)
		}
		if len(p.Payload) != 1280 {
			t.Fatalf("packet %d has %d bytes", i, len(p.Payload))
		}
	}
	if FrameNumber(packets[perFrame].Payload) != 1 {
		t.Fatalf("second frame numbered %d", FrameNumber(packets[perFrame].Payload))
	}
}

func TestFormat7ValueSetting(t *testing.T) {
	c := NewCamera(0xFFC0)
	base := format7CSRBase

	if err := c.write(base+f7ImagePosition, 1200<<16); err != nil {
		t.Fatal(err)
	}
	_ = c.write(base+f7ValueSetting, 0x40000000)
	if q, _ := c.read(base + f7ValueSetting); q != bit31|0x00800000 {
		t.Fatalf("value setting 0x%08x, want error flag 1", q)
	}

	_ = c.write(base+f7ImagePosition, 0)
	_ = c.write(base+f7BytePerPacket, 1001<<16)
	_ = c.write(base+f7ValueSetting, 0x40000000)
	if q, _ := c.read(base + f7ValueSetting); q != bit31|0x00400000 {
		t.Fatalf("value setting 0x%08x, want error flag 2", q)
	}
	if q, _ := c.read(base + f7BytePerPacket); q&0xFFFF != f7PacketRecommend {
		t.Fatalf("recommended packet size lost: 0x%08x", q)
	}
}

func TestInitializeRestoresDefaults(t *testing.T) {
	c := NewCamera(0xFFC0)
	_ = c.write(CommandBase+RegCurVideoMode, 2<<29)
	_ = c.write(CommandBase+RegInitialize, bit31)
	if c.Register(RegCurVideoMode) != 5<<29 {
		t.Fatalf("mode 0x%08x after initialize", c.Register(RegCurVideoMode))
	}
}

func TestRun(t *testing.T) {
	b := New()
	c := NewCamera(0xFFC0)
	b.Attach(c)
	c.SetRegister(RegCurFrameRate, 7<<29) // 240fps
	c.SetRegister(RegIsoEnable, bit31)

	var mu sync.Mutex
	frames := 0
	_ = b.StartIsoListen(0, 0, sinkFunc(func(p iidc.IsoPacket) {
		if p.Sync {
			mu.Lock()
			frames++
			mu.Unlock()
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if frames == 0 {
		t.Fatal("no frames emitted")
	}
}
