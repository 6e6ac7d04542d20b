package iidc

// ConfigROMBase is the start of the CSR address space in bus addresses.
const ConfigROMBase uint64 = 0xFFFFF0000000

// Command register offsets, relative to the command base.
const (
	regInitialize       uint64 = 0x000
	regVFormatInq       uint64 = 0x100
	regVModeInqBase     uint64 = 0x180
	regVRateInqBase     uint64 = 0x200
	regVRevInqBase      uint64 = 0x2C0
	regVCSRInqBase      uint64 = 0x2E0
	regBasicFuncInq     uint64 = 0x400
	regFeatureHiInq     uint64 = 0x404
	regFeatureLoInq     uint64 = 0x408
	regOptFuncInq       uint64 = 0x40C
	regAdvFeatureInq    uint64 = 0x480
	regFeatureInqHiBase uint64 = 0x500
	regFeatureInqLoBase uint64 = 0x580
	regCurFrameRate     uint64 = 0x600
	regCurVideoMode     uint64 = 0x604
	regCurVideoFormat   uint64 = 0x608
	regIsoData          uint64 = 0x60C
	regPower            uint64 = 0x610
	regIsoEnable        uint64 = 0x614
	regMemorySave       uint64 = 0x618
	regOneShot          uint64 = 0x61C
	regMemSaveCh        uint64 = 0x620
	regCurMemCh         uint64 = 0x624
	regSoftTrigger      uint64 = 0x62C
	regDataDepth        uint64 = 0x630
	regAbsCSRHiBase     uint64 = 0x700
	regAbsCSRLoBase     uint64 = 0x780
	regFeatureHiBase    uint64 = 0x800
	regFeatureLoBase    uint64 = 0x880
)

// Absolute control CSR layout.
const (
	absMin   uint64 = 0x0
	absMax   uint64 = 0x4
	absValue uint64 = 0x8
)

// Format7 CSR offsets, relative to the per-mode CSR base.
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
	f7FrameInterval  uint64 = 0x050
	f7DataDepth      uint64 = 0x054
	f7ColorFilterID  uint64 = 0x058
	f7ValueSetting   uint64 = 0x07C
)

const bit31 uint32 = 0x80000000

// Config ROM directory keys.
const (
	keyUnitDependentDirectory uint32 = 0xD4
	keyCommandRegsBase        uint32 = 0x40
	keyUnitSoftwareVersion    uint32 = 0x13
	keyUnitSubSoftwareVersion uint32 = 0x38
)

// field3 packs and unpacks the 3-bit fields in bits 31-29 used by
// CUR_VIDEO_FORMAT, CUR_VIDEO_MODE and CUR_FRAME_RATE.
func packField3(v uint32) uint32   { return (v & 0x7) << 29 }
func unpackField3(q uint32) uint32 { return q >> 29 }

// basicFunctions is BASIC_FUNC_INQ.
type basicFunctions struct {
	advancedFeatures bool
	is1394b          bool
	oneShot          bool
	multiShot        bool
	powerControl     bool
	memoryChannels   uint32
}

func decodeBasicFunctions(q uint32) basicFunctions {
	return basicFunctions{
		advancedFeatures: q&0x80000000 != 0,
		is1394b:          q&0x00800000 != 0,
		oneShot:          q&0x00001000 != 0,
		multiShot:        q&0x00000800 != 0,
		powerControl:     q&0x00008000 != 0,
		memoryChannels:   q & 0x0000000F,
	}
}

// isoData is the ISO_DATA register in either layout.
type isoData struct {
	channel uint32
	speed   IsoSpeed
	b1394   bool
}

const isoDataB1394 uint32 = 0x00008000

func decodeIsoData(q uint32) isoData {
	if q&isoDataB1394 != 0 {
		return isoData{channel: (q >> 8) & 0x3F, speed: IsoSpeed(q & 0x7), b1394: true}
	}
	return isoData{channel: (q >> 28) & 0xF, speed: IsoSpeed((q >> 24) & 0x3)}
}

func (d isoData) encode() uint32 {
	if d.b1394 {
		return (d.channel&0x3F)<<8 | uint32(d.speed)&0x7 | isoDataB1394
	}
	return (d.channel&0xF)<<28 | (uint32(d.speed)&0x3)<<24
}

// featureInquiry is one FEATURE_INQ register.
type featureInquiry struct {
	present  bool
	absolute bool
	onePush  bool
	readout  bool
	onOff    bool
	auto     bool
	manual   bool
	polarity bool // trigger only
	min, max uint32
	modeMask uint32 // trigger only, bit 15-n set when mode n is supported
}

func decodeFeatureInquiry(id Feature, q uint32) featureInquiry {
	fi := featureInquiry{
		present:  q&0x80000000 != 0,
		absolute: q&0x40000000 != 0,
		onePush:  q&0x10000000 != 0,
		readout:  q&0x08000000 != 0,
		onOff:    q&0x04000000 != 0,
	}
	if id == FeatureTrigger {
		fi.polarity = q&0x02000000 != 0
		fi.modeMask = q & 0xFFFF
		return fi
	}
	fi.auto = q&0x02000000 != 0
	fi.manual = q&0x01000000 != 0
	fi.min = (q >> 12) & 0xFFF
	fi.max = q & 0xFFF
	return fi
}

// featureControl is one feature control register. Only the fields common
// to every feature are decoded here; value layouts differ per feature.
type featureControl struct {
	present   bool
	absolute  bool
	onePush   bool
	on        bool
	auto      bool
	valueBits uint32
}

const (
	fcPresence   uint32 = 0x80000000
	fcAbsControl uint32 = 0x40000000
	fcOnePush    uint32 = 0x04000000
	fcOnOff      uint32 = 0x02000000
	fcAuto       uint32 = 0x01000000
	fcValueMask  uint32 = 0x00FFFFFF
)

func decodeFeatureControl(q uint32) featureControl {
	return featureControl{
		present:   q&fcPresence != 0,
		absolute:  q&fcAbsControl != 0,
		onePush:   q&fcOnePush != 0,
		on:        q&fcOnOff != 0,
		auto:      q&fcAuto != 0,
		valueBits: q & fcValueMask,
	}
}

func setBit(q, mask uint32, on bool) uint32 {
	if on {
		return q | mask
	}
	return q &^ mask
}

// triggerControl is TRIGGER_MODE.
type triggerControl struct {
	on       bool
	polarity TriggerPolarity
	mode     uint32
}

const (
	trigOnOff    uint32 = 0x02000000
	trigPolarity uint32 = 0x01000000
	trigModeMask uint32 = 0x000F0000
)

func decodeTrigger(q uint32) triggerControl {
	t := triggerControl{on: q&trigOnOff != 0, polarity: TriggerActiveLow, mode: (q & trigModeMask) >> 16}
	if q&trigPolarity != 0 {
		t.polarity = TriggerActiveHigh
	}
	return t
}

// hi12/lo12 handle the two 12-bit value fields used by white balance and
// temperature, and the three fields of white shading.
func hi12(q uint32) uint32 { return (q >> 12) & 0xFFF }
func lo12(q uint32) uint32 { return q & 0xFFF }

func withHi12(q, v uint32) uint32 { return q&^(0xFFF<<12) | (v&0xFFF)<<12 }
func withLo12(q, v uint32) uint32 { return q&^0xFFF | v&0xFFF }

// pair16 is the hi<<16|lo packing of Format7 size and position registers.
func pair16(q uint32) (hi, lo uint32)  { return q >> 16, q & 0xFFFF }
func packPair16(hi, lo uint32) uint32 { return (hi&0xFFFF)<<16 | lo&0xFFFF }

// valueSetting is the Format7 VALUE_SETTING register.
type valueSetting struct {
	present  bool
	setting1 bool
	err1     bool
	err2     bool
}

const (
	vsPresence uint32 = 0x80000000
	vsSetting1 uint32 = 0x40000000
	vsErrFlag1 uint32 = 0x00800000
	vsErrFlag2 uint32 = 0x00400000
)

func decodeValueSetting(q uint32) valueSetting {
	return valueSetting{
		present:  q&vsPresence != 0,
		setting1: q&vsSetting1 != 0,
		err1:     q&vsErrFlag1 != 0,
		err2:     q&vsErrFlag2 != 0,
	}
}

// oneShot is the ONE_SHOT register.
const (
	oneShotBit   uint32 = 0x80000000
	multiShotBit uint32 = 0x40000000
	shotCount    uint32 = 0x0000FFFF
)
