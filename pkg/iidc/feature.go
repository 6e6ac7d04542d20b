package iidc

import (
	"fmt"
	"math"
	"strings"
)

// Feature identifies a camera control.
type Feature uint32

// Features, in register order.
const (
	FeatureBrightness Feature = iota + 416
	FeatureExposure
	FeatureSharpness
	FeatureWhiteBalance
	FeatureHue
	FeatureSaturation
	FeatureGamma
	FeatureShutter
	FeatureGain
	FeatureIris
	FeatureFocus
	FeatureTemperature
	FeatureTrigger
	FeatureTriggerDelay
	FeatureWhiteShading
	FeatureFrameRate
	FeatureZoom
	FeaturePan
	FeatureTilt
	FeatureOpticalFilter
	FeatureCaptureSize
	FeatureCaptureQuality
)

const (
	featureMin   = FeatureBrightness
	featureMax   = FeatureCaptureQuality
	featureCount = int(featureMax-featureMin) + 1
)

var featureNames = [featureCount]string{
	"Brightness", "Exposure", "Sharpness", "White Balance", "Hue", "Saturation",
	"Gamma", "Shutter", "Gain", "Iris", "Focus", "Temperature", "Trigger",
	"Trigger Delay", "White Shading", "Frame Rate", "Zoom", "Pan", "Tilt",
	"Optical Filter", "Capture Size", "Capture Quality",
}

// Features lists every feature id.
func Features() []Feature {
	ids := make([]Feature, 0, featureCount)
	for f := featureMin; f <= featureMax; f++ {
		ids = append(ids, f)
	}
	return ids
}

func (f Feature) valid() bool { return f >= featureMin && f <= featureMax }

func (f Feature) String() string {
	if !f.valid() {
		return fmt.Sprintf("Feature(%d)", uint32(f))
	}
	return featureNames[f-featureMin]
}

// ParseFeature matches a feature name, ignoring case, spaces, dashes and
// underscores ("white_balance", "WhiteBalance", "White Balance").
func ParseFeature(name string) (Feature, error) {
	want := normalizeName(name)
	for f := featureMin; f <= featureMax; f++ {
		if normalizeName(featureNames[f-featureMin]) == want {
			return f, nil
		}
	}
	return 0, errorf("parse feature", CodeInvalidFeature, "unknown feature %q", name)
}

func normalizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// featureBit returns the bit position of the feature in FEATURE_HI_INQ or
// FEATURE_LO_INQ. Features from zoom upwards live in the low register and
// capture size/quality sit after a 12-bit reserved gap.
func featureBit(f Feature) (bit uint32, lo bool, err error) {
	if !f.valid() {
		return 0, false, errorf("feature bit", CodeInvalidFeature, "feature %d", uint32(f))
	}
	if f >= FeatureZoom {
		n := uint32(f)
		if f >= FeatureCaptureSize {
			n += 12
		}
		return n - uint32(FeatureZoom), true, nil
	}
	return uint32(f - featureMin), false, nil
}

// isFeatureBitSet tests the presence bit of f in an inquiry quadlet.
func isFeatureBitSet(q uint32, f Feature) bool {
	bit, _, err := featureBit(f)
	if err != nil {
		return false
	}
	return q&(bit31>>bit) != 0
}

// featureOffset maps a feature onto one of the per-feature register banks
// (inquiry, control or absolute CSR).
func featureOffset(f Feature, hiBase, loBase uint64) (uint64, error) {
	bit, lo, err := featureBit(f)
	if err != nil {
		return 0, err
	}
	if lo {
		return loBase + uint64(bit)*4, nil
	}
	return hiBase + uint64(bit)*4, nil
}

// FeatureInfo is the decoded state of one feature. Min, Max and Value are
// only meaningful when Available is set.
type FeatureInfo struct {
	ID        Feature `json:"id"`
	Name      string  `json:"name"`
	Available bool    `json:"available"`

	AbsoluteCapable bool `json:"absolute_capable"`
	ReadoutCapable  bool `json:"readout_capable"`
	OnOffCapable    bool `json:"on_off_capable"`
	AutoCapable     bool `json:"auto_capable"`
	ManualCapable   bool `json:"manual_capable"`
	OnePushCapable  bool `json:"one_push_capable"`
	PolarityCapable bool `json:"polarity_capable"`

	On              bool `json:"on"`
	Auto            bool `json:"auto"`
	OnePushActive   bool `json:"one_push_active"`
	AbsoluteControl bool `json:"absolute_control"`

	Min   uint32 `json:"min"`
	Max   uint32 `json:"max"`
	Value uint32 `json:"value"`

	// White balance.
	BUValue uint32 `json:"bu_value,omitempty"`
	RVValue uint32 `json:"rv_value,omitempty"`
	// White shading.
	RValue uint32 `json:"r_value,omitempty"`
	GValue uint32 `json:"g_value,omitempty"`
	BValue uint32 `json:"b_value,omitempty"`
	// Temperature.
	TargetValue uint32 `json:"target_value,omitempty"`

	// Trigger.
	TriggerModes    []TriggerMode   `json:"trigger_modes,omitempty"`
	TriggerMode     TriggerMode     `json:"trigger_mode,omitempty"`
	TriggerPolarity TriggerPolarity `json:"trigger_polarity,omitempty"`

	AbsMin   float32 `json:"abs_min,omitempty"`
	AbsMax   float32 `json:"abs_max,omitempty"`
	AbsValue float32 `json:"abs_value,omitempty"`

	inquired bool
}

// Readable reports whether Value reflects the hardware.
func (f FeatureInfo) Readable() bool {
	return f.Available && (f.ReadoutCapable || f.ManualCapable)
}

// FeatureSet holds one descriptor per feature, indexed by id.
type FeatureSet [featureCount]FeatureInfo

// Get returns the descriptor for id.
func (s *FeatureSet) Get(id Feature) (FeatureInfo, bool) {
	if !id.valid() {
		return FeatureInfo{}, false
	}
	return s[id-featureMin], true
}

func newFeatureSet() FeatureSet {
	var s FeatureSet
	for i := range s {
		id := featureMin + Feature(i)
		s[i] = FeatureInfo{ID: id, Name: id.String()}
	}
	return s
}

// Feature reads the inquiry, control and absolute registers of id. A
// feature the camera does not implement is returned with Available unset.
func (c *Camera) Feature(id Feature) (FeatureInfo, error) {
	const op = "get feature"
	if !id.valid() {
		return FeatureInfo{}, errorf(op, CodeInvalidFeature, "feature %d", uint32(id))
	}
	info := FeatureInfo{ID: id, Name: id.String()}

	presenceReg := regFeatureHiInq
	if _, lo, _ := featureBit(id); lo {
		presenceReg = regFeatureLoInq
	}
	q, err := c.ReadRegister(presenceReg)
	if err != nil {
		return info, err
	}
	if !isFeatureBitSet(q, id) {
		info.inquired = true
		c.storeFeature(info)
		return info, nil
	}

	inqOff, _ := featureOffset(id, regFeatureInqHiBase, regFeatureInqLoBase)
	if q, err = c.ReadRegister(inqOff); err != nil {
		return info, err
	}
	inq := decodeFeatureInquiry(id, q)
	info.Available = inq.present
	info.AbsoluteCapable = inq.absolute
	info.ReadoutCapable = inq.readout
	info.OnOffCapable = inq.onOff
	info.AutoCapable = inq.auto
	info.ManualCapable = inq.manual
	info.OnePushCapable = inq.onePush
	info.PolarityCapable = inq.polarity
	info.Min, info.Max = inq.min, inq.max
	if id == FeatureTrigger {
		for n := uint32(0); n < 16; n++ {
			if inq.modeMask&(0x8000>>n) == 0 {
				continue
			}
			if m, err := triggerModeFromNumber(n); err == nil {
				info.TriggerModes = append(info.TriggerModes, m)
			}
		}
	}
	info.inquired = true
	if !info.Available {
		c.storeFeature(info)
		return info, nil
	}

	ctlOff, _ := featureOffset(id, regFeatureHiBase, regFeatureLoBase)
	if q, err = c.ReadRegister(ctlOff); err != nil {
		return info, err
	}
	fc := decodeFeatureControl(q)
	info.On = fc.on
	info.AbsoluteControl = fc.absolute
	info.OnePushActive = fc.onePush

	switch id {
	case FeatureTrigger:
		t := decodeTrigger(q)
		info.On = t.on
		info.TriggerPolarity = t.polarity
		if m, err := triggerModeFromNumber(t.mode); err == nil {
			info.TriggerMode = m
		}
	case FeatureWhiteBalance:
		info.Auto = fc.auto
		info.BUValue = hi12(q)
		info.RVValue = lo12(q)
	case FeatureWhiteShading:
		info.Auto = fc.auto
		info.RValue = (q >> 16) & 0xFF
		info.GValue = (q >> 8) & 0xFF
		info.BValue = q & 0xFF
	case FeatureTemperature:
		info.Auto = fc.auto
		info.TargetValue = hi12(q)
		info.Value = lo12(q)
	default:
		info.Auto = fc.auto
		info.Value = lo12(q)
	}

	if info.AbsoluteCapable {
		if err := c.readAbsolute(&info); err != nil {
			return info, err
		}
	}

	c.storeFeature(info)
	return info, nil
}

// FeatureSet refreshes and returns every feature.
func (c *Camera) FeatureSet() (FeatureSet, error) {
	set := newFeatureSet()
	for i := range set {
		f, err := c.Feature(featureMin + Feature(i))
		if err != nil {
			return set, err
		}
		set[i] = f
	}
	return set, nil
}

func (c *Camera) storeFeature(info FeatureInfo) {
	c.mu.Lock()
	c.features[info.ID-featureMin] = info
	c.mu.Unlock()
}

// cachedFeature returns the last decoded descriptor, reading it from the
// camera the first time.
func (c *Camera) cachedFeature(id Feature) (FeatureInfo, error) {
	if !id.valid() {
		return FeatureInfo{}, errorf("feature", CodeInvalidFeature, "feature %d", uint32(id))
	}
	c.mu.Lock()
	info := c.features[id-featureMin]
	c.mu.Unlock()
	if info.inquired {
		return info, nil
	}
	return c.Feature(id)
}

func (c *Camera) availableFeature(op string, id Feature) (FeatureInfo, error) {
	info, err := c.cachedFeature(id)
	if err != nil {
		return info, err
	}
	if !info.Available {
		return info, errorf(op, CodeInvalidFeature, "%s is not available", id)
	}
	return info, nil
}

func (c *Camera) updateFeature(id Feature, fn func(*FeatureInfo)) {
	c.mu.Lock()
	fn(&c.features[id-featureMin])
	c.mu.Unlock()
}

func (c *Camera) modifyFeature(id Feature, fn func(uint32) uint32) error {
	off, err := featureOffset(id, regFeatureHiBase, regFeatureLoBase)
	if err != nil {
		return err
	}
	return c.modifyRegister(off, fn)
}

func checkRange(op string, id Feature, v, lo, hi uint32) error {
	if v < lo || v > hi {
		return errorf(op, CodeValueOutOfRange, "%s value %d outside [%d, %d]", id, v, lo, hi)
	}
	return nil
}

// SetFeatureValue writes the integer value of a single-valued feature.
// Features with several value fields have their own setters.
func (c *Camera) SetFeatureValue(id Feature, value uint32) error {
	const op = "set feature value"
	switch id {
	case FeatureWhiteBalance, FeatureWhiteShading, FeatureTemperature, FeatureTrigger:
		return errorf(op, CodeInvalidFeature, "%s has no single value", id)
	}
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if err := checkRange(op, id, value, info.Min, info.Max); err != nil {
		return err
	}
	if err := c.modifyFeature(id, func(q uint32) uint32 { return withLo12(q, value) }); err != nil {
		return err
	}
	c.updateFeature(id, func(f *FeatureInfo) { f.Value = value })
	return nil
}

// SetFeatureOnOff switches a feature on or off.
func (c *Camera) SetFeatureOnOff(id Feature, on bool) error {
	const op = "set feature power"
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if !info.OnOffCapable {
		return errorf(op, CodeFunctionNotSupported, "%s cannot be switched", id)
	}
	if err := c.modifyFeature(id, func(q uint32) uint32 { return setBit(q, fcOnOff, on) }); err != nil {
		return err
	}
	c.updateFeature(id, func(f *FeatureInfo) { f.On = on })
	return nil
}

// SetFeatureAuto selects automatic (true) or manual control.
func (c *Camera) SetFeatureAuto(id Feature, auto bool) error {
	const op = "set feature mode"
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if id == FeatureTrigger {
		return errorf(op, CodeInvalidFeature, "trigger has no auto mode")
	}
	if auto && !info.AutoCapable || !auto && !info.ManualCapable {
		return errorf(op, CodeFunctionNotSupported, "%s auto=%t", id, auto)
	}
	if err := c.modifyFeature(id, func(q uint32) uint32 { return setBit(q, fcAuto, auto) }); err != nil {
		return err
	}
	c.updateFeature(id, func(f *FeatureInfo) { f.Auto = auto })
	return nil
}

// StartOnePush triggers a single automatic adjustment. The camera clears
// the bit when done.
func (c *Camera) StartOnePush(id Feature) error {
	const op = "one push"
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if !info.OnePushCapable {
		return errorf(op, CodeFunctionNotSupported, "%s has no one-push", id)
	}
	return c.modifyFeature(id, func(q uint32) uint32 { return q | fcOnePush })
}

// SetAbsoluteControl switches between the integer and the absolute value
// interface of a feature.
func (c *Camera) SetAbsoluteControl(id Feature, on bool) error {
	const op = "set absolute control"
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if !info.AbsoluteCapable {
		return errorf(op, CodeFunctionNotSupported, "%s has no absolute control", id)
	}
	if err := c.modifyFeature(id, func(q uint32) uint32 { return setBit(q, fcAbsControl, on) }); err != nil {
		return err
	}
	c.updateFeature(id, func(f *FeatureInfo) { f.AbsoluteControl = on })
	return nil
}

func (c *Camera) absoluteCSR(id Feature) (uint64, error) {
	c.mu.Lock()
	base := c.absBase[id-featureMin]
	c.mu.Unlock()
	if base != 0 {
		return base, nil
	}
	off, err := featureOffset(id, regAbsCSRHiBase, regAbsCSRLoBase)
	if err != nil {
		return 0, err
	}
	q, err := c.ReadRegister(off)
	if err != nil {
		return 0, err
	}
	if q == 0 {
		return 0, errorf("absolute csr", CodeFunctionNotSupported, "%s has no absolute CSR", id)
	}
	base = uint64(q) * 4
	c.mu.Lock()
	c.absBase[id-featureMin] = base
	c.mu.Unlock()
	return base, nil
}

func (c *Camera) readAbsolute(info *FeatureInfo) error {
	base, err := c.absoluteCSR(info.ID)
	if err != nil {
		return err
	}
	vals := make([]float32, 3)
	for i, off := range []uint64{absMin, absMax, absValue} {
		q, err := c.readCSR(base + off)
		if err != nil {
			return err
		}
		vals[i] = math.Float32frombits(q)
	}
	info.AbsMin, info.AbsMax, info.AbsValue = vals[0], vals[1], vals[2]
	return nil
}

// SetAbsoluteValue writes the physically scaled value of a feature.
func (c *Camera) SetAbsoluteValue(id Feature, value float32) error {
	const op = "set absolute value"
	info, err := c.availableFeature(op, id)
	if err != nil {
		return err
	}
	if !info.AbsoluteCapable {
		return errorf(op, CodeFunctionNotSupported, "%s has no absolute control", id)
	}
	if value < info.AbsMin || value > info.AbsMax {
		return errorf(op, CodeValueOutOfRange, "%s value %g outside [%g, %g]", id, value, info.AbsMin, info.AbsMax)
	}
	base, err := c.absoluteCSR(id)
	if err != nil {
		return err
	}
	if err := c.writeCSR(base+absValue, math.Float32bits(value)); err != nil {
		return err
	}
	c.updateFeature(id, func(f *FeatureInfo) { f.AbsValue = value })
	return nil
}

// SetWhiteBalance writes the U/B and V/R components.
func (c *Camera) SetWhiteBalance(bu, rv uint32) error {
	const op = "set white balance"
	info, err := c.availableFeature(op, FeatureWhiteBalance)
	if err != nil {
		return err
	}
	if err := checkRange(op, FeatureWhiteBalance, bu, info.Min, info.Max); err != nil {
		return err
	}
	if err := checkRange(op, FeatureWhiteBalance, rv, info.Min, info.Max); err != nil {
		return err
	}
	err = c.modifyFeature(FeatureWhiteBalance, func(q uint32) uint32 { return withLo12(withHi12(q, bu), rv) })
	if err != nil {
		return err
	}
	c.updateFeature(FeatureWhiteBalance, func(f *FeatureInfo) { f.BUValue, f.RVValue = bu, rv })
	return nil
}

// SetWhiteShading writes the per-channel shading values.
func (c *Camera) SetWhiteShading(r, g, b uint32) error {
	const op = "set white shading"
	info, err := c.availableFeature(op, FeatureWhiteShading)
	if err != nil {
		return err
	}
	for _, v := range []uint32{r, g, b} {
		if err := checkRange(op, FeatureWhiteShading, v, info.Min, min(info.Max, 0xFF)); err != nil {
			return err
		}
	}
	err = c.modifyFeature(FeatureWhiteShading, func(q uint32) uint32 {
		return q&^0xFFFFFF | r<<16 | g<<8 | b
	})
	if err != nil {
		return err
	}
	c.updateFeature(FeatureWhiteShading, func(f *FeatureInfo) { f.RValue, f.GValue, f.BValue = r, g, b })
	return nil
}

// SetTemperature writes the target color temperature.
func (c *Camera) SetTemperature(target uint32) error {
	const op = "set temperature"
	info, err := c.availableFeature(op, FeatureTemperature)
	if err != nil {
		return err
	}
	if err := checkRange(op, FeatureTemperature, target, info.Min, info.Max); err != nil {
		return err
	}
	if err := c.modifyFeature(FeatureTemperature, func(q uint32) uint32 { return withHi12(q, target) }); err != nil {
		return err
	}
	c.updateFeature(FeatureTemperature, func(f *FeatureInfo) { f.TargetValue = target })
	return nil
}

// SetTriggerMode selects one of the modes the camera advertises.
func (c *Camera) SetTriggerMode(mode TriggerMode) error {
	const op = "set trigger mode"
	n, err := mode.number()
	if err != nil {
		return err
	}
	info, err := c.availableFeature(op, FeatureTrigger)
	if err != nil {
		return err
	}
	supported := false
	for _, m := range info.TriggerModes {
		supported = supported || m == mode
	}
	if !supported {
		return errorf(op, CodeInvalidTriggerMode, "trigger mode %d not supported", n)
	}
	err = c.modifyFeature(FeatureTrigger, func(q uint32) uint32 { return q&^trigModeMask | n<<16 })
	if err != nil {
		return err
	}
	c.updateFeature(FeatureTrigger, func(f *FeatureInfo) { f.TriggerMode = mode })
	return nil
}

// SetTriggerPolarity selects the active edge of the trigger input.
func (c *Camera) SetTriggerPolarity(p TriggerPolarity) error {
	const op = "set trigger polarity"
	if p != TriggerActiveLow && p != TriggerActiveHigh {
		return errorf(op, CodeInvalidArgument, "polarity %d", uint32(p))
	}
	info, err := c.availableFeature(op, FeatureTrigger)
	if err != nil {
		return err
	}
	if !info.PolarityCapable {
		return errorf(op, CodeFunctionNotSupported, "trigger polarity is fixed")
	}
	err = c.modifyFeature(FeatureTrigger, func(q uint32) uint32 {
		return setBit(q, trigPolarity, p == TriggerActiveHigh)
	})
	if err != nil {
		return err
	}
	c.updateFeature(FeatureTrigger, func(f *FeatureInfo) { f.TriggerPolarity = p })
	return nil
}

// SoftwareTrigger raises or lowers the software trigger line.
func (c *Camera) SoftwareTrigger(on bool) error {
	var q uint32
	if on {
		q = bit31
	}
	return c.WriteRegister(regSoftTrigger, q)
}
