package events

import "time"

// Event type identifiers for kelindar/event.
const (
	TypeCameraOpened uint32 = iota + 1
	TypeCameraClosed
	TypeFrameCaptured
	TypeFrameLost
	TypeIsoStateChanged
	TypeFeatureChanged
	TypePresetApplied
	TypeCaptureStats
)

// Event is implemented by every payload on the bus.
type Event interface {
	Type() uint32
}

// CameraOpenedEvent is published after a camera is opened and its preset
// applied.
type CameraOpenedEvent struct {
	CameraID  string    `json:"camera_id" example:"0x0001000000000001" doc:"Camera GUID"`
	Vendor    string    `json:"vendor" doc:"Vendor name from the config ROM"`
	Model     string    `json:"model" doc:"Model name from the config ROM"`
	Version   string    `json:"version" example:"1.31" doc:"IIDC version"`
	Timestamp time.Time `json:"timestamp"`
}

func (e CameraOpenedEvent) Type() uint32 { return TypeCameraOpened }

// CameraClosedEvent is published when a camera is released.
type CameraClosedEvent struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e CameraClosedEvent) Type() uint32 { return TypeCameraClosed }

// FrameCapturedEvent is published for every frame committed to a ring.
type FrameCapturedEvent struct {
	CameraID  string    `json:"camera_id"`
	SessionID string    `json:"session_id" doc:"Capture session identifier"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func (e FrameCapturedEvent) Type() uint32 { return TypeFrameCaptured }

// Reasons a frame is lost.
const (
	LostDropped = "dropped"
	LostOverrun = "overrun"
	LostResync  = "resync"
)

// FrameLostEvent reports a frame recycled under the drop policy, discarded
// on overrun, or cut short by a resync.
type FrameLostEvent struct {
	CameraID  string    `json:"camera_id"`
	SessionID string    `json:"session_id"`
	Sequence  uint64    `json:"sequence"`
	Reason    string    `json:"reason" enum:"dropped,overrun,resync"`
	Timestamp time.Time `json:"timestamp"`
}

func (e FrameLostEvent) Type() uint32 { return TypeFrameLost }

// IsoStateChangedEvent follows the streaming session state machine.
type IsoStateChangedEvent struct {
	CameraID  string    `json:"camera_id"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state" enum:"idle,channel_set,transmitting"`
	Channel   int       `json:"channel"`
	Speed     int       `json:"speed_mbps"`
	Bandwidth uint32    `json:"bandwidth_units"`
	Timestamp time.Time `json:"timestamp"`
}

func (e IsoStateChangedEvent) Type() uint32 { return TypeIsoStateChanged }

// FeatureChangedEvent is published after a successful feature write.
type FeatureChangedEvent struct {
	CameraID  string    `json:"camera_id"`
	Feature   string    `json:"feature" example:"shutter"`
	Mode      string    `json:"mode,omitempty" example:"manual"`
	Value     uint32    `json:"value"`
	Absolute  float32   `json:"absolute,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e FeatureChangedEvent) Type() uint32 { return TypeFeatureChanged }

// PresetAppliedEvent reports the outcome of applying a preset. Error is
// empty on success.
type PresetAppliedEvent struct {
	CameraID  string    `json:"camera_id"`
	Preset    string    `json:"preset"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PresetAppliedEvent) Type() uint32 { return TypePresetApplied }

// CaptureStatsEvent is a periodic snapshot of one capture session's
// counters.
type CaptureStatsEvent struct {
	CameraID   string    `json:"camera_id"`
	FPS        float64   `json:"fps" doc:"Frames per second over the last interval"`
	Frames     uint64    `json:"frames"`
	Dropped    uint64    `json:"dropped"`
	Overruns   uint64    `json:"overruns"`
	Resyncs    uint64    `json:"resyncs"`
	Filled     int       `json:"filled" doc:"Buffers waiting to be dequeued"`
	CheckedOut int       `json:"checked_out" doc:"Buffers held by the application"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e CaptureStatsEvent) Type() uint32 { return TypeCaptureStats }
