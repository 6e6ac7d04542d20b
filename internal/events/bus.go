// Package events is the in-process event bus shared by the camera service,
// metrics and the HTTP API.
package events

import (
	"github.com/kelindar/event"
)

// Bus dispatches typed events to subscribers. Each subscriber receives
// events on its own goroutine, in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish sends ev to the subscribers of its concrete type. Unknown types
// are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraOpenedEvent:
		event.Publish(b.dispatcher, e)
	case CameraClosedEvent:
		event.Publish(b.dispatcher, e)
	case FrameCapturedEvent:
		event.Publish(b.dispatcher, e)
	case FrameLostEvent:
		event.Publish(b.dispatcher, e)
	case IsoStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FeatureChangedEvent:
		event.Publish(b.dispatcher, e)
	case PresetAppliedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, whose parameter type selects the events it
// receives, e.g. func(FrameLostEvent). It returns the unsubscribe function,
// or a no-op for handlers of an unknown type.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraOpenedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameCapturedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameLostEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(IsoStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FeatureChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PresetAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	}
	return func() {}
}
