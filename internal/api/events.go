package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/iidcnode/internal/events"
)

// eventTypes maps SSE event names to payloads for the /api/events stream.
var eventTypes = map[string]any{
	"camera-opened":   events.CameraOpenedEvent{},
	"camera-closed":   events.CameraClosedEvent{},
	"frame-captured":  events.FrameCapturedEvent{},
	"frame-lost":      events.FrameLostEvent{},
	"iso-state":       events.IsoStateChangedEvent{},
	"feature-changed": events.FeatureChangedEvent{},
	"preset-applied":  events.PresetAppliedEvent{},
}

func (s *Server) registerSSERoutes() {
	if s.eventBus == nil || s.cameras == nil {
		return
	}
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Camera lifecycle, ISO state, lost frames, feature and preset changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraOpenedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraClosedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameCapturedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameLostEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.IsoStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FeatureChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PresetAppliedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// replay the open cameras so a new client starts from a known state
		now := time.Now()
		for _, c := range s.cameras.List() {
			err := send.Data(events.CameraOpenedEvent{
				CameraID:  c.ID,
				Vendor:    c.Vendor,
				Model:     c.Model,
				Version:   c.Version,
				Timestamp: now,
			})
			if err != nil {
				return
			}
		}
		forward(ctx, eventCh, send)
	})
}

// forward relays events until the client goes away.
func forward(ctx context.Context, eventCh <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventCh:
			if err := send.Data(ev); err != nil {
				return
			}
		}
	}
}
