package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/metrics/exporters"
)

func (s *Server) registerMetricsRoutes() {
	if s.eventBus == nil {
		return
	}
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Per-camera capture statistics and frame rate, once per second while capturing",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)
		unsubscribe := events.SubscribeToChannel[events.CaptureStatsEvent](s.eventBus, eventCh)
		defer unsubscribe()
		forward(ctx, eventCh, send)
	})
}
