package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/iidcnode/pkg/iidc/convert"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "start-capture",
		Method:        http.MethodPost,
		Path:          "/api/cameras/{id}/capture",
		Summary:       "Start Capture",
		Description:   "Allocate a channel and bandwidth, set up the frame ring and start transmission",
		Tags:          []string{"capture"},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 409, 503},
	}, func(_ context.Context, input *CaptureStartRequest) (*SessionResponse, error) {
		info, err := s.cameras.StartCapture(input.ID, input.Body)
		if err != nil {
			return nil, mapError(err)
		}
		return &SessionResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-capture",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/capture",
		Summary:     "Get Capture Session",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(_ context.Context, input *CameraPath) (*SessionResponse, error) {
		info, err := s.cameras.Session(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &SessionResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-capture",
		Method:      http.MethodDelete,
		Path:        "/api/cameras/{id}/capture",
		Summary:     "Stop Capture",
		Description: "Stop transmission and release the ring, channel and bandwidth",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(_ context.Context, input *CameraPath) (*SessionResponse, error) {
		info, err := s.cameras.StopCapture(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &SessionResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-capture-stats",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/capture/stats",
		Summary:     "Capture Statistics",
		Description: "Frames, drops, overruns and ring occupancy of the running capture",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(_ context.Context, input *CameraPath) (*CaptureStatsResponse, error) {
		info, err := s.cameras.Session(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &CaptureStatsResponse{Body: CaptureStatsData{
			CameraID:  info.CameraID,
			SessionID: info.ID,
			Stats:     info.Stats,
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/snapshot",
		Summary:     "Snapshot",
		Description: "Newest frame of the running capture, as PNG or as the raw frame bytes",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 504},
	}, func(ctx context.Context, input *SnapshotRequest) (*SnapshotResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, s.options.SnapshotTimeout)
		defer cancel()

		snap, err := s.cameras.Snapshot(ctx, input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		g := snap.Geometry
		resp := &SnapshotResponse{
			Sequence: strconv.FormatUint(snap.Sequence, 10),
			Geometry: fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.ColorCoding),
		}
		if input.Format == "raw" {
			resp.ContentType = "application/octet-stream"
			resp.Body = snap.Data
			return resp, nil
		}

		method, err := convert.ParseBayerMethod(input.Bayer)
		if err != nil {
			return nil, mapError(err)
		}
		var buf bytes.Buffer
		err = convert.WritePNG(&buf, snap.Data, g, convert.Options{
			Filter: snap.Filter,
			Method: method,
			Bits:   snap.Bits,
		})
		if err != nil {
			return nil, mapError(err)
		}
		resp.ContentType = "image/png"
		resp.Body = buf.Bytes()
		return resp, nil
	})
}
