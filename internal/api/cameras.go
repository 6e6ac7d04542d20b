package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "List the open cameras with their mode, preset and ISO state",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*CameraListResponse, error) {
		list := s.cameras.List()
		return &CameraListResponse{Body: CameraListData{Cameras: list, Count: len(list)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}",
		Summary:     "Get Camera",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *CameraPath) (*CameraResponse, error) {
		info, err := s.cameras.Get(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &CameraResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-features",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/features",
		Summary:     "List Features",
		Description: "Read every feature the camera implements",
		Tags:        []string{"features"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *CameraPath) (*FeatureListResponse, error) {
		features, err := s.cameras.Features(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &FeatureListResponse{Body: FeatureListData{Features: features, Count: len(features)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-feature",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/features/{feature}",
		Summary:     "Get Feature",
		Tags:        []string{"features"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *FeaturePath) (*FeatureResponse, error) {
		fi, err := s.cameras.Feature(input.ID, input.Feature)
		if err != nil {
			return nil, mapError(err)
		}
		return &FeatureResponse{Body: fi}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-feature",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}/features/{feature}",
		Summary:     "Set Feature",
		Description: "Switch a feature between manual, auto, one-push and off, and write its value. " +
			"White balance takes two values (bu, rv) and white shading three (r, g, b).",
		Tags:     []string{"features"},
		Security: withAuth(),
		Errors:   []int{400, 401, 404, 422, 503},
	}, func(_ context.Context, input *FeatureSetRequest) (*FeatureResponse, error) {
		fi, err := s.cameras.SetFeature(input.ID, input.Feature, input.Body)
		if err != nil {
			return nil, mapError(err)
		}
		return &FeatureResponse{Body: fi}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-video",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/video",
		Summary:     "Get Video Mode",
		Description: "Current mode, framerate and frame geometry with the supported modes",
		Tags:        []string{"video"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *CameraPath) (*VideoResponse, error) {
		vi, err := s.cameras.Video(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &VideoResponse{Body: vi}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-video",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}/video",
		Summary:     "Set Video Mode",
		Description: "Change mode, framerate, operation mode or Format7 region. Refused while capturing.",
		Tags:        []string{"video"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 502, 503},
	}, func(_ context.Context, input *VideoSetRequest) (*VideoResponse, error) {
		vi, err := s.cameras.SetVideo(input.ID, input.Body)
		if err != nil {
			return nil, mapError(err)
		}
		return &VideoResponse{Body: vi}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-bandwidth",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/bandwidth",
		Summary:     "Bandwidth Usage",
		Description: "Isochronous bandwidth the current mode needs, in allocation units",
		Tags:        []string{"video"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *CameraPath) (*BandwidthResponse, error) {
		units, err := s.cameras.Bandwidth(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &BandwidthResponse{Body: BandwidthData{CameraID: input.ID, Units: units}}, nil
	})
}
