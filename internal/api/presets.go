package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerPresetRoutes() {
	if s.presets == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "List Presets",
		Description: "Stored presets with the default and the per-camera bindings",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*PresetListResponse, error) {
		return &PresetListResponse{Body: s.presets.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preset",
		Method:      http.MethodGet,
		Path:        "/api/presets/{name}",
		Summary:     "Get Preset",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *PresetPath) (*PresetResponse, error) {
		p, err := s.presets.Get(input.Name)
		if err != nil {
			return nil, mapError(err)
		}
		return &PresetResponse{Body: p}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "put-preset",
		Method:      http.MethodPut,
		Path:        "/api/presets/{name}",
		Summary:     "Save Preset",
		Description: "Create or replace a preset. It is validated and written to the presets file.",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *PresetPutRequest) (*PresetResponse, error) {
		p := input.Body
		p.Name = input.Name
		if err := s.presets.Put(p); err != nil {
			return nil, huma.Error400BadRequest("invalid preset", err)
		}
		saved, err := s.presets.Get(p.Name)
		if err != nil {
			return nil, mapError(err)
		}
		return &PresetResponse{Body: saved}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-preset",
		Method:        http.MethodDelete,
		Path:          "/api/presets/{name}",
		Summary:       "Delete Preset",
		Tags:          []string{"presets"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
	}, func(_ context.Context, input *PresetPath) (*struct{}, error) {
		if err := s.presets.Delete(input.Name); err != nil {
			return nil, mapError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-preset",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/preset",
		Summary:     "Apply Preset",
		Description: "Apply a stored preset to an idle camera, optionally binding it to the camera",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 502, 503},
	}, func(_ context.Context, input *PresetApplyRequest) (*CameraResponse, error) {
		if err := s.cameras.ApplyPreset(input.ID, input.Body.Name); err != nil {
			return nil, mapError(err)
		}
		if input.Body.Bind {
			if err := s.presets.Bind(input.ID, input.Body.Name); err != nil {
				return nil, mapError(err)
			}
		}
		info, err := s.cameras.Get(input.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return &CameraResponse{Body: info}, nil
	})
}
