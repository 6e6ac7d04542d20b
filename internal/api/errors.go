package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// mapError maps service and driver errors to HTTP errors. Service codes
// win; a driver error underneath a preset failure is classified by kind.
func mapError(err error) error {
	var se *cameras.Error
	if errors.As(err, &se) {
		switch se.Code {
		case cameras.ErrCodeCameraNotFound:
			return huma.Error404NotFound(se.Message, err)
		case cameras.ErrCodeCaptureActive, cameras.ErrCodeCaptureInactive:
			return huma.Error409Conflict(se.Message, err)
		case cameras.ErrCodeInvalidParams:
			return huma.Error400BadRequest(se.Message, err)
		}
	}
	if errors.Is(err, config.ErrPresetNotFound) {
		return huma.Error404NotFound("preset not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("timed out waiting for the camera", err)
	}

	var ie *iidc.Error
	if !errors.As(err, &ie) {
		return huma.Error500InternalServerError("internal server error", err)
	}
	msg := ie.Code.String()
	switch ie.Kind() {
	case iidc.KindCaller:
		if ie.Code == iidc.CodeInvalidFeature {
			return huma.Error404NotFound(msg, err)
		}
		if ie.Code == iidc.CodeFunctionNotSupported {
			return huma.Error422UnprocessableEntity(msg, err)
		}
		return huma.Error400BadRequest(msg, err)
	case iidc.KindProtocol:
		return huma.Error502BadGateway(msg, err)
	case iidc.KindTransport:
		return huma.Error503ServiceUnavailable(msg, err)
	case iidc.KindInfo:
		return huma.Error404NotFound(msg, err)
	}
	return huma.Error500InternalServerError(msg, err)
}
