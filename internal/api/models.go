package api

import (
	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/smazurov/iidcnode/internal/version"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// HealthData is the health check body.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"1" doc:"Number of open cameras"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// CameraPath selects a camera.
type CameraPath struct {
	ID string `path:"id" example:"0814436100ffc0" doc:"Camera GUID as 16 hex digits"`
}

type CameraListData struct {
	Cameras []cameras.CameraInfo `json:"cameras" doc:"Open cameras ordered by ID"`
	Count   int                  `json:"count" example:"1"`
}

type CameraListResponse struct {
	Body CameraListData
}

type CameraResponse struct {
	Body cameras.CameraInfo
}

// Feature models
type FeaturePath struct {
	ID      string `path:"id" doc:"Camera GUID"`
	Feature string `path:"feature" example:"brightness" doc:"Feature name"`
}

type FeatureListData struct {
	Features []iidc.FeatureInfo `json:"features" doc:"Features the camera implements"`
	Count    int                `json:"count"`
}

type FeatureListResponse struct {
	Body FeatureListData
}

type FeatureResponse struct {
	Body iidc.FeatureInfo
}

type FeatureSetRequest struct {
	ID      string `path:"id" doc:"Camera GUID"`
	Feature string `path:"feature" example:"gain" doc:"Feature name"`
	Body    config.FeatureSetting
}

// Video models
type VideoResponse struct {
	Body cameras.VideoInfo
}

type VideoSetRequest struct {
	ID   string `path:"id" doc:"Camera GUID"`
	Body cameras.VideoSettings
}

type BandwidthData struct {
	CameraID string `json:"camera_id"`
	Units    uint32 `json:"units" example:"1230" doc:"Isochronous allocation units the current mode needs"`
}

type BandwidthResponse struct {
	Body BandwidthData
}

// Capture models
type CaptureStartRequest struct {
	ID   string `path:"id" doc:"Camera GUID"`
	Body cameras.CaptureParams
}

type SessionResponse struct {
	Body cameras.SessionInfo
}

type CaptureStatsData struct {
	CameraID  string            `json:"camera_id"`
	SessionID string            `json:"session_id"`
	Stats     iidc.CaptureStats `json:"stats"`
}

type CaptureStatsResponse struct {
	Body CaptureStatsData
}

type SnapshotRequest struct {
	ID     string `path:"id" doc:"Camera GUID"`
	Format string `query:"format" enum:"png,raw" default:"png" doc:"png converts to RGB, raw returns the frame bytes"`
	Bayer  string `query:"bayer" enum:"nearest,simple" default:"nearest" doc:"Demosaicing for RAW codings"`
}

type SnapshotResponse struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	Geometry    string `header:"X-Frame-Geometry"`
	Body        []byte
}

// Preset models
type PresetPath struct {
	Name string `path:"name" example:"night" doc:"Preset name"`
}

type PresetListResponse struct {
	Body config.Presets
}

type PresetResponse struct {
	Body config.Preset
}

type PresetPutRequest struct {
	Name string `path:"name" example:"night" doc:"Preset name"`
	Body config.Preset
}

type PresetApplyRequest struct {
	ID   string `path:"id" doc:"Camera GUID"`
	Body struct {
		Name string `json:"name" minLength:"1" example:"night" doc:"Preset to apply"`
		Bind bool   `json:"bind,omitempty" doc:"Also apply this preset whenever the camera is opened"`
	}
}

type MessageResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Log models
type LogsRequest struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Newest entries to return"`
	Module string `query:"module" doc:"Only entries of this module"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries"`
	Count   int             `json:"count"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelRequest struct {
	Module string `path:"module" example:"cameras" doc:"Module name, or \"default\" for the root logger"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug"`
	}
}
