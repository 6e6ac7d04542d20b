package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/smazurov/iidcnode/internal/version"
	"github.com/smazurov/iidcnode/pkg/iidc"
)

// CameraService is what the API needs from the camera service.
type CameraService interface {
	List() []cameras.CameraInfo
	Get(id string) (cameras.CameraInfo, error)
	Features(id string) ([]iidc.FeatureInfo, error)
	Feature(id, name string) (iidc.FeatureInfo, error)
	SetFeature(id, name string, fs config.FeatureSetting) (iidc.FeatureInfo, error)
	Video(id string) (cameras.VideoInfo, error)
	SetVideo(id string, vs cameras.VideoSettings) (cameras.VideoInfo, error)
	StartCapture(id string, params cameras.CaptureParams) (cameras.SessionInfo, error)
	StopCapture(id string) (cameras.SessionInfo, error)
	Session(id string) (cameras.SessionInfo, error)
	Snapshot(ctx context.Context, id string) (cameras.Snapshot, error)
	Bandwidth(id string) (uint32, error)
	ApplyPreset(id, name string) error
}

// Options configure the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	// CORSOrigin defaults to "*".
	CORSOrigin string

	Cameras  CameraService
	Presets  *config.PresetStore
	EventBus *events.Bus

	// SnapshotTimeout bounds how long a snapshot waits for a frame.
	SnapshotTimeout   time.Duration
	PrometheusHandler http.Handler
}

// Server is the HTTP control API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	cameras    CameraService
	presets    *config.PresetStore
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server on a Go 1.22 ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if opts.CORSOrigin != "" {
		corsConfig.AllowOrigin = opts.CORSOrigin
	}
	AddCORSHandler(mux, corsConfig)

	cfg := huma.DefaultConfig("iidcnode API", version.String())
	cfg.Info.Description = "Control and capture API for IIDC FireWire cameras"
	// relative paths so the docs work behind any host
	cfg.Servers = []*huma.Server{}
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, cfg)
	s := newServer(api, opts)
	s.mux = mux

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// outside huma so scrapers need no credentials
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

func newServer(api huma.API, opts *Options) *Server {
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 5 * time.Second
	}
	return &Server{
		api:      api,
		cameras:  opts.Cameras,
		presets:  opts.Presets,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, SSE streams included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	reject := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="iidcnode API"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		// EventSource cannot set headers, so SSE clients pass ?auth=
		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				reject(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		}
		if encoded == "" {
			reject(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			reject(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			reject(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			reject(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health and the number of open cameras",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{Body: HealthData{Status: "ok", Message: "API is healthy"}}
		if s.cameras != nil {
			resp.Body.Cameras = len(s.cameras.List())
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	s.registerCameraRoutes()
	s.registerCaptureRoutes()
	s.registerPresetRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerMetricsRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
