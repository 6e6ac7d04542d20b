package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/iidcnode/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Newest entries of the in-memory log history, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogsRequest) (*LogsResponse, error) {
		var entries []logging.Entry
		if input.Module == "" {
			entries = logging.Recent().Last(input.Limit)
		} else {
			for _, e := range logging.Recent().Last(0) {
				if e.Module == input.Module {
					entries = append(entries, e)
				}
			}
			if input.Limit > 0 && len(entries) > input.Limit {
				entries = entries[len(entries)-input.Limit:]
			}
		}
		if entries == nil {
			entries = []logging.Entry{}
		}
		return &LogsResponse{Body: LogsData{Entries: entries, Count: len(entries)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change the level of one module logger until the next restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *LogLevelRequest) (*MessageResponse, error) {
		module := input.Module
		if module == "default" {
			module = ""
		}
		if !logging.SetLevel(module, input.Body.Level) {
			return nil, huma.Error400BadRequest("unknown module " + input.Module)
		}
		s.logger.Info("Log level changed", "module", input.Module, "level", input.Body.Level)
		resp := &MessageResponse{}
		resp.Body.Message = input.Module + " logging at " + input.Body.Level
		return resp, nil
	})
}
