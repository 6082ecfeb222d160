package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
)

func getRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// requestIDMiddleware tags each inbound request with a ULID so request and
// response log lines can be correlated.
func requestIDMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if getRequestID(ctx) == "" {
				ctx = context.WithValue(ctx, requestIDKey, ulid.Make().String())
			}
			return next(ctx, method, req)
		}
	}
}

// maxLoggedPayload caps each logged params or result body.
const maxLoggedPayload = 2048

func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			log := logger.With(
				"direction", direction,
				"request_id", getRequestID(ctx),
				"method", method,
				"session_id", sessionID(req),
				"viewer", describeViewer(getIdentity(ctx)),
			)
			log.Debug("mcp request", "params", payload(params(req)))

			start := time.Now()
			result, err := next(ctx, method, req)
			if strings.HasPrefix(method, "notifications/") {
				return result, err
			}
			attrs := []any{"elapsed", time.Since(start), "result", payload(result)}
			if err != nil {
				attrs = append(attrs, "error", err)
			}
			log.Debug("mcp response", attrs...)
			return result, err
		}
	}
}

func describeViewer(id identity) string {
	if id.viewer == nil {
		return "operator"
	}
	return fmt.Sprintf("%d/%d", id.viewer.ProjectID, id.viewer.AgentID)
}

// sessionID and params tolerate requests whose accessors panic on a
// half-initialized session.
func sessionID(req sdkmcp.Request) (id string) {
	if req == nil {
		return ""
	}
	defer func() { _ = recover() }()
	if s := req.GetSession(); s != nil {
		id = s.ID()
	}
	return id
}

func params(req sdkmcp.Request) (p any) {
	if req == nil {
		return nil
	}
	defer func() { _ = recover() }()
	return req.GetParams()
}

func payload(v any) string {
	if v == nil {
		return "<nil>"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	if len(data) > maxLoggedPayload {
		return string(data[:maxLoggedPayload]) + "...(truncated)"
	}
	return string(data)
}
