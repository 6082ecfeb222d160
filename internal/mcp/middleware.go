package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

// identity is the caller a request runs as. A nil viewer is the operator.
type identity struct {
	viewer *scope.Viewer
	// keyBound is set when the viewer came from an API key and cannot be
	// overridden by tool input.
	keyBound bool
}

func getIdentity(ctx context.Context) identity {
	v, _ := ctx.Value(identityKey).(identity)
	return v
}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// ViewerResolver resolves a viewer from a bearer token. A nil viewer with a
// nil error is an operator key.
type ViewerResolver interface {
	ResolveAPIKey(ctx context.Context, token string) (*scope.Viewer, error)
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver ViewerResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", ErrUnauthorized)
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
			}

			viewer, err := resolver.ResolveAPIKey(ctx, token)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: invalid bearer token", ErrUnauthorized)
			}
			if err != nil {
				return nil, mapError(err)
			}

			ctx = withIdentity(ctx, identity{viewer: viewer, keyBound: viewer != nil})
			return next(ctx, method, req)
		}
	}
}

// operatorMiddleware runs every request as the operator when auth is disabled.
func operatorMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(withIdentity(ctx, identity{}), method, req)
		}
	}
}
