// Package reqctx carries request-scoped identifiers through a context.
package reqctx

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	CuratorKey   = ContextKey("X-Curator")
	RunIDKey     = ContextKey("X-Run-Id")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, id string) context.Context { return set(ctx, RequestIDKey, id) }
func GetRequestID(ctx context.Context) string                     { return get(ctx, RequestIDKey) }

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}
func GetMethod(ctx context.Context) string { return get(ctx, MethodKey) }

func SetRoute(ctx context.Context, route string) context.Context { return set(ctx, RouteKey, route) }
func GetRoute(ctx context.Context) string                        { return get(ctx, RouteKey) }

func SetRemoteIP(ctx context.Context, ip string) context.Context { return set(ctx, RemoteIPKey, ip) }
func GetRemoteIP(ctx context.Context) string                     { return get(ctx, RemoteIPKey) }

// SetCurator records who is driving the current import or merge
func SetCurator(ctx context.Context, curator string) context.Context {
	return set(ctx, CuratorKey, curator)
}

func GetCurator(ctx context.Context) string { return get(ctx, CuratorKey) }

// SetRunID tags every log line of a batch or merge run
func SetRunID(ctx context.Context, runID string) context.Context { return set(ctx, RunIDKey, runID) }
func GetRunID(ctx context.Context) string                        { return get(ctx, RunIDKey) }

// Fields returns the identifiers present in ctx, for log enrichment
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for _, key := range []ContextKey{RequestIDKey, RunIDKey, CuratorKey} {
		if v := get(ctx, key); v != "" {
			fields[string(key)] = v
		}
	}
	return fields
}
