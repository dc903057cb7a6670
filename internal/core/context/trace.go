// Package context carries request-scoped values (trace ids, acting user)
// through context.Context.
package context

import (
	"context"

	"github.com/google/uuid"
)

// Origin names the entry point a unit of work came through.
type Origin string

const (
	OriginHTTP   Origin = "http"
	OriginWorker Origin = "worker"
	OriginCLI    Origin = "cli"
)

// TraceContext identifies one unit of work in logs and audit rows.
type TraceContext struct {
	TraceID   string
	RequestID string
	Origin    Origin
}

type traceKey struct{}

// WithTrace stores t in ctx.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// GetTrace returns the TraceContext of ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	t, _ := ctx.Value(traceKey{}).(*TraceContext)
	return t
}

// GetRequestID returns the request id of ctx, or "".
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// StartTrace returns ctx carrying a fresh TraceContext for work that does
// not come from an HTTP request. One id serves as both trace and request id.
func StartTrace(ctx context.Context, origin Origin) context.Context {
	traceID := uuid.NewString()
	return WithTrace(ctx, &TraceContext{TraceID: traceID, RequestID: traceID, Origin: origin})
}
