// Package correlation carries a correlation ID across request handling,
// background jobs and notification fan-out.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type key struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// ContextWithCorrelationID ignores blank ids.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// EnsureCorrelationID returns ctx unchanged when it already has an id, and
// otherwise attaches a new ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, key{}, id), id
}

// Detach keeps the values of ctx (correlation id, span, actor) but drops its
// deadline and cancellation. Work that must finish after the request has
// committed runs on it.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
