package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/inspira/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. The span is renamed to the
// matched route once the handler chain has run.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("inspira/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		span.SetAttributes(resourceAttributes(c, route)...)

		// The auth middleware runs after this one, so the actor is read from
		// the handler's request context.
		if actorType, actorID := obscontext.ActorFromContext(c.Request.Context()); actorID != "" {
			span.SetAttributes(
				attribute.String("enduser.id", actorID),
				attribute.String("enduser.role", actorType),
			)
		}

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited")
		case status == http.StatusConflict:
			span.AddEvent("conflict")
		}
	}
}

func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// resourceAttributes tags the span with the group or application addressed by
// the :id path segment.
func resourceAttributes(c *gin.Context, route string) []attribute.KeyValue {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return nil
	}
	switch {
	case strings.HasPrefix(route, "/api/groups/"):
		return []attribute.KeyValue{attribute.String("inspira.group_id", id)}
	case strings.HasPrefix(route, "/api/applications/"):
		return []attribute.KeyValue{attribute.String("inspira.application_id", id)}
	default:
		return nil
	}
}
