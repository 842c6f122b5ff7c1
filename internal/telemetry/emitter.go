package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"restaurant-chat/internal/observability"
)

// Publisher is the broker side of the emitter.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

const (
	KindChat = "chat_events"
	KindWS   = "ws_events"
)

// DefaultPublishTimeout bounds a single publish so a stalled broker cannot hold up the caller.
const DefaultPublishTimeout = 2 * time.Second

// Envelope is the wire shape of every emitted event.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	TraceID       string `json:"trace_id,omitempty"`
	Payload       any    `json:"payload"`
}

// Emitter publishes best-effort events after state has been committed.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	log         *zap.Logger
	now         func() time.Time
	timeout     time.Duration
}

func NewEmitter(publisher Publisher, service, environment string, log *zap.Logger) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		log:         log,
		now:         time.Now,
		timeout:     DefaultPublishTimeout,
	}
}

// Emit publishes to "<kind>.<name>" within the publish timeout, even when ctx has no
// deadline of its own. Failures are logged and never returned.
func (e *Emitter) Emit(ctx context.Context, kind, name string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	traceID := observability.TraceIDFromContext(ctx)
	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     kind,
		EventName:     name,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		TraceID:       traceID,
		Payload:       payload,
	}

	headers := observability.BuildHeaders(RequestIDFromContext(ctx), traceID)
	pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, kind+"."+name, envelope, headers); err != nil {
		e.log.Warn("event publish failed", zap.String("event", kind+"."+name), zap.Error(err))
	}
}

type requestIDKey struct{}

// WithRequestID stores the request id used to correlate emitted events.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
