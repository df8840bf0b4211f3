package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventRegistered        ActivityEventType = "auth.user.registered"
	ActivityEventTokenRefreshed    ActivityEventType = "auth.token.refreshed"
	ActivityEventRefreshRejected   ActivityEventType = "auth.token.refresh_rejected"
	ActivityEventPermissionGranted ActivityEventType = "auth.permission.granted"
	ActivityEventPermissionDenied  ActivityEventType = "auth.permission.denied"
)

// ActorRef identifies who performed an action
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var firstErr error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now time.Time, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink record error", "error", err)
	}
}

func actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: identity.ID(), Type: "user"}
}
