package logger

import "context"

// contextKey is a private type for context values so callers cannot
// collide with other packages.
type contextKey string

const (
	sessionKey contextKey = "session_id"
	turnKey    contextKey = "turn_id"
	stageKey   contextKey = "stage"
)

// ctxKeys lists the values the handler lifts from a context onto every
// record logged through the *Context helpers.
var ctxKeys = []contextKey{sessionKey, turnKey, stageKey}

// WithSession tags ctx with a call session ID.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// WithTurn tags ctx with a conversation turn ID.
func WithTurn(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnKey, turnID)
}

// WithStage tags ctx with the work the session is doing under it, such
// as a spoken line's purpose ("greeting", "farewell").
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}
