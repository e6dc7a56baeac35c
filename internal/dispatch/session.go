package dispatch

import "context"

type sessionKey struct{}

// WithSession attaches the session id to the context so handlers that need
// to act on the session (checkpointing, status) can retrieve it.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id attached by WithSession, or ""
// when the handler is invoked outside a dispatch.
func SessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}
