package logging

import "context"

// LogEntry represents a structured log record.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Session-scoped fields
	SessionID string

	// General structured data
	Fields map[string]interface{}
}

type contextKey int

const sessionIDKey contextKey = iota

// WithSession attaches a session identifier to the context so log entries
// emitted downstream carry it.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID extracts a session identifier previously attached with WithSession.
func SessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}
