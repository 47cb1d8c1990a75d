package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext carries request-scoped fields that the *Ctx functions prepend
// to every record.
type LogContext struct {
	TraceID   string
	SpanID    string
	SessionID string
	Principal string
	ClientIP  string
	Operation string // connect, disconnect, work, admin...
	StartTime time.Time
}

// NewLogContext starts a LogContext for a request coming from clientIP.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{ClientIP: clientIP, StartTime: time.Now()}
}

// WithContext stores lc in ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

func (lc *LogContext) clone() *LogContext {
	if lc == nil {
		return &LogContext{StartTime: time.Now()}
	}
	c := *lc
	return &c
}

// WithSession returns a copy bound to a session and principal.
func (lc *LogContext) WithSession(sessionID, principal string) *LogContext {
	c := lc.clone()
	c.SessionID = sessionID
	c.Principal = principal
	return c
}

// WithOperation returns a copy with Operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	c := lc.clone()
	c.Operation = op
	return c
}

// WithTrace returns a copy with trace identifiers set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.clone()
	c.TraceID = traceID
	c.SpanID = spanID
	return c
}

// ElapsedMs returns milliseconds since StartTime, or 0 if unset.
func (lc *LogContext) ElapsedMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Since(lc.StartTime)
}

func (lc *LogContext) prepend(args []any) []any {
	if lc == nil {
		return args
	}

	out := make([]any, 0, 12+len(args))
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyOperation, lc.Operation)
	add(KeySessionID, lc.SessionID)
	add(KeyPrincipal, lc.Principal)
	add(KeyClientIP, lc.ClientIP)

	return append(out, args...)
}
