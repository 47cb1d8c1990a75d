package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use them consistently so log queries work across
// the broker, the pools and the HTTP gateway.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Sessions and clients
	KeySessionID     = "session_id"
	KeyPrincipal     = "principal"
	KeyClientIP      = "client_ip"
	KeyClientType    = "client_type"
	KeyClientVersion = "client_version"
	KeyProtocol      = "protocol_version"

	// Pools and resources
	KeyPool    = "pool"
	KeyIdle    = "idle"
	KeyInUse   = "in_use"
	KeyMaxSize = "max_size"
	KeyWaited  = "waited"

	// Scheduling
	KeyTask     = "task"
	KeyInterval = "interval"

	// Components
	KeyValidator = "validator"
	KeyService   = "service"
	KeyReason    = "reason"
	KeyCount     = "count"

	// Operation metadata
	KeyOperation  = "operation"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

func Principal(p string) slog.Attr { return slog.String(KeyPrincipal, p) }

func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

func Task(name string) slog.Attr { return slog.String(KeyTask, name) }

func Interval(d time.Duration) slog.Attr { return slog.Duration(KeyInterval, d) }

func Service(name string) slog.Attr { return slog.String(KeyService, name) }

func Validator(name string) slog.Attr { return slog.String(KeyValidator, name) }

func Reason(r string) slog.Attr { return slog.String(KeyReason, r) }

func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns an error attribute; a nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
