package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type ctxKey string

const (
	CtxKeyRequestID ctxKey = "request_id"
	CtxKeyTraceID   ctxKey = "trace_id"
)

func generateID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// WithRequestAndTrace propagates X-Request-ID / X-Trace-ID (minting them when
// absent), echoes them on the response and logs the request boundaries.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateID()
		}
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateID()
		}

		ctx := WithIDs(r.Context(), reqID, traceID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", reqID)
		w.Header().Set("X-Trace-ID", traceID)

		start := time.Now()
		next.ServeHTTP(w, r)

		slog.Default().Info("finished request",
			"request_id", reqID,
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func WithIDs(ctx context.Context, requestID, traceID string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyRequestID, requestID)
	return context.WithValue(ctx, CtxKeyTraceID, traceID)
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTraceID).(string); ok {
		return v
	}
	return ""
}

// LogAttrs returns the request correlation attributes carried by ctx.
func LogAttrs(ctx context.Context) []any {
	return []any{"request_id", RequestIDFromContext(ctx), "trace_id", TraceIDFromContext(ctx)}
}
