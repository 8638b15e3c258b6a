package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/studiopos/api/internal/platform/auth"
	"github.com/studiopos/api/internal/platform/httpx"
	"github.com/studiopos/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware seeds the request context with the service logger so
// downstream code can pick it up through requestctx.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware logs one line per request start and finish, carrying
// the trace, route, and identity fields Cloud Logging correlates on.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			traceInfo, _ := requestctx.Trace(ctx)
			route := requestRoute(r)

			logger := requestLogger(r, traceInfo, route)
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			writer := newCountingWriter(w)
			start := time.Now()
			logger.Info("request received")

			var panicked bool
			defer func() {
				status := writer.Status()
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				finishSpan(trace.SpanFromContext(ctx), route, status)

				fields := []zap.Field{
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int64("bytes", writer.BytesWritten()),
				}
				switch {
				case panicked || status >= http.StatusInternalServerError:
					logger.Error("request finished", fields...)
				case status >= http.StatusBadRequest:
					logger.Warn("request finished", fields...)
				default:
					logger.Info("request finished", fields...)
				}
			}()
			defer func() {
				if rec := recover(); rec != nil {
					panicked = true
					panic(rec)
				}
			}()

			next.ServeHTTP(writer, r)
		})
	}
}

// RecoveryMiddleware turns panics into a logged stack trace and a JSON 500.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == nil || logger == requestctx.NoopLogger() {
					logger = fallback
				}
				if logger == nil {
					logger = requestctx.NoopLogger()
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger builds the per-request logger carried on the context.
func requestLogger(r *http.Request, traceInfo requestctx.TraceInfo, route string) *zap.Logger {
	ctx := r.Context()
	logger := WithRequestFields(requestctx.Logger(ctx),
		zap.String("requestId", middleware.GetReqID(ctx)),
		zap.String("method", logSafeMethod(r.Method)),
		zap.String("route", logSafeRoute(route)),
		zap.String("traceId", traceInfo.TraceID),
		zap.String("userId", requestUID(r)),
	)
	if traceInfo.ProjectID != "" && traceInfo.TraceID != "" {
		logger = logger.With(zap.String("logging.googleapis.com/trace",
			fmt.Sprintf("projects/%s/traces/%s", traceInfo.ProjectID, traceInfo.TraceID)))
	}
	if addr := clientAddr(r); addr != "" {
		logger = logger.With(zap.String("remoteIp", addr))
	}
	return logger
}

func requestUID(r *http.Request) string {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return ""
	}
	return logSafeUID(identity.UID)
}

func requestRoute(r *http.Request) string {
	if r == nil {
		return "/"
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

func clientAddr(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return logSafe(addr, 64)
}

func finishSpan(span trace.Span, route string, status int) {
	if span == nil {
		return
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if route != "" {
		span.SetAttributes(semconv.HTTPRoute(logSafeRoute(route)))
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
		return
	}
	span.SetStatus(codes.Ok, http.StatusText(status))
}

// countingWriter records the status code and byte count written downstream.
type countingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newCountingWriter(w http.ResponseWriter) *countingWriter {
	return &countingWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *countingWriter) WriteHeader(status int) {
	if status < 100 {
		status = http.StatusOK
	}
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *countingWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *countingWriter) BytesWritten() int64 {
	return w.bytes
}
