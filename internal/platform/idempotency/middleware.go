package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studiopos/api/internal/platform/auth"
	"github.com/studiopos/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed entries are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger injects a logger for store failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware enforces idempotency for mutating requests: the first request
// with a key runs and its response is stored; replays get the stored response
// back; concurrent attempts conflict. Safe methods pass straight through.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing idempotency key header", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_read_body_failed", "unable to read request body", http.StatusInternalServerError))
				return
			}

			caller := callerUID(ctx)
			fingerprint := fingerprintRequest(r, body, caller)
			scoped := key + "|" + caller
			now := cfg.clock().UTC()

			claim, err := store.Claim(ctx, scoped, fingerprint, now, cfg.ttl)
			if err != nil {
				writeClaimError(ctx, w, cfg.logger, err)
				return
			}

			switch claim.State {
			case ClaimReplayed:
				replayEntry(w, claim.Entry)
				return
			case ClaimInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			case ClaimAccepted:
			default:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unknown_state", "unexpected idempotency state", http.StatusInternalServerError))
				return
			}

			buffered := newBufferedResponse(w)
			next.ServeHTTP(buffered, r)

			response := Response{
				Status:  buffered.Status(),
				Headers: buffered.HeaderSnapshot(),
				Body:    buffered.Body(),
			}
			if err := store.Complete(ctx, scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
				if cfg.logger != nil {
					cfg.logger.Warn("idempotency: failed to persist response", zap.String("key", key), zap.String("caller", caller), zap.Error(err))
				}
				if releaseErr := store.Release(ctx, scoped, fingerprint); releaseErr != nil && cfg.logger != nil {
					cfg.logger.Warn("idempotency: failed to release key after persist failure", zap.String("key", key), zap.Error(releaseErr))
				}
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
				return
			}

			if err := buffered.Flush(); err != nil && cfg.logger != nil {
				cfg.logger.Warn("idempotency: failed to flush response", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

// bufferBody reads the request body and rewinds it for the next handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprintRequest binds the key to the request shape so a reused key with
// different content is rejected instead of replayed.
func fingerprintRequest(r *http.Request, body []byte, caller string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		caller,
	}
	if len(body) > 0 {
		parts = append(parts, sha256Hex(body))
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

// callerUID scopes keys per authenticated staff member.
func callerUID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func writeClaimError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	}
	if logger != nil {
		logger.Warn("idempotency: store error", zap.Error(err))
	}
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
}

func replayEntry(w http.ResponseWriter, entry Entry) {
	header := w.Header()
	for key := range header {
		header.Del(key)
	}
	for key, values := range headerFromStored(entry.ResponseHeader) {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set(replayHeaderName, "true")

	status := entry.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(entry.ResponseBody) > 0 {
		_, _ = w.Write(entry.ResponseBody)
	}
}

// bufferedResponse holds the downstream response until the entry is stored,
// so a persist failure never leaks a response the store does not know about.
type bufferedResponse struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse(parent http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{parent: parent, header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	b.status = status
}

func (b *bufferedResponse) Write(data []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(data)
}

func (b *bufferedResponse) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) Body() []byte {
	if b.body.Len() == 0 {
		return nil
	}
	return b.body.Bytes()
}

func (b *bufferedResponse) HeaderSnapshot() http.Header {
	snapshot := make(http.Header, len(b.header))
	for key, values := range b.header {
		snapshot[key] = append([]string(nil), values...)
	}
	return snapshot
}

// Flush copies the buffered response to the parent writer.
func (b *bufferedResponse) Flush() error {
	dst := b.parent.Header()
	for key := range dst {
		dst.Del(key)
	}
	for key, values := range b.header {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	b.parent.WriteHeader(b.Status())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.parent.Write(b.body.Bytes())
	return err
}
