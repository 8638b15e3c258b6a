package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed entries are retained when the caller does
// not configure a TTL.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch reports an idempotency key reused with a different
// request fingerprint.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// ClaimState is the outcome of claiming an idempotency key.
type ClaimState int

const (
	// ClaimAccepted means the key is fresh and the caller should process the
	// request.
	ClaimAccepted ClaimState = iota
	// ClaimReplayed means a stored response exists and should be replayed.
	ClaimReplayed
	// ClaimInFlight means another request currently holds the key.
	ClaimInFlight
)

// Claim is the result of claiming a key, carrying the stored entry when one
// exists.
type Claim struct {
	State ClaimState
	Entry Entry
}

// Entry is the persisted state for one idempotency key.
type Entry struct {
	Key            string
	Fingerprint    string
	Completed      bool
	ResponseStatus int
	ResponseHeader map[string][]string
	ResponseBody   []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Response is the HTTP response stored for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency claims and their responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// docID derives the storage id from the caller-scoped key. Hashing keeps
// arbitrary client input out of document ids.
func docID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeader copies the response header, dropping hop-by-hop and
// transport-derived fields that must not be replayed.
func storableHeader(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	stored := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if skipHeader(canonical) {
			continue
		}
		stored[canonical] = append([]string(nil), values...)
	}
	if len(stored) == 0 {
		return nil
	}
	return stored
}

func skipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive",
		"proxy-authenticate", "proxy-authorization", "te", "trailers",
		"transfer-encoding", "upgrade":
		return true
	}
	return false
}

func headerFromStored(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
