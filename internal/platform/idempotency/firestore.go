package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "idempotency"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency entries.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts configures the transaction retry attempts.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store on Firestore. Claims run inside a
// transaction so concurrent requests with the same key serialise on the
// document.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Claim reserves the key for the fingerprint and reports any stored response.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))

	var claim Claim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			return s.reserveLocked(tx, ref, key, fingerprint, now, ttl, &claim)
		}

		var stored storedEntry
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if stored.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if entryExpired(stored.toEntry(), now) {
			return s.reserveLocked(tx, ref, key, fingerprint, now, ttl, &claim)
		}
		if stored.Completed {
			claim = Claim{State: ClaimReplayed, Entry: stored.toEntry()}
			return nil
		}
		claim = Claim{State: ClaimInFlight, Entry: stored.toEntry()}
		return nil
	}, firestore.MaxAttempts(s.attempts()))

	return claim, err
}

func (s *FirestoreStore) reserveLocked(tx *firestore.Transaction, ref *firestore.DocumentRef, key, fingerprint string, now time.Time, ttl time.Duration, claim *Claim) error {
	stored := storedEntry{
		Key:         key,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := tx.Set(ref, stored); err != nil {
		return err
	}
	*claim = Claim{State: ClaimAccepted, Entry: stored.toEntry()}
	return nil
}

// Complete persists the response associated with the key.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))

	header := storableHeader(resp.Headers)
	body := append([]byte(nil), resp.Body...)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var stored storedEntry
		switch {
		case err == nil:
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case status.Code(err) == codes.NotFound:
			stored = storedEntry{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		default:
			return err
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}

		stored.Completed = true
		stored.ResponseStatus = resp.Status
		stored.ResponseHeader = header
		stored.ResponseBody = body
		stored.UpdatedAt = now
		stored.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, stored)
	}, firestore.MaxAttempts(s.attempts()))
}

// CleanupExpired deletes expired entries in one batch, up to limit.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}

	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Release drops the claim so a later attempt can retry.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) attempts() int {
	if s.maxAttempts <= 0 {
		return 1
	}
	return s.maxAttempts
}

type storedEntry struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Completed      bool                `firestore:"completed"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader"`
	ResponseBody   []byte              `firestore:"responseBody"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (e storedEntry) toEntry() Entry {
	return Entry{
		Key:            e.Key,
		Fingerprint:    e.Fingerprint,
		Completed:      e.Completed,
		ResponseStatus: e.ResponseStatus,
		ResponseHeader: e.ResponseHeader,
		ResponseBody:   e.ResponseBody,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		ExpiresAt:      e.ExpiresAt,
	}
}
