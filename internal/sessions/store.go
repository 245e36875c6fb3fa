package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/pkg/metrics"
	"github.com/google/uuid"
)

const keyPrefix = "session:"

var (
	// ErrNotFound is returned for unknown or expired session ids. It matches apperr.ErrNotAuthenticated.
	ErrNotFound = fmt.Errorf("%w: session not found", apperr.ErrNotAuthenticated)
	// ErrInvalidSubject is returned when a write does not carry exactly one subject.
	ErrInvalidSubject = &apperr.ValidationError{Field: "subject", Message: "exactly one subject is required"}
)

// Key returns the store key of a session id.
func Key(id string) string { return keyPrefix + id }

// Store owns the session keyspace: serialization, TTL bookkeeping and lifecycle.
//
// Writes to the same id from concurrent callers are last-write-wins; the
// backing store decides which refreshed record and TTL survive.
type Store struct {
	kv    kv.Store
	now   func() time.Time
	short time.Duration
	long  time.Duration
}

type Option func(*Store)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDurations overrides the short and long sliding windows.
func WithDurations(short, long time.Duration) Option {
	return func(s *Store) {
		if short > 0 {
			s.short = short
		}
		if long > 0 {
			s.long = long
		}
	}
}

func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:    store,
		now:   func() time.Time { return time.Now().UTC() },
		short: DurationShort,
		long:  DurationLong,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new session for subject. Registration sessions always get the short window.
func (s *Store) Create(ctx context.Context, subject Subject, rememberMe bool) (*Session, error) {
	if subject.count() != 1 {
		return nil, ErrInvalidSubject
	}
	d := durationFor(rememberMe, subject, s.short, s.long)
	sess := newSession(uuid.NewString(), rememberMe, subject, d, s.now())
	if err := s.put(ctx, sess, d); err != nil {
		return nil, err
	}
	metrics.SessionsCreated.WithLabelValues(subject.Kind()).Inc()
	return sess, nil
}

// Fetch reads a session and slides its expiration: LastAccessedAt becomes now
// and the record is rewritten with its full window as TTL.
func (s *Store) Fetch(ctx context.Context, id string) (*Session, error) {
	sess, err := s.get(ctx, Key(id))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		metrics.SessionFetches.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}
	sess.accessed(s.now())
	if err := s.put(ctx, sess, sess.TTL()); err != nil {
		return nil, err
	}
	metrics.SessionFetches.WithLabelValues("hit").Inc()
	return sess, nil
}

// Peek reads a session without touching its TTL. It returns nil when absent.
func (s *Store) Peek(ctx context.Context, id string) (*Session, error) {
	return s.get(ctx, Key(id))
}

// Promote replaces the subject of an existing session, keeping its id and
// CreatedAt. The window is recomputed from rememberMe and counts as an access.
func (s *Store) Promote(ctx context.Context, id string, rememberMe bool, subject Subject) (*Session, error) {
	if subject.count() != 1 || subject.Registration != nil {
		return nil, ErrInvalidSubject
	}
	cur, err := s.get(ctx, Key(id))
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}
	d := durationFor(rememberMe, subject, s.short, s.long)
	out := newSession(cur.ID, rememberMe, subject, d, s.now())
	out.CreatedAt = cur.CreatedAt
	if err := s.put(ctx, out, d); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSubject rewrites the subject data of a session (e.g. after a profile
// change). The subject kind must not change; timestamps and expiry are kept.
func (s *Store) UpdateSubject(ctx context.Context, id string, subject Subject) (*Session, error) {
	if subject.count() != 1 {
		return nil, ErrInvalidSubject
	}
	cur, err := s.get(ctx, Key(id))
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}
	if cur.Kind() != subject.Kind() {
		return nil, apperr.Invalid("subject", "cannot change a %s session into a %s session", cur.Kind(), subject.Kind())
	}
	remaining := cur.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return nil, ErrNotFound
	}
	cur.Subject = subject
	if err := s.put(ctx, cur, remaining); err != nil {
		return nil, err
	}
	return cur, nil
}

// Remove deletes a session. Removing an absent session is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, Key(id))
}

// Exists checks key presence without touching the TTL.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.kv.Exists(ctx, Key(id))
}

func (s *Store) get(ctx context.Context, key string) (*Session, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(v), &sess); err != nil {
		return nil, fmt.Errorf("sessions: decode %s: %w", key, err)
	}
	return &sess, nil
}

func (s *Store) put(ctx context.Context, sess *Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessions: encode %s: %w", sess.ID, err)
	}
	return s.kv.SetWithExpiry(ctx, Key(sess.ID), string(b), ttl)
}
