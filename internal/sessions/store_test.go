package sessions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *mr.Miniredis, *fakeClock) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &fakeClock{t: t0}
	return NewStore(kv.NewRedisStore(client), WithClock(clk.now)), m, clk
}

func person(name string) Subject {
	return PersonSubject(&models.Person{ID: "p-" + name, Name: name, Phone: "888-555-0001", Active: true})
}

func TestStore_CreateFetchRemove(t *testing.T) {
	s, m, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("stevie"), false)
	require.NoError(t, err)
	require.Len(t, created.ID, 36)
	require.Equal(t, int64(1800), created.Duration)
	require.Equal(t, 30*time.Minute, m.TTL(Key(created.ID)))
	require.True(t, m.Exists("session:"+created.ID))

	got, err := s.Fetch(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "stevie", got.Person.Name)

	ok, err := s.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Remove(ctx, created.ID))
	require.NoError(t, s.Remove(ctx, created.ID))

	_, err = s.Fetch(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestStore_CreateRejectsAmbiguousSubject(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, Subject{}, false)
	require.ErrorIs(t, err, apperr.ErrValidation)

	both := Subject{Person: &models.Person{ID: "p"}, Admin: &models.Admin{ID: "a"}}
	_, err = s.Create(ctx, both, false)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStore_FetchSlidesFullWindow(t *testing.T) {
	s, m, clk := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("moira"), false)
	require.NoError(t, err)

	// most of the window elapses in the store
	m.FastForward(20 * time.Minute)
	clk.advance(2 * time.Second)

	got, err := s.Fetch(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.LastAccessedAt.Equal(t0.Add(2*time.Second)))
	require.True(t, got.ExpiresAt.Equal(got.LastAccessedAt.Add(1800*time.Second)))
	require.True(t, got.ExpiresAt.After(created.ExpiresAt))
	require.True(t, got.CreatedAt.Equal(created.CreatedAt))
	// TTL is reset to the full window, not the time remaining
	require.Equal(t, 30*time.Minute, m.TTL(Key(created.ID)))
}

func TestStore_PassiveExpiry(t *testing.T) {
	s, m, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("johnny"), false)
	require.NoError(t, err)

	m.FastForward(31 * time.Minute)

	got, err := s.Peek(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	_, err = s.Fetch(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PeekDoesNotTouch(t *testing.T) {
	s, m, clk := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("barbara"), false)
	require.NoError(t, err)

	m.FastForward(10 * time.Minute)
	clk.advance(10 * time.Minute)

	got, err := s.Peek(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.LastAccessedAt.Equal(created.LastAccessedAt))
	require.Equal(t, 20*time.Minute, m.TTL(Key(created.ID)))

	missing, err := s.Peek(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStore_PromoteKeepsID(t *testing.T) {
	s, m, clk := newTestStore(t)
	ctx := context.Background()

	reg, err := s.Create(ctx, RegistrationSubject(&models.Registration{Phone: "888-555-0003"}), true)
	require.NoError(t, err)
	require.False(t, reg.RememberMe)
	require.Equal(t, int64(1800), reg.Duration)

	clk.advance(2 * time.Second)
	promoted, err := s.Promote(ctx, reg.ID, true, person("johnny"))
	require.NoError(t, err)
	require.Equal(t, reg.ID, promoted.ID)
	require.True(t, promoted.RememberMe)
	require.Equal(t, int64(2592000), promoted.Duration)
	require.Nil(t, promoted.Registration)
	require.True(t, promoted.IsPerson())
	require.True(t, promoted.CreatedAt.Equal(reg.CreatedAt))
	require.True(t, promoted.LastAccessedAt.After(reg.LastAccessedAt))
	require.Equal(t, 30*24*time.Hour, m.TTL(Key(reg.ID)))

	got, err := s.Peek(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, "johnny", got.Person.Name)
}

func TestStore_PromoteErrors(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Promote(ctx, "missing", false, person("x"))
	require.ErrorIs(t, err, ErrNotFound)

	created, err := s.Create(ctx, person("x"), false)
	require.NoError(t, err)
	// there is no way back to a registration session
	_, err = s.Promote(ctx, created.ID, false, RegistrationSubject(&models.Registration{Phone: "1"}))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStore_UpdateSubjectKeepsExpiry(t *testing.T) {
	s, m, clk := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("stevie"), false)
	require.NoError(t, err)

	m.FastForward(5 * time.Minute)
	clk.advance(5 * time.Minute)

	updated, err := s.UpdateSubject(ctx, created.ID, person("steven"))
	require.NoError(t, err)
	require.Equal(t, "steven", updated.Person.Name)
	require.True(t, updated.ExpiresAt.Equal(created.ExpiresAt))
	require.True(t, updated.LastAccessedAt.Equal(created.LastAccessedAt))
	require.Equal(t, 25*time.Minute, m.TTL(Key(created.ID)))

	_, err = s.UpdateSubject(ctx, created.ID, AdminSubject(&models.Admin{ID: "a"}))
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.UpdateSubject(ctx, "missing", person("x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Search(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	ids := map[string]bool{}
	for i := 0; i < 4; i++ {
		created, err := s.Create(ctx, person("p"), false)
		require.NoError(t, err)
		ids[created.ID] = true
	}

	page, err := s.Search(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, page.Sessions, 4)
	for _, sess := range page.Sessions {
		require.True(t, ids[sess.ID], "unexpected session %s", sess.ID)
	}
	require.False(t, page.More())

	var prefix string
	for id := range ids {
		prefix = id[:8]
		break
	}
	page, err = s.Search(ctx, Filter{IDPrefix: prefix, PageSize: 10})
	require.NoError(t, err)
	require.NotEmpty(t, page.Sessions)
	for _, sess := range page.Sessions {
		require.True(t, strings.HasPrefix(sess.ID, prefix))
	}
}

func TestStore_ConcurrentFetchLastWriteWins(t *testing.T) {
	s, m, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, person("p"), true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(ctx, created.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 30*24*time.Hour, m.TTL(Key(created.ID)))
}
