package authz

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/allclear/allclear/backend/go-services/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) (*Gate, *sessions.Store) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := sessions.NewStore(kv.NewRedisStore(client))
	return NewGate(store), store
}

func TestBind(t *testing.T) {
	g, store := newTestGate(t)
	ctx := context.Background()

	bound, s, err := g.Bind(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
	require.Nil(t, s)
	require.Nil(t, Current(bound))
	require.True(t, CurrentOrAnonymous(bound).IsAnonymous())

	created, err := store.Create(ctx, sessions.PersonSubject(&models.Person{ID: "p1", Name: "stevie"}), false)
	require.NoError(t, err)

	bound, s, err = g.Bind(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, s.ID)
	require.Equal(t, created.ID, g.Current(bound).ID)
	require.Nil(t, Current(ctx), "parent context must stay unbound")

	g.Clear(bound)
	require.Nil(t, Current(bound))
	anon := g.CurrentOrAnonymous(bound)
	require.True(t, anon.IsAnonymous())
	require.Equal(t, "anonymous", anon.ID)

	// callers cannot alter what later callers get
	anon.ID = "changed"
	anon.Subject = sessions.PersonSubject(&models.Person{ID: "p1"})
	again := g.CurrentOrAnonymous(bound)
	require.Equal(t, "anonymous", again.ID)
	require.True(t, again.IsAnonymous())
}

func TestRequirePredicates(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	person := &sessions.Session{ID: "p", Subject: sessions.PersonSubject(&models.Person{ID: "p1"})}
	admin := &sessions.Session{ID: "a", Subject: sessions.AdminSubject(&models.Admin{ID: "a1"})}
	editor := &sessions.Session{ID: "e", Subject: sessions.AdminSubject(&models.Admin{ID: "e1", Editor: true})}
	super := &sessions.Session{ID: "s", Subject: sessions.AdminSubject(&models.Admin{ID: "s1", Supers: true})}
	customer := &sessions.Session{ID: "c", Subject: sessions.CustomerSubject(&models.Customer{ID: "c1"})}
	registration := &sessions.Session{ID: "r", Subject: sessions.RegistrationSubject(&models.Registration{Phone: "1"})}

	type check func(context.Context) error
	checks := map[string]check{
		"admin":            func(c context.Context) error { _, err := g.RequireAdmin(c); return err },
		"editor":           func(c context.Context) error { _, err := g.RequireEditor(c); return err },
		"super":            func(c context.Context) error { _, err := g.RequireSuper(c); return err },
		"person":           func(c context.Context) error { _, err := g.RequirePerson(c); return err },
		"admin-or-person":  func(c context.Context) error { _, err := g.RequireAdminOrPerson(c); return err },
		"editor-or-person": func(c context.Context) error { _, err := g.RequireEditorOrPerson(c); return err },
	}

	allowed := map[string][]*sessions.Session{
		"admin":            {admin, super},
		"editor":           {admin, editor, super},
		"super":            {super},
		"person":           {person},
		"admin-or-person":  {admin, super, person},
		"editor-or-person": {admin, editor, super, person},
	}
	all := []*sessions.Session{nil, person, admin, editor, super, customer, registration}

	for name, fn := range checks {
		for _, s := range all {
			want := false
			for _, a := range allowed[name] {
				if a == s {
					want = true
				}
			}
			c := ctx
			if s != nil {
				c = BindDirect(ctx, s)
			}
			err := fn(c)
			if want {
				require.NoError(t, err, "%s with %v", name, s)
			} else {
				require.ErrorIs(t, err, apperr.ErrNotAuthorized, "%s with %v", name, s)
			}
		}
	}
}

func TestRequireReturnsSubject(t *testing.T) {
	g, _ := newTestGate(t)
	a := &models.Admin{ID: "a1", Supers: true}
	ctx := BindDirect(context.Background(), &sessions.Session{ID: "s", Subject: sessions.AdminSubject(a)})

	got, err := g.RequireSuper(ctx)
	require.NoError(t, err)
	require.Same(t, a, got)
}

func TestPromoteRebinds(t *testing.T) {
	g, store := newTestGate(t)
	ctx := context.Background()

	reg, err := store.Create(ctx, sessions.RegistrationSubject(&models.Registration{Phone: "888-555-0003"}), false)
	require.NoError(t, err)
	bound, _, err := g.Bind(ctx, reg.ID)
	require.NoError(t, err)

	_, err = g.RequirePerson(bound)
	require.ErrorIs(t, err, apperr.ErrNotAuthorized)

	promoted, err := g.Promote(bound, true, &models.Person{ID: "p3", Name: "johnny", Phone: "888-555-0003"})
	require.NoError(t, err)
	require.Equal(t, reg.ID, promoted.ID)

	p, err := g.RequirePerson(bound)
	require.NoError(t, err)
	require.Equal(t, "johnny", p.Name)

	_, err = g.Promote(ctx, false, &models.Person{ID: "x"})
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestRemoveCurrent(t *testing.T) {
	g, store := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.RemoveCurrent(ctx))

	created, err := store.Create(ctx, sessions.PersonSubject(&models.Person{ID: "p1"}), false)
	require.NoError(t, err)
	bound, _, err := g.Bind(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, g.RemoveCurrent(bound))
	require.Nil(t, Current(bound))
	ok, err := store.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBindingsAreIsolatedAcrossRequests(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			c := BindDirect(ctx, &sessions.Session{ID: id, Subject: sessions.PersonSubject(&models.Person{ID: id})})
			for j := 0; j < 100; j++ {
				runtime.Gosched()
				if got := Current(c); got == nil || got.ID != id {
					errs <- fmt.Errorf("goroutine %d saw %v", i, got)
					return
				}
			}
			if i%2 == 0 {
				Clear(c)
				if Current(c) != nil {
					errs <- fmt.Errorf("goroutine %d still bound after clear", i)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Nil(t, Current(ctx))
}
