// Package authz binds a session to a request context and checks role predicates against it.
package authz

import (
	"context"
	"sync"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/allclear/allclear/backend/go-services/internal/sessions"
)

// SessionStore is the part of sessions.Store the gate needs.
type SessionStore interface {
	Fetch(ctx context.Context, id string) (*sessions.Session, error)
	Promote(ctx context.Context, id string, rememberMe bool, subject sessions.Subject) (*sessions.Session, error)
	Remove(ctx context.Context, id string) error
}

type bindingKey struct{}

// binding is the per-request slot. It lives only in contexts derived from
// the one returned by Bind or BindDirect, so requests never see each other's session.
type binding struct {
	mu   sync.RWMutex
	sess *sessions.Session
}

func (b *binding) get() *sessions.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sess
}

func (b *binding) set(s *sessions.Session) {
	b.mu.Lock()
	b.sess = s
	b.mu.Unlock()
}

func slot(ctx context.Context) *binding {
	b, _ := ctx.Value(bindingKey{}).(*binding)
	return b
}

type Gate struct {
	store SessionStore
}

func NewGate(store SessionStore) *Gate {
	return &Gate{store: store}
}

// Bind fetches the session (sliding its expiry) and binds it to the returned context.
func (g *Gate) Bind(ctx context.Context, id string) (context.Context, *sessions.Session, error) {
	s, err := g.store.Fetch(ctx, id)
	if err != nil {
		return ctx, nil, err
	}
	return BindDirect(ctx, s), s, nil
}

// BindDirect binds an already loaded session. Used by trusted callers and tests.
// The returned context gets a fresh slot; bindings in ctx are left untouched.
func BindDirect(ctx context.Context, s *sessions.Session) context.Context {
	return context.WithValue(ctx, bindingKey{}, &binding{sess: s})
}

// Current returns the bound session or nil.
func Current(ctx context.Context) *sessions.Session {
	if b := slot(ctx); b != nil {
		return b.get()
	}
	return nil
}

// CurrentOrAnonymous never returns nil.
func CurrentOrAnonymous(ctx context.Context) *sessions.Session {
	if s := Current(ctx); s != nil {
		return s
	}
	return sessions.Anonymous()
}

// Clear unbinds the session from ctx and every context derived from it.
func Clear(ctx context.Context) {
	if b := slot(ctx); b != nil {
		b.set(nil)
	}
}

func (g *Gate) Current(ctx context.Context) *sessions.Session            { return Current(ctx) }
func (g *Gate) CurrentOrAnonymous(ctx context.Context) *sessions.Session { return CurrentOrAnonymous(ctx) }
func (g *Gate) Clear(ctx context.Context)                                { Clear(ctx) }

// Promote turns the bound session into a person session with the same id and rebinds it.
func (g *Gate) Promote(ctx context.Context, rememberMe bool, person *models.Person) (*sessions.Session, error) {
	cur := Current(ctx)
	if cur == nil {
		return nil, sessions.ErrNotFound
	}
	s, err := g.store.Promote(ctx, cur.ID, rememberMe, sessions.PersonSubject(person))
	if err != nil {
		return nil, err
	}
	slot(ctx).set(s)
	return s, nil
}

// RemoveCurrent deletes the bound session from the store and unbinds it.
// Without a bound session it does nothing.
func (g *Gate) RemoveCurrent(ctx context.Context) error {
	cur := Current(ctx)
	if cur == nil {
		return nil
	}
	if err := g.store.Remove(ctx, cur.ID); err != nil {
		return err
	}
	Clear(ctx)
	return nil
}

// RequireAdmin accepts admins that are not restricted to editing.
func (g *Gate) RequireAdmin(ctx context.Context) (*models.Admin, error) {
	s := Current(ctx)
	if !s.CanAdmin() {
		return nil, apperr.NotAuthorized("Must be an Admin session.")
	}
	return s.Admin, nil
}

// RequireEditor accepts any admin.
func (g *Gate) RequireEditor(ctx context.Context) (*models.Admin, error) {
	s := Current(ctx)
	if !s.IsAdmin() {
		return nil, apperr.NotAuthorized("Must be an Editor session.")
	}
	return s.Admin, nil
}

func (g *Gate) RequireSuper(ctx context.Context) (*models.Admin, error) {
	s := Current(ctx)
	if !s.IsSuper() {
		return nil, apperr.NotAuthorized("Must be a Super-Admin session.")
	}
	return s.Admin, nil
}

func (g *Gate) RequirePerson(ctx context.Context) (*models.Person, error) {
	s := Current(ctx)
	if !s.IsPerson() {
		return nil, apperr.NotAuthorized("Must be a Person session.")
	}
	return s.Person, nil
}

// RequireAdminOrPerson rejects editors.
func (g *Gate) RequireAdminOrPerson(ctx context.Context) (*sessions.Session, error) {
	s := Current(ctx)
	if s.IsPerson() || s.CanAdmin() {
		return s, nil
	}
	return nil, apperr.NotAuthorized("Must be an Admin or Person session.")
}

func (g *Gate) RequireEditorOrPerson(ctx context.Context) (*sessions.Session, error) {
	s := Current(ctx)
	if s.IsPerson() || s.IsAdmin() {
		return s, nil
	}
	return nil, apperr.NotAuthorized("Must be an Admin, Editor, or Person session.")
}
