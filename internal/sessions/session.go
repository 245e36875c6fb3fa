package sessions

import (
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/models"
)

const (
	// DurationShort applies to sessions without rememberMe and to every registration session.
	DurationShort = 30 * time.Minute
	// DurationLong applies to rememberMe sessions.
	DurationLong = 30 * 24 * time.Hour
)

// Subject identifies who a session belongs to. At most one field is set;
// none set is the anonymous subject.
type Subject struct {
	Person       *models.Person       `json:"person,omitempty"`
	Admin        *models.Admin        `json:"admin,omitempty"`
	Customer     *models.Customer     `json:"customer,omitempty"`
	Registration *models.Registration `json:"registration,omitempty"`
}

func PersonSubject(p *models.Person) Subject             { return Subject{Person: p} }
func AdminSubject(a *models.Admin) Subject               { return Subject{Admin: a} }
func CustomerSubject(c *models.Customer) Subject         { return Subject{Customer: c} }
func RegistrationSubject(r *models.Registration) Subject { return Subject{Registration: r} }

func (s Subject) count() int {
	n := 0
	if s.Person != nil {
		n++
	}
	if s.Admin != nil {
		n++
	}
	if s.Customer != nil {
		n++
	}
	if s.Registration != nil {
		n++
	}
	return n
}

// Kind names the subject variant: person, admin, customer, registration or anonymous.
func (s Subject) Kind() string {
	switch {
	case s.Person != nil:
		return "person"
	case s.Admin != nil:
		return "admin"
	case s.Customer != nil:
		return "customer"
	case s.Registration != nil:
		return "registration"
	}
	return "anonymous"
}

// Session is the stored record under "session:<id>".
// ExpiresAt always equals LastAccessedAt + Duration seconds.
type Session struct {
	ID         string `json:"id"`
	RememberMe bool   `json:"rememberMe"`
	// Duration is the sliding window length in seconds.
	Duration int64 `json:"duration"`
	Subject
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

const anonymousID = "anonymous"

// Anonymous returns the session of callers that presented no session id.
// Each call returns a new value; it is never stored.
func Anonymous() *Session { return &Session{ID: anonymousID} }

func durationFor(rememberMe bool, subject Subject, short, long time.Duration) time.Duration {
	if rememberMe && subject.Registration == nil {
		return long
	}
	return short
}

func newSession(id string, rememberMe bool, subject Subject, d time.Duration, now time.Time) *Session {
	if subject.Registration != nil {
		rememberMe = false
	}
	return &Session{
		ID:             id,
		RememberMe:     rememberMe,
		Duration:       int64(d / time.Second),
		Subject:        subject,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(d),
	}
}

// TTL is the full sliding window.
func (s *Session) TTL() time.Duration { return time.Duration(s.Duration) * time.Second }

// accessed marks the session as used at now, resetting the full window.
func (s *Session) accessed(now time.Time) *Session {
	s.LastAccessedAt = now
	s.ExpiresAt = now.Add(s.TTL())
	return s
}

func (s *Session) IsAnonymous() bool    { return s == nil || s.count() == 0 }
func (s *Session) IsPerson() bool       { return s != nil && s.Person != nil }
func (s *Session) IsAdmin() bool        { return s != nil && s.Admin != nil }
func (s *Session) IsCustomer() bool     { return s != nil && s.Customer != nil }
func (s *Session) IsRegistration() bool { return s != nil && s.Registration != nil }

// CanAdmin reports an Admin that is not restricted to editing.
func (s *Session) CanAdmin() bool { return s.IsAdmin() && !s.Admin.Editor }

// IsSuper reports a super-admin.
func (s *Session) IsSuper() bool { return s.CanAdmin() && s.Admin.Supers }
