package sessions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 25, 12, 0, 0, 0, time.UTC)

func TestNewSession_Durations(t *testing.T) {
	person := PersonSubject(&models.Person{ID: "p1", Name: "stevie", Phone: "888-555-0001"})

	short := newSession("s1", false, person, durationFor(false, person, DurationShort, DurationLong), t0)
	require.Equal(t, int64(1800), short.Duration)
	require.Equal(t, 30*time.Minute, short.TTL())
	require.True(t, short.ExpiresAt.Equal(t0.Add(30*time.Minute)))
	require.True(t, short.LastAccessedAt.Equal(short.CreatedAt))

	long := newSession("s2", true, person, durationFor(true, person, DurationShort, DurationLong), t0)
	require.Equal(t, int64(2592000), long.Duration)
	require.True(t, long.RememberMe)
}

func TestNewSession_RegistrationIsAlwaysShort(t *testing.T) {
	reg := RegistrationSubject(&models.Registration{Phone: "888-555-0003", BeenTested: true})

	s := newSession("r1", true, reg, durationFor(true, reg, DurationShort, DurationLong), t0)
	require.False(t, s.RememberMe)
	require.Equal(t, int64(1800), s.Duration)
	require.True(t, s.IsRegistration())
}

func TestAccessed_RecomputesExpiry(t *testing.T) {
	s := newSession("s1", false, PersonSubject(&models.Person{ID: "p1"}), DurationShort, t0)
	prevExpires, prevAccessed := s.ExpiresAt, s.LastAccessedAt

	s.accessed(t0.Add(2 * time.Second))
	require.True(t, s.ExpiresAt.After(prevExpires))
	require.True(t, s.LastAccessedAt.After(prevAccessed))
	require.True(t, s.ExpiresAt.Equal(s.LastAccessedAt.Add(s.TTL())))
	require.True(t, s.CreatedAt.Equal(t0))
}

func TestSubjectPredicates(t *testing.T) {
	admin := &Session{Subject: AdminSubject(&models.Admin{ID: "a1"})}
	editor := &Session{Subject: AdminSubject(&models.Admin{ID: "a2", Editor: true})}
	super := &Session{Subject: AdminSubject(&models.Admin{ID: "a3", Supers: true})}
	customer := &Session{Subject: CustomerSubject(&models.Customer{ID: "c1"})}

	require.True(t, admin.IsAdmin())
	require.True(t, admin.CanAdmin())
	require.False(t, admin.IsSuper())

	require.True(t, editor.IsAdmin())
	require.False(t, editor.CanAdmin())

	require.True(t, super.IsSuper())

	require.True(t, customer.IsCustomer())
	require.Equal(t, "customer", customer.Kind())

	require.True(t, Anonymous().IsAnonymous())
	require.Equal(t, "anonymous", Anonymous().Kind())
	require.NotSame(t, Anonymous(), Anonymous())
	var none *Session
	require.True(t, none.IsAnonymous())
	require.False(t, none.IsPerson())
}

func TestSession_JSONShape(t *testing.T) {
	s := newSession("s1", false, PersonSubject(&models.Person{ID: "p1", Name: "moira"}), DurationShort, t0)
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "s1", raw["id"])
	require.Equal(t, float64(1800), raw["duration"])
	require.Contains(t, raw, "person")
	require.NotContains(t, raw, "registration")
	require.NotContains(t, raw, "Subject")
}
