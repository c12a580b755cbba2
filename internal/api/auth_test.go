package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	want := appointment.Requester{ID: uuid.New(), Role: appointment.RoleDoctor}

	tok, err := auth.NewToken(want, time.Minute)
	require.NoError(t, err)

	got, err := auth.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	requester := appointment.Requester{ID: uuid.New(), Role: appointment.RolePatient}

	otherKey, err := NewAuthenticator("other").NewToken(requester, time.Minute)
	require.NoError(t, err)

	expired, err := auth.NewToken(requester, -time.Minute)
	require.NoError(t, err)

	badRole, err := auth.NewToken(appointment.Requester{ID: uuid.New(), Role: "admin"}, time.Minute)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "patient",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "P7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "patient",
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"wrong key":   otherKey,
		"expired":     expired,
		"bad role":    badRole,
		"bad subject": badSubject,
		"no expiry":   noExpiry,
		"garbage":     "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Verify(tok)
			assert.Error(t, err)
		})
	}
}

func TestAuthenticator_MiddlewareStoresRequester(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	want := appointment.Requester{ID: uuid.New(), Role: appointment.RolePatient}
	tok, err := auth.NewToken(want, time.Minute)
	require.NoError(t, err)

	var got appointment.Requester
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = RequesterFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, want, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
