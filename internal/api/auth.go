package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
)

const requesterKey contextKey = "requester"

// Claims carries the requester's role next to the standard claims; the
// subject is the patient or doctor id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

func (a *Authenticator) Verify(raw string) (appointment.Requester, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return appointment.Requester{}, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return appointment.Requester{}, fmt.Errorf("subject: %w", err)
	}
	role, err := appointment.ParseRole(claims.Role)
	if err != nil {
		return appointment.Requester{}, err
	}
	return appointment.Requester{ID: id, Role: role}, nil
}

// NewToken mints a token for r. The auth service normally does this; the
// simulator and tests use it directly.
func (a *Authenticator) NewToken(r appointment.Requester, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(r.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// verified requester in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		requester, err := a.Verify(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		ctx := context.WithValue(r.Context(), requesterKey, requester)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequesterFrom(ctx context.Context) (appointment.Requester, bool) {
	r, ok := ctx.Value(requesterKey).(appointment.Requester)
	return r, ok
}
