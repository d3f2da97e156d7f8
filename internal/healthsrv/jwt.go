package healthsrv

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// adminClaims is the minimal claim set for the single symmetric admin
// token that gates /metrics and the detailed /healthz view (SPEC_FULL.md
// §9 "narrowed to a single symmetric admin token" -- no per-user identity,
// just proof of possession of the configured secret).
type adminClaims struct {
	jwt.RegisteredClaims
}

// IssueAdminToken mints a bearer token for secret, valid for ttl. Intended
// for operator tooling (e.g. a one-off CLI invocation), not end users.
func IssueAdminToken(secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := adminClaims{jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// RequireBearer wraps next so that it only runs when the request carries a
// valid "Authorization: Bearer <token>" signed with secret. A missing or
// malformed header, an expired token, or a wrong signature all yield 401.
func RequireBearer(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(hdr, "Bearer ")
		if !ok || raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		_, err := jwt.ParseWithClaims(raw, &adminClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
