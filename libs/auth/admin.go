package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Admin-Key"

var ErrInvalidCredential = errors.New("invalid admin credential")

// AdminVerifier checks a presented admin key against either a bcrypt hash or
// a plaintext secret. The hash wins when both are configured. With neither
// configured every key is rejected.
type AdminVerifier struct {
	secret []byte
	hash   []byte
}

func NewAdminVerifier(secret, bcryptHash string) (*AdminVerifier, error) {
	v := &AdminVerifier{}
	if h := strings.TrimSpace(bcryptHash); h != "" {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, err
		}
		v.hash = []byte(h)
		return v, nil
	}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v, nil
}

// Enabled reports whether any admin credential is configured.
func (v *AdminVerifier) Enabled() bool {
	return v != nil && (len(v.hash) > 0 || len(v.secret) > 0)
}

func (v *AdminVerifier) Verify(presented string) error {
	if !v.Enabled() || presented == "" {
		return ErrInvalidCredential
	}
	if len(v.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented)); err != nil {
			return ErrInvalidCredential
		}
		return nil
	}
	if subtle.ConstantTimeCompare(v.secret, []byte(presented)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// RequireAdmin rejects requests whose AdminKeyHeader does not verify. deny
// writes the rejection response.
func RequireAdmin(v *AdminVerifier, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Verify(r.Header.Get(AdminKeyHeader)); err != nil {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashSecret produces a value suitable for ADMIN_SECRET_BCRYPT.
func HashSecret(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
