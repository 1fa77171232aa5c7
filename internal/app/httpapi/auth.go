package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caffe-ja/observer-platform/internal/app/domain/admin"
)

// TokenTTL bounds how long an issued login token stays valid.
const TokenTTL = 12 * time.Hour

type claimsKey struct{}

// Claims carries the authenticated identity through the request context.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func claimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

func (h *handler) issueToken(user admin.User) (string, time.Time, error) {
	expires := time.Now().Add(TokenTTL)
	claims := Claims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "caffe-observer-platform",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (h *handler) parseToken(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPath reports whether a path is served without authentication.
// Webhook callbacks and certificate verification are consumed by parties
// that never hold platform credentials.
func publicPath(path string) bool {
	switch {
	case path == "/healthz", path == "/metrics", path == "/auth/login":
		return true
	case path == "/certificates/verify":
		return true
	case path == "/observers/kyc/callback":
		return true
	}
	return false
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}

		var claims Claims
		if h.apiTokens[raw] {
			claims = Claims{
				Username: "service",
				Role:     string(admin.RoleOperator),
			}
		} else {
			parsed, err := h.parseToken(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
				return
			}
			claims = parsed
		}

		if status := requiredRoleSatisfied(claims.Role, r); status != 0 {
			w.WriteHeader(status)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requiredRoleSatisfied returns a non-zero HTTP status when the role does
// not cover the request. Admin endpoints and settings mutation need the
// admin role; all other writes need operator or admin.
func requiredRoleSatisfied(role string, r *http.Request) int {
	adminOnly := strings.HasPrefix(r.URL.Path, "/admin") ||
		strings.HasPrefix(r.URL.Path, "/audit") ||
		(strings.HasPrefix(r.URL.Path, "/settings") && r.Method != http.MethodGet)
	if adminOnly {
		if role != string(admin.RoleAdmin) {
			return http.StatusForbidden
		}
		return 0
	}
	if r.Method == http.MethodGet {
		return 0
	}
	if role != string(admin.RoleAdmin) && role != string(admin.RoleOperator) {
		return http.StatusForbidden
	}
	return 0
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	// Browsers cannot set headers on websocket upgrades.
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
