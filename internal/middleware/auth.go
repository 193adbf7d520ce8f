package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fbibank/backend/internal/services"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the caller established from the bearer token
type Identity struct {
	Subject   string
	AccountID string
	Role      string
}

// Claims carried by access tokens
type Claims struct {
	AccountID string `json:"account_id,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type identityKey struct{}

// WithIdentity stores id on ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity set by Authenticate
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate verifies an HS256 bearer token signed with secret and puts the caller's
// Identity on the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			id, err := ParseToken(parts[1], secret)
			if err != nil {
				log.Printf("[AUTH] Rejected token from %s: %v", r.RemoteAddr, err)
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// ParseToken validates tokenString and extracts the identity it carries
func ParseToken(tokenString string, secret []byte) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("token is not valid")
	}

	id := Identity{Subject: claims.Subject, AccountID: claims.AccountID, Role: claims.Role}
	if id.Role == "" {
		id.Role = RoleCustomer
	}
	if id.Role != RoleCustomer && id.Role != RoleAdmin {
		return Identity{}, fmt.Errorf("unknown role %q", id.Role)
	}
	return id, nil
}

// RequireRole rejects callers without the given role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
				return
			}
			if id.Role != role {
				services.SendErrorResponse(w, "Insufficient permissions", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAccount rejects callers whose token is not bound to an account
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			services.SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
			return
		}
		if id.AccountID == "" {
			services.SendErrorResponse(w, "Token is not bound to an account", http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
