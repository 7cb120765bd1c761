package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for caller data
type contextKey string

const subjectContextKey contextKey = "subject"

// JWTClaims represents the claims in the JWT token
type JWTClaims struct {
	jwt.RegisteredClaims
}

// withAuth requires a valid HS256 token when a JWT secret is configured.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive as the access_token query parameter.
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.JWTSecret == "" {
			next.ServeHTTP(w, req)
			return
		}

		tokenString, ok := bearerToken(req)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token claims"})
			return
		}

		ctx := context.WithValue(req.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

func bearerToken(req *http.Request) (string, bool) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		t := req.URL.Query().Get("access_token")
		return t, t != ""
	}

	// Expect "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authSubject returns the token subject, or "" when auth is disabled.
func authSubject(ctx context.Context) string {
	s, _ := ctx.Value(subjectContextKey).(string)
	return s
}
