package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type userIDKey struct{}

// UserIDFromContext extracts the authenticated caller identity.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// authMiddleware verifies the bearer JWT and stores the subject claim as
// the caller identity for the wrapped handler.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenString string
		if header := r.Header.Get("Authorization"); header != "" {
			var ok bool
			tokenString, ok = strings.CutPrefix(header, "Bearer ")
			if !ok {
				s.writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
		} else {
			// Browser websocket clients cannot set request headers.
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			s.writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		userID, err := s.verifyToken(tokenString)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Token verification failed")
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next(w, r.WithContext(ctx))
	}
}

// verifyToken parses an HS256 token and returns its subject.
func (s *Server) verifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.options.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}
