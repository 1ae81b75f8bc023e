package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const tokenKey contextKey = "token"

const msgInvalidAuthHeader = "Invalid authorization header format"

// middlewareBearer rejects requests without an "Authorization: Bearer <token>" header
// and stores the token in the request context. The token is never inspected.
func (s *Service) middlewareBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(rw, http.StatusUnauthorized, msgInvalidAuthHeader)
			return
		}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}

func bearerToken(header string) (string, bool) {
	rest, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token := strings.TrimSpace(rest)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
