package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	userIDKey    contextKey = "userID"
)

// requestID tags each request with an id, reusing one supplied by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// logRequests logs method, path, status and duration, and records them as
// metrics under the matched route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		pattern := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		s.engine.Metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(sw.status), elapsed.Seconds())
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// identify resolves the caller's user id. When a JWT secret is configured the
// only accepted identity is the sub claim of a verified HS256 bearer token.
// Without one the server is in development mode and trusts the X-User-ID
// header, else the configured default user.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user string
		h := r.Header.Get("Authorization")

		if s.auth.JWTSecret != "" {
			if h == "" {
				writeError(w, http.StatusUnauthorized, "bearer token required")
				return
			}
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "authorization must be a bearer token")
				return
			}
			sub, err := s.verifyToken(token)
			if err != nil {
				s.logger.Debug("rejected bearer token", "err", err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			user = sub
		} else {
			if h != "" {
				writeError(w, http.StatusUnauthorized, "bearer tokens are not enabled")
				return
			}
			user = strings.TrimSpace(r.Header.Get("X-User-ID"))
			if user == "" {
				user = s.auth.DefaultUser
			}
		}

		if user == "" {
			writeError(w, http.StatusUnauthorized, "user identity required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, user)))
	})
}

func (s *Server) verifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token is not valid")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func userFrom(r *http.Request) string {
	u, _ := r.Context().Value(userIDKey).(string)
	return u
}
