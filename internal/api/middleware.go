// internal/api/middleware.go
package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/models"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

type actorHandler func(w http.ResponseWriter, r *http.Request, actor models.Actor)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Debug("request handled", map[string]interface{}{
			"route":       route,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		})
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": fmt.Sprint(rec),
				})
				s.writeError(w, errors.NewInternalError(fmt.Errorf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the caller. With a resolver configured the bearer
// token is introspected; otherwise the gateway's actor headers are trusted.
func (s *Server) authenticate(next actorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.resolveActor(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r, actor)
	})
}

func (s *Server) resolveActor(r *http.Request) (models.Actor, error) {
	if s.deps.Resolver != nil {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return models.Actor{}, errors.NewUnauthenticatedError("missing bearer token")
		}
		return s.deps.Resolver.ResolveActor(r.Context(), strings.TrimSpace(token))
	}

	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		return models.Actor{}, errors.NewUnauthenticatedError("missing " + headerActorID + " header")
	}
	raw := strings.ToLower(strings.TrimSpace(r.Header.Get(headerActorRole)))
	if raw == "" {
		raw = string(models.RoleUser)
	}
	role, ok := models.ParseRole(raw)
	if !ok {
		return models.Actor{}, errors.NewUnauthenticatedError("unknown actor role " + raw)
	}
	return models.Actor{ID: id, Role: role}, nil
}

// limited applies the per-(scope, ip, actor) request budget.
func (s *Server) limited(scope string, next actorHandler) actorHandler {
	return func(w http.ResponseWriter, r *http.Request, actor models.Actor) {
		if s.deps.Limiter != nil {
			decision, err := s.deps.Limiter.Allow(r.Context(), scope, s.clientIP(r), actor.ID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds()+0.999)))
				s.writeError(w, errors.NewRateLimitedError(decision.RetryAfter))
				return
			}
		}
		next(w, r, actor)
	}
}

// clientIP is the peer address, or, when the peer is a trusted proxy, the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.trusted(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (s *Server) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range s.deps.TrustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
