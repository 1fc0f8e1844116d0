// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/jobs"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/ratelimit"
	"autoapply-backend/internal/scraping"
	"autoapply-backend/internal/stats"
)

type ApplicationService interface {
	Create(ctx context.Context, actor models.Actor, in applications.CreateInput) (*models.Application, error)
	Withdraw(ctx context.Context, actor models.Actor, id, note string) (*models.Application, error)
	Review(ctx context.Context, actor models.Actor, id string, decision models.ApplicationStatus, notes string) (*models.Application, error)
	ApplyOnBehalf(ctx context.Context, actor models.Actor, id, note string) (*models.Application, error)
	Advance(ctx context.Context, actor models.Actor, id string, in applications.AdvanceInput) (*models.Application, error)
	UpdateUserFields(ctx context.Context, actor models.Actor, id string, upd applications.UserUpdate) (*models.Application, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	List(ctx context.Context, actor models.Actor, f applications.ListFilter) ([]models.Application, error)
}

type JobService interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.Job, error)
	Search(ctx context.Context, actor models.Actor, p jobs.SearchParams) (*jobs.SearchResult, error)
	Review(ctx context.Context, actor models.Actor, id string, decision models.ReviewStatus, notes string) (*models.Job, error)
	SetStatus(ctx context.Context, actor models.Actor, id string, status models.JobStatus) (*models.Job, error)
	RefreshScores(ctx context.Context, actor models.Actor, userID string) (int, error)
}

type ScrapingService interface {
	Trigger(ctx context.Context, actor models.Actor, userID string) (*scraping.TriggerResult, error)
	Cancel(ctx context.Context, actor models.Actor, sessionID string) (*models.ScrapingSession, error)
	Get(ctx context.Context, actor models.Actor, sessionID string) (*models.ScrapingSession, error)
	History(ctx context.Context, actor models.Actor, userID string, limit int) ([]models.ScrapingSession, error)
}

type StatsService interface {
	ApplicationStats(ctx context.Context, actor models.Actor, userID string) (*stats.ApplicationSummary, error)
	JobStats(ctx context.Context, actor models.Actor, userID string) (*stats.JobSummary, error)
	ScrapingStats(ctx context.Context, actor models.Actor, userID string, days int) (*stats.ScrapingSummary, error)
}

// RateLimiter gates the expensive endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, scope, ip, actorID string) (ratelimit.Decision, error)
}

// ActorResolver turns a bearer token into an actor. auth.KeycloakClient implements it.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (models.Actor, error)
}

// Rate limit scopes.
const (
	ScopeScrape            = "scrape"
	ScopeApplicationCreate = "application-create"
)

type Deps struct {
	Applications ApplicationService
	Jobs         JobService
	Scraping     ScrapingService
	Stats        StatsService
	Limiter      RateLimiter
	// Resolver is nil when Keycloak is disabled; actors then come from
	// trusted gateway headers.
	Resolver ActorResolver
	// TrustedProxies are the peers whose X-Forwarded-For is honoured.
	TrustedProxies []*net.IPNet
}

type Server struct {
	deps   Deps
	logger logger.Logger
	mux    *http.ServeMux
}

func NewServer(deps Deps, log logger.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ParseTrustedProxies accepts CIDRs or bare IPs.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (s *Server) routes() {
	// Applications
	s.handle("POST /api/v1/jobs/{id}/applications", s.limited(ScopeApplicationCreate, s.createApplication))
	s.handle("GET /api/v1/applications", s.listApplications)
	s.handle("GET /api/v1/applications/{id}", s.getApplication)
	s.handle("PATCH /api/v1/applications/{id}", s.updateApplication)
	s.handle("POST /api/v1/applications/{id}/withdraw", s.withdrawApplication)
	s.handle("POST /api/v1/applications/{id}/review", s.reviewApplication)
	s.handle("POST /api/v1/applications/{id}/apply", s.applyOnBehalf)
	s.handle("POST /api/v1/applications/{id}/status", s.advanceApplication)

	// Jobs
	s.handle("GET /api/v1/jobs", s.searchJobs)
	s.handle("GET /api/v1/jobs/{id}", s.getJob)
	s.handle("POST /api/v1/jobs/{id}/review", s.reviewJob)
	s.handle("POST /api/v1/jobs/{id}/status", s.setJobStatus)
	s.handle("POST /api/v1/jobs/refresh-scores", s.refreshScores)

	// Scraping
	s.handle("POST /api/v1/scraping/sessions", s.limited(ScopeScrape, s.triggerScraping))
	s.handle("GET /api/v1/scraping/sessions", s.scrapingHistory)
	s.handle("GET /api/v1/scraping/sessions/{id}", s.getScrapingSession)
	s.handle("POST /api/v1/scraping/sessions/{id}/cancel", s.cancelScrapingSession)

	// Stats
	s.handle("GET /api/v1/stats/applications", s.applicationStats)
	s.handle("GET /api/v1/stats/jobs", s.jobStats)
	s.handle("GET /api/v1/stats/scraping", s.scrapingStats)
}

// handle registers an authenticated, instrumented route.
func (s *Server) handle(pattern string, h actorHandler) {
	s.mux.Handle(pattern, s.instrument(pattern, s.recoverer(s.authenticate(h))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Mount adds unauthenticated routes such as health and metrics.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// NewHTTPServer wraps handler with the configured timeouts.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
