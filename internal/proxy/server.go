// Package proxy implements the artifact router: it maps the first label of
// the request host to a tenant, streams the matching object from the artifact
// store, and records an analytics entry off the request path.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/internal/service/analytics"
	"github.com/hangarhq/hangar/internal/service/geo"
	"github.com/hangarhq/hangar/internal/storage"
	"github.com/hangarhq/hangar/pkg/config"
)

// ObjectGetter is the read side of the artifact store.
type ObjectGetter interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// Server is the multi-tenant artifact router.
type Server struct {
	projects  repository.ProjectRepository
	store     ObjectGetter
	analytics *analytics.Service
	geo       *geo.Resolver
	cfg       config.RouterConfig
	logger    *slog.Logger
	metrics   *metrics
	now       func() time.Time
}

// New wires an artifact router.
func New(
	projects repository.ProjectRepository,
	store ObjectGetter,
	analyticsSvc *analytics.Service,
	geoResolver *geo.Resolver,
	cfg config.RouterConfig,
	logger *slog.Logger,
) *Server {
	return &Server{
		projects:  projects,
		store:     store,
		analytics: analyticsSvc,
		geo:       geoResolver,
		cfg:       cfg,
		logger:    logger,
		metrics:   newMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP handles one tenant request. The object fetch is synchronous;
// analytics capture happens after the response and never delays it.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subdomain := Subdomain(req.Host)
	if subdomain == "" {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	status := s.serve(w, req, subdomain)
	elapsed := time.Since(start)
	s.metrics.record(subdomain, status, elapsed)
	s.capture(req, subdomain, status, elapsed)
}

func (s *Server) serve(w http.ResponseWriter, req *http.Request, subdomain string) int {
	ctx, cancel := context.WithTimeout(req.Context(), s.cfg.RequestTimeout)
	defer cancel()

	if _, err := s.projects.GetProjectBySubdomain(ctx, subdomain); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return http.StatusNotFound
		}
		s.logger.Error("tenant lookup failed", "subdomain", subdomain, "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return http.StatusServiceUnavailable
	}

	key := storage.ObjectKey(s.cfg.ArtifactPrefix, subdomain, RewritePath(req.URL.Path, s.cfg.IndexDocument))
	object, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return http.StatusNotFound
		}
		s.logger.Error("artifact fetch failed", "key", key, "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return http.StatusServiceUnavailable
	}
	defer object.Body.Close()

	if object.ContentType != "" {
		w.Header().Set("Content-Type", object.ContentType)
	}
	if object.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(object.ContentLength, 10))
	}
	if req.Method == http.MethodHead {
		return http.StatusOK
	}
	if _, err := io.Copy(w, object.Body); err != nil {
		s.logger.Warn("response stream interrupted", "key", key, "error", err)
	}
	return http.StatusOK
}

// capture resolves the client location and hands the record to the analytics
// service, which writes it asynchronously. Failures stay off the response
// path entirely.
func (s *Server) capture(req *http.Request, subdomain string, status int, elapsed time.Duration) {
	// Snapshot request fields before detaching; the handler may have
	// returned by the time the goroutine runs.
	ip := clientIP(req)
	path := req.URL.Path
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AnalyticsTimeout)
		defer cancel()
		location := s.geo.Resolve(ctx, ip)
		s.analytics.Record(domain.AnalyticsRecord{
			Subdomain:      subdomain,
			Path:           path,
			StatusCode:     status,
			ResponseTimeMs: elapsed.Milliseconds(),
			ClientIP:       ip,
			Country:        location.Country,
			City:           location.City,
			Timestamp:      s.now(),
		})
	}()
}

// Subdomain extracts the tenant key: the first label of the request host.
// A bare or single-label host has no tenant.
func Subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 || labels[0] == "" {
		return ""
	}
	return labels[0]
}

// RewritePath maps the root path to the index document and passes everything
// else through unchanged.
func RewritePath(path, indexDocument string) string {
	if path == "" || path == "/" {
		return "/" + indexDocument
	}
	return path
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
