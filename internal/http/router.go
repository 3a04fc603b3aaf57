// Package httpx wires the dispatcher and query endpoints to HTTP.
package httpx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/internal/service/analytics"
	"github.com/hangarhq/hangar/internal/service/dispatch"
	"github.com/hangarhq/hangar/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	dispatch      *dispatch.Service
	analytics     *analytics.Service
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	webhookSecret string
	dbHealth      func(context.Context) error
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitDeploy    = 20
	rateLimitQuery     = 120
	rateLimitWebhook   = 60
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
	maxWebhookBody     = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, dispatchSvc *dispatch.Service, analyticsSvc *analytics.Service, hub *ws.Hub, limiter RateLimiter, webhookSecret string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		dispatch:  dispatchSvc,
		analytics: analyticsSvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       limiter,
		webhookSecret: strings.TrimSpace(webhookSecret),
		dbHealth:      dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/deployments", r.audit(r.withRateLimit(rateLimitDeploy, rateWindowDefault, r.handleDeployments)))
	r.mux.HandleFunc("/deployments/", r.audit(r.withRateLimit(rateLimitQuery, rateWindowDefault, r.handleDeploymentSubroutes)))
	r.mux.HandleFunc("/analytics/", r.audit(r.withRateLimit(rateLimitQuery, rateWindowDefault, r.handleAnalytics)))
	r.mux.HandleFunc("/webhooks/", r.audit(r.withRateLimit(rateLimitWebhook, rateWindowDefault, r.handleWebhook)))
	r.mux.HandleFunc("/ws/logs", r.audit(r.withRateLimit(rateLimitWebsocket, rateWindowRealtime, r.handleLogsWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	components := map[string]any{}
	status := "ok"
	if r.dbHealth != nil {
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload dispatch.LaunchRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := r.dispatch.Launch(req.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrMissingGitURL), errors.Is(err, dispatch.ErrInvalidGitURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (r *Router) handleDeploymentSubroutes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/deployments/"), "/")
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, "deployment id required")
		return
	}
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) == 1:
		r.handleDeploymentStatus(w, req, parts[0])
	case len(parts) == 2 && parts[1] == "logs":
		r.handleDeploymentLogs(w, req, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (r *Router) handleDeploymentStatus(w http.ResponseWriter, req *http.Request, id string) {
	deployment, err := r.dispatch.GetDeployment(req.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (r *Router) handleDeploymentLogs(w http.ResponseWriter, req *http.Request, id string) {
	events, err := r.dispatch.ListLogs(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deployment_id": id,
		"logs":          events,
	})
}

func (r *Router) handleAnalytics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subdomain := strings.Trim(strings.TrimPrefix(req.URL.Path, "/analytics/"), "/")
	if subdomain == "" || strings.Contains(subdomain, "/") {
		writeError(w, http.StatusBadRequest, "subdomain required")
		return
	}
	days := 7
	if raw := req.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = parsed
	}
	summary, err := r.analytics.Aggregate(req.Context(), subdomain, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	projectID := strings.Trim(strings.TrimPrefix(req.URL.Path, "/webhooks/"), "/")
	if projectID == "" || strings.Contains(projectID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.webhookSecret == "" {
		writeError(w, http.StatusNotFound, "webhooks disabled")
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	if err := verifySignature(body, r.webhookSecret, req.Header.Get("X-Webhook-Signature")); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var event struct {
		GitURL string `json:"git_url"`
		Branch string `json:"branch"`
	}
	_ = json.Unmarshal(body, &event)
	result, err := r.dispatch.Launch(req.Context(), dispatch.LaunchRequest{
		ProjectID: projectID,
		GitURL:    event.GitURL,
		Branch:    event.Branch,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrMissingGitURL), errors.Is(err, dispatch.ErrInvalidGitURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// verifySignature checks a hex-encoded HMAC-SHA256 of the body.
func verifySignature(payload []byte, secret, provided string) error {
	if provided == "" {
		return errors.New("missing webhook signature")
	}
	hasher := hmac.New(sha256.New, []byte(secret))
	hasher.Write(payload)
	expected := hex.EncodeToString(hasher.Sum(nil))
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errors.New("invalid webhook signature")
	}
	return nil
}

func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	deploymentID := req.URL.Query().Get("deployment_id")
	if deploymentID == "" {
		writeError(w, http.StatusBadRequest, "deployment_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(deploymentID, client)
	go func() {
		defer func() {
			r.hub.Unregister(deploymentID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
