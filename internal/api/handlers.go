// Package api exposes HTTP handlers for the health sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/fitsync"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/tokens"
)

// Syncer runs one Google Fit sync for a user.
type Syncer interface {
	Sync(ctx context.Context, userID string) (fitsync.Result, error)
}

// Connector drives the OAuth consent flow.
type Connector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, userID, code string) (domain.Credential, error)
}

// StateSigner binds the OAuth state parameter to a user.
type StateSigner interface {
	Sign(userID string) (string, error)
	Verify(state string) (string, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSyncTimeout bounds a manual sync request. Zero leaves the request context as is.
func WithSyncTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.syncTimeout = d
	}
}

// WithSyncMiddleware wraps the sync endpoint, e.g. with a rate limiter.
func WithSyncMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.syncMiddleware = mw
	}
}

// Handler coordinates HTTP requests with the domain service and the sync pipeline.
type Handler struct {
	service        *domain.Service
	syncer         Syncer
	connector      Connector
	states         StateSigner
	logger         *log.Logger
	syncTimeout    time.Duration
	syncMiddleware func(http.Handler) http.Handler
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, syncer Syncer, connector Connector, states StateSigner, opts ...Option) *Handler {
	h := &Handler{
		service:   service,
		syncer:    syncer,
		connector: connector,
		states:    states,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PublicPaths lists routes served without a bearer token.
func PublicPaths() []string {
	return []string{"/healthz", "/v1/fit/callback"}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	var syncHandler http.Handler = http.HandlerFunc(h.sync)
	if h.syncMiddleware != nil {
		syncHandler = h.syncMiddleware(syncHandler)
	}
	mux.Handle("/v1/fit/sync", syncHandler)
	mux.HandleFunc("/v1/fit/connect", h.connect)
	mux.HandleFunc("/v1/fit/callback", h.callback)
	mux.HandleFunc("/v1/health-score", h.healthScore)
	mux.HandleFunc("/v1/weight", h.weight)
	mux.HandleFunc("/v1/activity", h.activity)
	mux.HandleFunc("/v1/account", h.account)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeFitSync)
	if !ok {
		return
	}

	ctx := r.Context()
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	result, err := h.syncer.Sync(ctx, claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Success:       true,
		ActivityCount: result.ActivityCount,
		WeightCount:   result.WeightCount,
	})
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeFitSync)
	if !ok {
		return
	}

	state, err := h.states.Sign(claims.Subject)
	if err != nil {
		h.logger.Error("sign oauth state", "user_id", claims.Subject, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to start connect flow")
		return
	}
	writeJSON(w, http.StatusOK, ConnectResponse{URL: h.connector.AuthCodeURL(state), State: state})
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		writeError(w, http.StatusBadRequest, "consent_denied", reason)
		return
	}
	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing code parameter")
		return
	}
	userID, err := h.states.Verify(query.Get("state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", "state is missing, expired or forged")
		return
	}

	cred, err := h.connector.Exchange(r.Context(), userID, code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", "user_id", userID, "err", err)
		if errors.Is(err, tokens.ErrExchangeFailed) {
			writeError(w, http.StatusBadGateway, "exchange_failed", "authorization code exchange failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "store_error", "unable to store credential")
		return
	}
	h.logger.Info("google fit connected", "user_id", userID, "offline", cred.HasRefreshToken())
	writeJSON(w, http.StatusOK, CallbackResponse{Connected: true, Offline: cred.HasRefreshToken()})
}

func (h *Handler) healthScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeHealthRead)
	if !ok {
		return
	}

	result, err := h.service.Score(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	observability.RecordScoreComputed()
	writeJSON(w, http.StatusOK, toScoreResponse(result))
}

func (h *Handler) weight(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logWeight(w, r)
	case http.MethodGet:
		h.listWeights(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) logWeight(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeHealthWrite)
	if !ok {
		return
	}

	var req LogWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	entry, err := h.service.LogWeight(r.Context(), claims.Subject, req.Weight, req.Date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWeightView(entry))
}

func (h *Handler) listWeights(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeHealthRead)
	if !ok {
		return
	}

	logs, err := h.service.ListWeights(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]WeightView, 0, len(logs))
	for _, entry := range logs {
		items = append(items, toWeightView(entry))
	}
	writeJSON(w, http.StatusOK, WeightListResponse{Items: items})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeHealthRead)
	if !ok {
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be a positive integer")
			return
		}
		days = parsed
	}

	rows, err := h.service.ListActivity(r.Context(), claims.Subject, days)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]ActivityView, 0, len(rows))
	for _, row := range rows {
		items = append(items, toActivityView(row))
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{Items: items})
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeHealthWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteAccountData(r.Context(), claims.Subject); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.logger.Info("account data deleted", "user_id", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}
