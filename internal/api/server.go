// Package api provides the HTTP API over the settlement service.
// GET endpoints are public. POST endpoints that change a settlement are rate
// limited per client IP; /sweep requires the admin bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/social"
)

// Server serves the settlement service over HTTP.
type Server struct {
	Service  *engine.Service
	DB       *persistence.DB // optional; journal and stats endpoints need it
	Hub      *Hub            // optional; /stream needs it
	Port     int
	AdminKey string // Bearer token for /sweep. Empty = sweep disabled.

	// MutateRate is how many POSTs one IP may make per MutateWindow.
	MutateRate   int
	MutateWindow time.Duration

	started time.Time
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	rate, window := s.MutateRate, s.MutateWindow
	if rate <= 0 {
		rate = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	limiter := NewRateLimiter(rate, window)
	limited := func(h http.HandlerFunc) http.HandlerFunc { return RateLimitMiddleware(limiter, h) }

	mux := http.NewServeMux()

	// Public read endpoints. None of them found settlements.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/v1/settlements", s.handleSettlements)
	mux.HandleFunc("GET /api/v1/settlement/{owner}", s.handleSettlement)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Player actions.
	mux.HandleFunc("POST /api/v1/settlement/{owner}/start", limited(s.handleStart))
	mux.HandleFunc("POST /api/v1/settlement/{owner}/collect", limited(s.handleCollect))
	mux.HandleFunc("POST /api/v1/settlement/{owner}/build", limited(s.handleBuild))
	mux.HandleFunc("POST /api/v1/settlement/{owner}/day", limited(s.handleDay))

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/sweep", s.adminOnly(s.handleSweep))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can
// be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "journal", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CITYSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":           "mini-city",
		"settlements":    s.Service.Registry().Len(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"journal":        s.DB != nil,
	}
	if s.Hub != nil {
		status["stream_clients"] = s.Hub.Count()
	}
	writeJSON(w, status)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Kind       economy.BuildingKind `json:"kind"`
		Cost       economy.Ledger       `json:"cost"`
		Production economy.Ledger       `json:"production_per_hour"`
		Housing    int                  `json:"housing,omitempty"`
	}

	catalog := s.Service.Engine().Catalog
	result := make([]entry, 0, len(catalog.Kinds()))
	for _, k := range catalog.Kinds() {
		def, err := catalog.Def(k)
		if err != nil {
			continue
		}
		result = append(result, entry{Kind: k, Cost: def.Cost, Production: def.ProductionPerHour, Housing: def.Housing})
	}
	writeJSON(w, result)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	views, err := s.Service.Settlements(r.Context())
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, views)
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	view, err := s.Service.Status(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := s.Service.GetOrCreate(r.Context(), r.PathValue("owner"), req.Name)
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Service.Collect(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := economy.ParseBuildingKind(req.Kind)
	if err != nil {
		http.Error(w, fmt.Sprintf("unknown building kind %q (use: food_farm, lumber_mill, mine, house)", req.Kind), http.StatusBadRequest)
		return
	}

	view, err := s.Service.Build(r.Context(), r.PathValue("owner"), kind)
	if err != nil {
		s.writeServiceError(w, err, &view)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	rep, view, err := s.Service.AdvanceDay(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, map[string]any{"report": rep, "settlement": view})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := s.DB.RecentEvents(r.Context(), r.URL.Query().Get("owner"), limit)
	if err != nil {
		slog.Error("events query failed", "error", err)
		http.Error(w, "events query failed", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	rows, err := s.DB.StatsHistory(r.Context(), limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return empty array instead of error; the table may not have data yet.
		writeJSON(w, []engine.Stats{})
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	s.Hub.ServeWs(w, r)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Service.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, err, nil)
		return
	}
	if s.DB != nil {
		if err := s.DB.SaveStats(r.Context(), stats); err != nil {
			slog.Warn("save stats failed", "error", err)
		}
	}
	slog.Info("manual sweep", "settlements", stats.Settlements, "population", stats.Population)
	writeJSON(w, stats)
}

// shortfallResponse is the 409 body for a construction the settlement cannot
// afford.
type shortfallResponse struct {
	Error      string           `json:"error"`
	Resource   economy.Resource `json:"resource"`
	Required   float64          `json:"required"`
	Available  float64          `json:"available"`
	Missing    float64          `json:"missing"`
	Settlement *social.View     `json:"settlement,omitempty"`
}

// writeServiceError maps service errors to status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, view *social.View) {
	var short *economy.InsufficientResourcesError
	switch {
	case errors.As(err, &short):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(shortfallResponse{
			Error:      err.Error(),
			Resource:   short.Resource,
			Required:   short.Required,
			Available:  short.Available,
			Missing:    short.Missing(),
			Settlement: view,
		})
	case errors.Is(err, engine.ErrNoSettlement):
		http.Error(w, "no settlement for this owner (POST .../start first)", http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidOwner):
		http.Error(w, "invalid owner id", http.StatusBadRequest)
	case errors.Is(err, economy.ErrUnknownBuildingKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("service call failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
