package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"adpoints/internal/ledger"
	"adpoints/internal/metrics"
	"adpoints/internal/referral"
	"adpoints/internal/reward"
	"adpoints/internal/withdraw"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies exposes the core services to the handlers.
type Dependencies struct {
	Ledger      *ledger.Ledger
	Rewards     *reward.Service
	Referrals   *referral.Engine
	Withdrawals *withdraw.Service
}

// Server wraps an http.Server with the mini-app API routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	adminToken string
	basePath   string
}

// New creates a new HTTP server listening on addr. adminToken guards the
// operator endpoints; when empty they always reject.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, adminToken, basePath string) *Server {
	server := &Server{
		logger:     logger.With("component", "http"),
		metrics:    metricRegistry,
		deps:       deps,
		adminToken: adminToken,
		basePath:   normaliseBasePath(basePath),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/register", server.handleRegister)
	mux.HandleFunc("/api/balance", server.handleBalance)
	mux.HandleFunc("/api/ads/watch", server.handleWatchAd)
	mux.HandleFunc("/api/bonus/daily", server.handleDailyBonus)
	mux.HandleFunc("/api/referral", server.handleReferral)
	mux.HandleFunc("/api/withdraw", server.handleWithdraw)

	mux.Handle("/api/coins", server.adminOnly(http.HandlerFunc(server.handleAddCoins)))
	mux.Handle("/api/admin/withdrawals", server.adminOnly(http.HandlerFunc(server.handleListWithdrawals)))
	mux.Handle("/api/admin/withdrawals/decide", server.adminOnly(http.HandlerFunc(server.handleDecideWithdrawal)))

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Handler returns the configured root handler. Test hook.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || !secureCompare(extractBearerToken(r.Header.Get("Authorization")), s.adminToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
