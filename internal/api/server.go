// Package api exposes the HTTP surface: sharing, importing, and the
// media/storage proxies.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/config"
	"github.com/detective-board/caseshare/internal/hashing"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/service"
	"github.com/detective-board/caseshare/internal/sharecode"
)

// ObjectStore is the storage access the proxy and signed-url handlers need.
type ObjectStore interface {
	Download(ctx context.Context, objectPath string) ([]byte, string, error)
	Presign(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// AssetFinder resolves content hashes to asset records.
type AssetFinder interface {
	FindByHash(ctx context.Context, hash string) (*repository.Asset, error)
}

// Server hosts the HTTP handlers. It stitches together configuration, the
// share/import services, storage access, and a shared outbound client.
type Server struct {
	cfg     *config.Config
	share   *service.ShareService
	imports *service.ImportService
	assets  AssetFinder
	objects ObjectStore
	client  *http.Client
	logger  *zap.Logger
}

// New creates a configured server. The outbound client is shared by every
// proxy request and bounded by the configured timeout so an unresponsive
// upstream cannot pin a handler forever.
func New(cfg *config.Config, share *service.ShareService, imports *service.ImportService, assets AssetFinder, objects ObjectStore, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		share:   share,
		imports: imports,
		assets:  assets,
		objects: objects,
		client:  &http.Client{Timeout: cfg.ProxyTimeout},
		logger:  logger,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("address", s.cfg.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes builds the handler tree with CORS and access logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/share", s.handleShare)
	mux.HandleFunc("/import/", s.handleImport)
	mux.HandleFunc("/proxy-pdf", s.handleProxyPDF)
	mux.HandleFunc("/proxy-media", s.handleProxyMedia)
	mux.HandleFunc("/storage/", s.handleStorage)
	mux.HandleFunc("/assets/", s.handleAssetRoute)
	return corsMiddleware(accessLogMiddleware(s.logger, mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	res, err := s.share.Share(r.Context(), mr)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCaseData):
			http.Error(w, "missing case_data", http.StatusBadRequest)
		case errors.Is(err, service.ErrInvalidCaseData):
			http.Error(w, "case_data is not valid JSON", http.StatusBadRequest)
		case errors.Is(err, sharecode.ErrCodeSpaceExhausted):
			s.logger.Error("share code generation exhausted", zap.Error(err))
			http.Error(w, "could not allocate share code", http.StatusInternalServerError)
		default:
			s.logger.Error("share case", zap.Error(err))
			http.Error(w, "failed to save case", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"share_code": res.ShareCode,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/import/")
	if code == "" || strings.Contains(code, "/") {
		http.NotFound(w, r)
		return
	}
	res, err := s.imports.Import(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, "case not found", http.StatusNotFound)
		case errors.Is(err, service.ErrExpired):
			http.Error(w, "case expired", http.StatusGone)
		default:
			s.logger.Error("import case", zap.String("code", code), zap.Error(err))
			http.Error(w, "database error", http.StatusInternalServerError)
		}
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleAssetRoute serves /assets/{hash}/signed-url.
func (s *Server) handleAssetRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/assets/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "signed-url" || !hashing.ValidHash(parts[0]) {
		http.NotFound(w, r)
		return
	}
	a, err := s.assets.FindByHash(r.Context(), parts[0])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		s.logger.Error("find asset", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	u, err := s.objects.Presign(r.Context(), a.StoragePath, s.cfg.SignedURLTTL)
	if err != nil {
		s.logger.Error("presign asset", zap.String("assetId", a.ID), zap.Error(err))
		http.Error(w, "failed to generate url", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": u})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
