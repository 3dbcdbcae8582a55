package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/s3storage"
)

// handleProxyPDF fetches a remote document and serves it with a fixed PDF
// content type, so browser viewers can embed upstream files that report the
// wrong type.
func (s *Server) handleProxyPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		http.Error(w, "failed to fetch pdf", http.StatusBadRequest)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		http.Error(w, "failed to fetch pdf", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "failed to read bytes", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(data)
}

// handleProxyMedia is the generic pass-through: upstream status, content
// type, and bytes are propagated as-is.
func (s *Server) handleProxyMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		http.Error(w, "failed to fetch media", http.StatusBadRequest)
		return
	}
	defer resp.Body.Close()
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn("stream media body", zap.Error(err))
	}
}

// handleStorage serves stored asset bytes through the service's own storage
// credentials. Import responses point here so clients never talk to the
// upstream store directly.
func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	objectPath := strings.TrimPrefix(r.URL.Path, "/storage/")
	if objectPath == "" {
		http.NotFound(w, r)
		return
	}
	data, contentType, err := s.objects.Download(r.Context(), objectPath)
	if err != nil {
		if errors.Is(err, s3storage.ErrObjectNotFound) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		s.logger.Error("fetch stored object", zap.String("path", objectPath), zap.Error(err))
		http.Error(w, "failed to fetch object", http.StatusInternalServerError)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
