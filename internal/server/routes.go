package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quill/internal/checker"
	"quill/internal/language"
	"quill/internal/logging"
)

const maxCheckBody = 1 << 20

// CheckRequest is the JSON body accepted by POST /v1/check.
type CheckRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// CheckResponse is returned by POST /v1/check.
type CheckResponse struct {
	Language string          `json:"language"`
	Matches  []checker.Match `json:"matches"`
	Error    string          `json:"error,omitempty"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Server   Status `json:"server"`
	Language string `json:"language"`
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Native string `json:"native,omitempty"`
}

func (m *Manager) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(m.logRequests)
	for _, mw := range m.middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", m.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", m.handleStatus)
		r.Get("/languages", m.handleLanguages)
		r.Post("/check", m.handleCheck)
	})
	if m.metrics != nil {
		r.Method(http.MethodGet, "/metrics", m.metrics)
	}
	return r
}

// logRequests logs each request at debug level.
func (m *Manager) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.logger.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
			logging.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (m *Manager) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (m *Manager) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := StatusResponse{Server: m.Status()}
	if m.backend != nil {
		payload.Language = m.backend.Language()
	}
	m.writeJSON(w, http.StatusOK, payload)
}

func (m *Manager) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	codes := language.List()
	out := make([]LanguageInfo, 0, len(codes))
	for _, code := range codes {
		out = append(out, LanguageInfo{
			Code:   code,
			Name:   language.DisplayName(code),
			Native: language.NativeName(code),
		})
	}
	m.writeJSON(w, http.StatusOK, out)
}

func (m *Manager) handleCheck(w http.ResponseWriter, r *http.Request) {
	if m.backend == nil {
		m.writeError(w, http.StatusServiceUnavailable, "checker unavailable")
		return
	}
	req, err := decodeCheckRequest(w, r)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		m.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := m.backend.Analyze(r.Context(), req.Text, req.Language)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, language.ErrEmpty) || errors.Is(err, language.ErrInvalid) {
			status = http.StatusBadRequest
		}
		m.writeError(w, status, err.Error())
		return
	}
	matches := result.Matches
	if matches == nil {
		matches = []checker.Match{}
	}
	m.writeJSON(w, http.StatusOK, CheckResponse{
		Language: result.Language,
		Matches:  matches,
		Error:    result.Error,
	})
}

// decodeCheckRequest accepts a JSON body or form fields text and language.
func decodeCheckRequest(w http.ResponseWriter, r *http.Request) (CheckRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCheckBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return CheckRequest{}, errors.New("invalid JSON body")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return CheckRequest{}, errors.New("invalid form body")
	}
	return CheckRequest{Text: r.Form.Get("text"), Language: r.Form.Get("language")}, nil
}

func (m *Manager) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		m.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (m *Manager) writeError(w http.ResponseWriter, status int, message string) {
	m.writeJSON(w, status, map[string]string{"error": message})
}
