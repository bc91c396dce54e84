package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"quill/internal/checker"
	"quill/internal/language"
)

type fakeBackend struct {
	lastText string
	lastLang string
	err      error
}

func (f *fakeBackend) Analyze(ctx context.Context, text, lang string) (checker.Result, error) {
	f.lastText, f.lastLang = text, lang
	if f.err != nil {
		return checker.Result{}, f.err
	}
	if lang == "" {
		lang = "en-US"
	}
	return checker.NewRuleChecker().Analyze(ctx, text, lang)
}

func (f *fakeBackend) Language() string { return "en-US" }

func TestHandleCheckJSON(t *testing.T) {
	backend := &fakeBackend{}
	mgr := NewManager(Options{Backend: backend})
	handler := mgr.routes()

	body := strings.NewReader(`{"text":"Ths is a test.","language":"en-GB"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/check", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp CheckResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Language != "en-GB" || len(resp.Matches) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if backend.lastLang != "en-GB" {
		t.Fatalf("language not forwarded: %q", backend.lastLang)
	}
}

func TestHandleCheckForm(t *testing.T) {
	backend := &fakeBackend{}
	handler := NewManager(Options{Backend: backend}).routes()

	form := url.Values{"text": {"This is fine."}}
	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"matches":[]`) {
		t.Fatalf("expected empty match list, got %s", rr.Body.String())
	}
	if backend.lastText != "This is fine." {
		t.Fatalf("unexpected text %q", backend.lastText)
	}
}

func TestHandleCheckErrors(t *testing.T) {
	tests := []struct {
		name        string
		backend     Backend
		body        string
		contentType string
		want        int
	}{
		{"empty text", &fakeBackend{}, `{"text":"  "}`, "application/json", http.StatusBadRequest},
		{"bad json", &fakeBackend{}, `{"text":`, "application/json", http.StatusBadRequest},
		{"bad language", &fakeBackend{err: language.ErrInvalid}, `{"text":"x"}`, "application/json", http.StatusBadRequest},
		{"backend failure", &fakeBackend{err: errors.New("closed")}, `{"text":"x"}`, "application/json", http.StatusInternalServerError},
		{"no backend", nil, `{"text":"x"}`, "application/json", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewManager(Options{Backend: tt.backend}).routes()
			req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestHandleCheckRejectsGet(t *testing.T) {
	handler := NewManager(Options{Backend: &fakeBackend{}}).routes()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/check", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHealthAndLanguages(t *testing.T) {
	handler := NewManager(Options{}).routes()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/languages", nil))
	var langs []LanguageInfo
	if err := json.NewDecoder(rr.Body).Decode(&langs); err != nil {
		t.Fatalf("decode languages: %v", err)
	}
	if len(langs) != len(language.List()) {
		t.Fatalf("unexpected language count %d", len(langs))
	}
	found := false
	for _, l := range langs {
		if l.Code == "de" && l.Name == "German" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected german entry, got %+v", langs)
	}
}

func TestMetricsRouteOptional(t *testing.T) {
	rr := httptest.NewRecorder()
	NewManager(Options{}).routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rr.Code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("quill_up 1\n"))
	})
	rr = httptest.NewRecorder()
	NewManager(Options{Metrics: metrics}).routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "quill_up") {
		t.Fatalf("unexpected metrics response %d %s", rr.Code, rr.Body.String())
	}
}
