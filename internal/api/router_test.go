package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/swaggo/swag"

	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/api/middleware"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// credentialAuth fails every login the same way; embedded methods are
// never reached by these tests.
type credentialAuth struct {
	ports.AuthService
	known map[string]string
}

func (a credentialAuth) Login(_ context.Context, email, password string) (*ports.LoginResult, error) {
	if pw, ok := a.known[email]; ok && pw == password {
		return nil, &domain.UnverifiedError{Link: "https://id.example.com/auth/verify-email/u1/tok"}
	}
	return nil, domain.ErrInvalidCredentials
}

func (a credentialAuth) RefreshSession(context.Context, string) (*ports.LoginResult, error) {
	return nil, domain.ErrSessionNotFound
}

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Auth:       credentialAuth{known: map[string]string{"a@x.com": "abcdef"}},
		Guard:      middleware.NewRoleGuard(nil),
		Health:     map[string]handler.Pinger{},
		Log:        zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_LoginEnumerationResistance(t *testing.T) {
	r := newTestRouter()

	unknown := serve(r, http.MethodPost, "/auth/login", `{"email":"nobody@x.com","password":"abcdef"}`)
	wrong := serve(r, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong!"}`)

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies differ:\n%s\n%s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestRouter_LoginUnverified(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"abcdef"}`)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "verifyEmailLink") {
		t.Fatalf("expected 401 with link, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_RefreshWithoutSession(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodPost, "/auth/refresh", `{"refreshToken":"stale"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRouter_ProtectedRouteRequiresCredential(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodGet, "/users/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestRouter()
	if rec := serve(r, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/health/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health/ready, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestRouter_SwaggerDocumentsEveryAPIRoute(t *testing.T) {
	raw, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}

	e := newTestRouter().(*echo.Echo)
	checked := 0
	for _, route := range e.Routes() {
		if !strings.HasPrefix(route.Path, "/auth/") && !strings.HasPrefix(route.Path, "/users/") {
			continue
		}
		// Group middleware registers not-found catch-alls under the prefix.
		if strings.Contains(route.Path, "*") || route.Method == echo.RouteNotFound {
			continue
		}
		path := swaggerPath(route.Path)
		if _, ok := doc.Paths[path][strings.ToLower(route.Method)]; !ok {
			t.Errorf("%s %s missing from swagger document", route.Method, path)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no API routes registered")
	}
}

func TestRouter_SwaggerServesDocJSON(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodGet, "/swagger/doc.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/auth/login") {
		t.Fatalf("expected doc with operations, got %d %s", rec.Code, rec.Body.String())
	}
}

// swaggerPath turns an echo path like /users/:id into /users/{id}.
func swaggerPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + part[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}
