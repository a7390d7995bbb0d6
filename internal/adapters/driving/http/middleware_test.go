package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "valid bearer token", header: "Bearer abc123", expected: "abc123"},
		{name: "bearer with extra spaces", header: "Bearer   token-with-spaces   ", expected: "token-with-spaces"},
		{name: "lowercase bearer", header: "bearer token123", expected: "token123"},
		{name: "empty header", header: "", expected: ""},
		{name: "no bearer prefix", header: "token123", expected: ""},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			result := extractBearerToken(req)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGetAuthContext(t *testing.T) {
	if GetAuthContext(context.Background()) != nil {
		t.Error("expected nil for context without auth")
	}

	authCtx := &domain.AuthContext{UserID: "user-1", Role: domain.RoleMember}
	ctx := WithAuthContext(context.Background(), authCtx)
	if got := GetAuthContext(ctx); got != authCtx {
		t.Errorf("expected stored auth context, got %+v", got)
	}

	// Wrong type under the key
	ctx = context.WithValue(context.Background(), authContextKey, "not-auth-context")
	if GetAuthContext(ctx) != nil {
		t.Error("expected nil for wrong type")
	}
}

// stubValidator is an AuthService whose ValidateToken is a function
type stubValidator struct {
	mockAuthService
	validate func(token string) (*domain.AuthContext, error)
}

func (s *stubValidator) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	return s.validate(token)
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantError: "missing authorization token"},
		{name: "valid", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "expired", header: "Bearer old", err: domain.ErrTokenExpired, wantStatus: http.StatusUnauthorized, wantError: "token expired"},
		{name: "wrapped expiry", header: "Bearer old", err: fmt.Errorf("parse: %w", domain.ErrTokenExpired), wantStatus: http.StatusUnauthorized, wantError: "token expired"},
		{name: "revoked session", header: "Bearer gone", err: domain.ErrSessionNotFound, wantStatus: http.StatusUnauthorized, wantError: "session not found"},
		{name: "invalid", header: "Bearer junk", err: domain.ErrTokenInvalid, wantStatus: http.StatusUnauthorized, wantError: "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubValidator{validate: func(token string) (*domain.AuthContext, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &domain.AuthContext{UserID: "user-1", Role: domain.RoleMember}, nil
			}}

			var seen *domain.AuthContext
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetAuthContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(svc).Authenticate(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" && !strings.Contains(rec.Body.String(), tt.wantError) {
				t.Errorf("body = %s, want %q", rec.Body.String(), tt.wantError)
			}
			if tt.wantStatus == http.StatusOK && (seen == nil || seen.UserID != "user-1") {
				t.Errorf("handler saw auth context %+v", seen)
			}
		})
	}
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		authCtx    *domain.AuthContext
		wantStatus int
	}{
		{name: "admin", authCtx: &domain.AuthContext{UserID: "a", Role: domain.RoleAdmin}, wantStatus: http.StatusOK},
		{name: "member", authCtx: &domain.AuthContext{UserID: "m", Role: domain.RoleMember}, wantStatus: http.StatusForbidden},
		{name: "no context", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.authCtx != nil {
				req = req.WithContext(WithAuthContext(req.Context(), tt.authCtx))
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(nil).RequireAdmin(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{name: "generated when absent", inbound: "", reuse: false},
		{name: "inbound reused", inbound: "req-123", reuse: true},
		{name: "spaces rejected", inbound: "two words", reuse: false},
		{name: "too long rejected", inbound: strings.Repeat("a", maxRequestIDLen+1), reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if (got == tt.inbound) != tt.reuse {
				t.Errorf("request id = %q, reuse inbound %q = %v", got, tt.inbound, tt.reuse)
			}
		})
	}

	if RequestID(context.Background()) != "" {
		t.Error("expected empty request id outside the middleware")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/chats", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	out := buf.String()
	for _, want := range []string{"method=GET", "path=/api/v1/chats", "status=418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "test panic") {
		t.Error("panic value leaked to the client")
	}
	if !strings.Contains(buf.String(), "test panic") {
		t.Error("panic value should be logged")
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "listed origin", allowed: []string{"https://app.example"}, origin: "https://app.example", method: "GET", wantStatus: http.StatusOK, wantAllowed: "https://app.example"},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", method: "GET", wantStatus: http.StatusOK, wantAllowed: "https://any.example"},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", method: "GET", wantStatus: http.StatusOK},
		{name: "no origin", allowed: []string{"*"}, method: "GET", wantStatus: http.StatusOK},
		{name: "preflight", allowed: []string{"*"}, origin: "https://app.example", method: "OPTIONS", wantStatus: http.StatusNoContent, wantAllowed: "https://app.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCORSMiddleware(tt.allowed).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
		})
	}
}
