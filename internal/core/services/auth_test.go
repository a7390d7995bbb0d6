package services

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

func newTestAuthService() (*mocks.MockUserStore, *mocks.MockSessionStore, *mocks.MockAuthAdapter, *authService) {
	userStore := mocks.NewMockUserStore()
	sessionStore := mocks.NewMockSessionStore()
	authAdapter := mocks.NewMockAuthAdapter()
	svc := NewAuthService(userStore, sessionStore, authAdapter).(*authService)
	return userStore, sessionStore, authAdapter, svc
}

func saveUser(t *testing.T, store *mocks.MockUserStore, id, email, password string, active bool) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hashed:" + password,
		Name:         "Test User",
		Role:         domain.RoleMember,
		Active:       active,
		CreatedAt:    time.Now(),
	}
	if err := store.Save(context.Background(), user); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return user
}

func TestAuthService_Register(t *testing.T) {
	userStore, _, _, svc := newTestAuthService()
	ctx := context.Background()

	first, err := svc.Register(ctx, domain.RegisterRequest{Email: " Admin@Example.com ", Password: "password123", Name: "Ada"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if first.Role != domain.RoleAdmin {
		t.Errorf("first user role = %s, want admin", first.Role)
	}
	if first.Email != "admin@example.com" {
		t.Errorf("email = %q, want normalised", first.Email)
	}

	second, err := svc.Register(ctx, domain.RegisterRequest{Email: "member@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if second.Role != domain.RoleMember {
		t.Errorf("second user role = %s, want member", second.Role)
	}

	stored, _ := userStore.Get(ctx, second.ID)
	if stored.PasswordHash != "hashed:password123" {
		t.Error("password was not hashed")
	}

	tests := []struct {
		name    string
		req     domain.RegisterRequest
		wantErr error
	}{
		{"duplicate email", domain.RegisterRequest{Email: "MEMBER@example.com", Password: "password123"}, domain.ErrAlreadyExists},
		{"missing email", domain.RegisterRequest{Password: "password123"}, domain.ErrInvalidInput},
		{"not an email", domain.RegisterRequest{Email: "nobody", Password: "password123"}, domain.ErrInvalidInput},
		{"short password", domain.RegisterRequest{Email: "new@example.com", Password: "short"}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.req); err != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	userStore, sessionStore, _, svc := newTestAuthService()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)
	saveUser(t, userStore, "user-456", "inactive@example.com", "password123", false)

	tests := []struct {
		name    string
		req     domain.LoginRequest
		wantErr error
	}{
		{"valid credentials", domain.LoginRequest{Email: "test@example.com", Password: "password123"}, nil},
		{"email case ignored", domain.LoginRequest{Email: "TEST@example.com", Password: "password123"}, nil},
		{"empty email", domain.LoginRequest{Password: "password123"}, domain.ErrInvalidInput},
		{"empty password", domain.LoginRequest{Email: "test@example.com"}, domain.ErrInvalidInput},
		{"wrong password", domain.LoginRequest{Email: "test@example.com", Password: "wrongpassword"}, domain.ErrInvalidCredentials},
		{"unknown user", domain.LoginRequest{Email: "unknown@example.com", Password: "password123"}, domain.ErrInvalidCredentials},
		{"inactive user", domain.LoginRequest{Email: "inactive@example.com", Password: "password123"}, domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Authenticate(context.Background(), tt.req)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Token == "" || resp.RefreshToken == "" {
				t.Error("expected token pair to be generated")
			}
			if resp.User.ID != "user-123" {
				t.Errorf("expected user-123, got %s", resp.User.ID)
			}
		})
	}

	if sessionStore.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", sessionStore.Count())
	}
	user, _ := userStore.Get(context.Background(), "user-123")
	if user.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	userStore, sessionStore, authAdapter, svc := newTestAuthService()
	ctx := context.Background()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)

	login, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	forge := func(sessionID string, expires time.Time) string {
		token, _ := authAdapter.GenerateToken(&domain.TokenClaims{
			UserID:    "user-123",
			Email:     "test@example.com",
			Role:      domain.RoleMember,
			SessionID: sessionID,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: expires.Unix(),
		})
		return token
	}

	expiredSession := forge("session-expired", time.Now().Add(time.Hour))
	_ = sessionStore.Save(ctx, &domain.Session{
		ID:        "session-expired",
		UserID:    "user-123",
		Token:     expiredSession,
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid token", login.Token, nil},
		{"empty token", "", domain.ErrTokenInvalid},
		{"malformed token", "not!valid@base64#", domain.ErrTokenInvalid},
		{"expired token", forge("session-x", time.Now().Add(-time.Hour)), domain.ErrTokenExpired},
		{"session not found", forge("missing", time.Now().Add(time.Hour)), domain.ErrSessionNotFound},
		{"session expired", expiredSession, domain.ErrTokenExpired},
		{"unknown session id", forge(login.User.ID, time.Now().Add(time.Hour)), domain.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authCtx, err := svc.ValidateToken(ctx, tt.token)
			if err != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && (authCtx.UserID != "user-123" || authCtx.SessionID == "") {
				t.Errorf("unexpected auth context %+v", authCtx)
			}
		})
	}
}

func TestAuthService_ValidateTokenRejectsSwappedToken(t *testing.T) {
	userStore, sessionStore, authAdapter, svc := newTestAuthService()
	ctx := context.Background()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)

	login, _ := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})
	claims, _ := authAdapter.ParseToken(login.Token)

	// Same session, different token body
	claims.Email = "other@example.com"
	swapped, _ := authAdapter.GenerateToken(claims)
	if _, err := svc.ValidateToken(ctx, swapped); err != domain.ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
	if sessionStore.Count() != 1 {
		t.Errorf("expected session to survive, got %d sessions", sessionStore.Count())
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	userStore, sessionStore, _, svc := newTestAuthService()
	ctx := context.Background()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)

	login, _ := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})

	refreshed, err := svc.RefreshToken(ctx, domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if refreshed.Token == login.Token || refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a new token pair")
	}
	if sessionStore.Count() != 1 {
		t.Errorf("expected old session to be replaced, got %d sessions", sessionStore.Count())
	}
	if _, err := svc.ValidateToken(ctx, login.Token); err == nil {
		t.Error("old token still valid after refresh")
	}
	if _, err := svc.ValidateToken(ctx, refreshed.Token); err != nil {
		t.Errorf("new token rejected: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", domain.ErrTokenInvalid},
		{"reused", login.RefreshToken, domain.ErrTokenInvalid},
		{"unknown", "nope", domain.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RefreshToken(ctx, domain.RefreshRequest{RefreshToken: tt.token}); err != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	userStore, sessionStore, _, svc := newTestAuthService()
	ctx := context.Background()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)

	a, _ := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})
	b, _ := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})

	if err := svc.Logout(ctx, a.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.ValidateToken(ctx, a.Token); err != domain.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound after logout, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, b.Token); err != nil {
		t.Errorf("other session affected by logout: %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Errorf("Logout(garbage) error = %v", err)
	}

	if err := svc.LogoutAll(ctx, "user-123"); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	if sessionStore.Count() != 0 {
		t.Errorf("expected no sessions, got %d", sessionStore.Count())
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	userStore, sessionStore, _, svc := newTestAuthService()
	ctx := context.Background()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)
	_, _ = svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "password123"})

	tests := []struct {
		name    string
		req     domain.ChangePasswordRequest
		wantErr error
	}{
		{"missing current", domain.ChangePasswordRequest{NewPassword: "newpassword"}, domain.ErrInvalidInput},
		{"short new", domain.ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "short"}, domain.ErrInvalidInput},
		{"wrong current", domain.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newpassword"}, domain.ErrInvalidCredentials},
		{"valid", domain.ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.ChangePassword(ctx, "user-123", tt.req); err != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}

	if sessionStore.Count() != 0 {
		t.Error("expected sessions to be revoked after password change")
	}
	if _, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "test@example.com", Password: "newpassword"}); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}

func TestAuthService_GetUser(t *testing.T) {
	userStore, _, _, svc := newTestAuthService()
	saveUser(t, userStore, "user-123", "test@example.com", "password123", true)

	summary, err := svc.GetUser(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if summary.Email != "test@example.com" {
		t.Errorf("expected test@example.com, got %s", summary.Email)
	}
	if _, err := svc.GetUser(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
