package domain

import (
	"testing"
	"time"
)

func TestUserToSummary(t *testing.T) {
	now := time.Now()
	user := &User{
		ID:           "user-123",
		Email:        "test@example.com",
		PasswordHash: "secret-hash",
		Name:         "Test User",
		Role:         RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  &now,
	}

	summary := user.ToSummary()

	if summary.ID != user.ID {
		t.Errorf("expected ID %s, got %s", user.ID, summary.ID)
	}
	if summary.Email != user.Email {
		t.Errorf("expected Email %s, got %s", user.Email, summary.Email)
	}
	if summary.Role != RoleAdmin {
		t.Errorf("expected role admin, got %s", summary.Role)
	}
	if summary.LastLoginAt == nil || !summary.LastLoginAt.Equal(now) {
		t.Error("expected LastLoginAt to be carried over")
	}
}

func TestUserIsAdmin(t *testing.T) {
	if !(&User{Role: RoleAdmin}).IsAdmin() {
		t.Error("expected admin")
	}
	if (&User{Role: RoleMember}).IsAdmin() {
		t.Error("expected member not to be admin")
	}
}
