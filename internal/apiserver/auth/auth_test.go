package auth

import (
	"testing"
	"time"

	"leave-admin/internal/shared/model"
)

func testConfig() Config {
	return Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"login", "/api/auth/login", true},
		{"register", "/api/auth/register", true},
		{"refresh", "/api/auth/refresh", true},
		{"health", "/health", true},
		{"metrics", "/metrics", true},
		{"ws", "/ws/chat", true},

		{"me", "/api/auth/me", false},
		{"chat", "/api/chat", false},
		{"medical leaves", "/api/medical-leaves", false},
		{"notifications", "/api/notifications", false},
		{"users", "/api/users", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPublicRoute(tt.path)
			if got != tt.expected {
				t.Errorf("isPublicRoute(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestCanReview(t *testing.T) {
	tests := []struct {
		role     model.UserRole
		expected bool
	}{
		{model.UserRoleAdmin, true},
		{model.UserRoleHR, true},
		{model.UserRoleUser, false},
		{model.UserRole("other"), false},
	}
	for _, tt := range tests {
		if got := CanReview(tt.role); got != tt.expected {
			t.Errorf("CanReview(%q) = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateAccessToken(cfg, "usr-1", "a@b.com", model.UserRoleHR)
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}
	if claims.Subject != "usr-1" {
		t.Errorf("Subject = %q, 期望 usr-1", claims.Subject)
	}
	if claims.Email != "a@b.com" {
		t.Errorf("Email = %q, 期望 a@b.com", claims.Email)
	}
	if claims.Role != "hr" {
		t.Errorf("Role = %q, 期望 hr", claims.Role)
	}
	if claims.Type != "access" {
		t.Errorf("Type = %q, 期望 access", claims.Type)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateAccessToken(cfg, "usr-1", "a@b.com", model.UserRoleUser)
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}

	other := cfg
	other.JWTSecret = "different-secret"
	if _, err := ParseToken(other, token); err == nil {
		t.Error("错误密钥签发的令牌应解析失败")
	}
}

func TestRefreshTokenType(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateRefreshToken(cfg, "usr-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken 失败: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}
	if claims.Type != "refresh" {
		t.Errorf("Type = %q, 期望 refresh", claims.Type)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("HashPassword 失败: %v", err)
	}
	if !CheckPassword("s3cret-password", hash) {
		t.Error("正确密码校验应通过")
	}
	if CheckPassword("wrong-password", hash) {
		t.Error("错误密码校验应失败")
	}
}
