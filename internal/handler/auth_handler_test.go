package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type authServiceMock struct {
	loginReq    models.LoginRequest
	loginErr    error
	loggedOut   string
	profileReq  models.UpdateProfileRequest
	user        *models.User
	accessToken string
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	m.loginReq = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.TokenPair{AccessToken: m.accessToken, RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 900}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	return &models.TokenPair{AccessToken: m.accessToken, RefreshToken: "refresh-2"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, client models.ClientInfo) error {
	m.loggedOut = refreshToken
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

func (m *authServiceMock) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	return nil
}

func (m *authServiceMock) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return nil
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.User, error) {
	return m.user, nil
}

func (m *authServiceMock) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	m.profileReq = req
	return m.user, nil
}

func (m *authServiceMock) AccessTokenTTL() time.Duration { return 15 * time.Minute }

func TestAuthHandlerLoginSetsCookie(t *testing.T) {
	svc := &authServiceMock{accessToken: "access-123"}
	handler := NewAuthHandler(svc, CookieConfig{Name: "lms_token", Secure: true})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"t@example.com","password":"secret1"}`))
	c.Request.Header.Set("User-Agent", "tests")

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tests", svc.loginReq.UserAgent)

	cookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, "lms_token=access-123"))
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Secure")
	assert.Contains(t, cookie, "Max-Age=900")
}

func TestAuthHandlerLoginFailureSetsNoCookie(t *testing.T) {
	svc := &authServiceMock{loginErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")}
	handler := NewAuthHandler(svc, CookieConfig{})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"t@example.com","password":"bad"}`))
	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestAuthHandlerLogoutClearsCookie(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc, CookieConfig{})

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	withClaims(c, "user-1", models.RoleStudent)

	handler.Logout(c)
	require.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "refresh", svc.loggedOut)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "token=;")
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestAuthHandlerLogoutRequiresRefreshToken(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{}, CookieConfig{})

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	withClaims(c, "user-1", models.RoleStudent)

	handler.Logout(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMeAndProfile(t *testing.T) {
	svc := &authServiceMock{user: &models.User{ID: "user-1", FullName: "Sara Nabil", Role: models.RoleTeacher}}
	handler := NewAuthHandler(svc, CookieConfig{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	withClaims(c, "user-1", models.RoleTeacher)
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Sara Nabil", data["full_name"])

	c, w = newGinContext(http.MethodPut, "/auth/profile", []byte(`{"full_name":"Sara N."}`))
	withClaims(c, "user-1", models.RoleTeacher)
	handler.UpdateProfile(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sara N.", svc.profileReq.FullName)
}
