package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/mail"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	userByID            *models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	auditLogs           []*models.AuditLog
	lastLoginUpdated    bool
	resets              map[string]*models.PasswordResetToken
	revokedAll          bool
	lookedUp            string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.lookedUp = email
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = true
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	m.userByEmail = user
	return nil
}

func (m *mockAuthRepo) CreatePasswordReset(ctx context.Context, token *models.PasswordResetToken) error {
	if m.resets == nil {
		m.resets = make(map[string]*models.PasswordResetToken)
	}
	m.resets[token.TokenHash] = token
	return nil
}

func (m *mockAuthRepo) FindPasswordReset(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	token, ok := m.resets[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *token
	return &copy, nil
}

func (m *mockAuthRepo) ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	for _, token := range m.resets {
		if token.ID == id {
			if token.UsedAt != nil {
				return false, nil
			}
			token.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

type captureMailer struct {
	sent []mail.Message
}

func (c *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newTestAuthService(repo *mockAuthRepo, mailer mail.Mailer) *AuthService {
	return NewAuthService(repo, mailer, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		ResetURL:           "https://lms.example.com/reset-password",
	})
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour * 24,
	})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Bearer", res.TokenType)
	require.NotNil(t, res.User)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: false}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token

	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.Nil(t, res.User)
	assert.True(t, repo.refreshTokens["token"].Revoked)
	require.NotEmpty(t, repo.auditLogs)
	assert.Equal(t, models.AuditActionTokenRefresh, repo.auditLogs[len(repo.auditLogs)-1].Action)
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{CurrentPassword: "old", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.userByEmail.PasswordHash)
	assert.True(t, repo.revokedAll)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionPasswordChange, repo.auditLogs[0].Action)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := newTestAuthService(repo, nil)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "newpassword"})
	require.Error(t, err)
	assert.Equal(t, string(oldHash), repo.userByEmail.PasswordHash)
}

func TestValidateToken(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, _, err := svc.signAccessToken(user, time.Now())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	repo := &mockAuthRepo{findByEmailErr: sql.ErrNoRows}
	svc := newTestAuthService(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRevokedToken(t *testing.T) {
	revokedAt := time.Now().Add(-time.Minute)
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour), Revoked: true, RevokedAt: &revokedAt},
	}}
	svc := newTestAuthService(repo, nil)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceUpdateProfile(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", FullName: "Old Name", Active: true}}
	svc := newTestAuthService(repo, nil)

	phone := "+201000000000"
	user, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{FullName: "  New Name ", Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.FullName)
	assert.Equal(t, phone, *repo.userByEmail.Phone)
}

func TestAuthServiceForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	repo := &mockAuthRepo{findByEmailErr: sql.ErrNoRows}
	mailer := &captureMailer{}
	svc := newTestAuthService(repo, mailer)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ghost@example.com"}))
	assert.Empty(t, mailer.sent)
	assert.Empty(t, repo.resets)
}

func TestAuthServicePasswordResetFlow(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "student@example.com", FullName: "Student", PasswordHash: string(oldHash), Active: true}}
	mailer := &captureMailer{}
	svc := newTestAuthService(repo, mailer)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "student@example.com"}))
	require.Len(t, mailer.sent, 1)
	require.Len(t, repo.resets, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "student@example.com", msg.ToEmail)
	idx := strings.Index(msg.Text, "?token=")
	require.Greater(t, idx, 0)
	raw := strings.TrimSpace(msg.Text[idx+len("?token="):])

	for hash, token := range repo.resets {
		assert.NotEqual(t, raw, hash)
		assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
	}

	require.NoError(t, svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: raw, NewPassword: "newpassword"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.userByEmail.PasswordHash), []byte("newpassword")))
	assert.True(t, repo.revokedAll)

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: raw, NewPassword: "another"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceResetPasswordExpired(t *testing.T) {
	repo := &mockAuthRepo{resets: map[string]*models.PasswordResetToken{
		hashResetToken("raw"): {ID: "r1", UserID: "u1", TokenHash: hashResetToken("raw"), ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := newTestAuthService(repo, nil)

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: "raw", NewPassword: "newpassword"})
	require.Error(t, err)
	assert.Nil(t, repo.resets[hashResetToken("raw")].UsedAt)
}

func TestAuthServiceSingleSessionRevokesOlderTokens(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "t@example.com", PasswordHash: string(password), Active: true, Role: models.RoleTeacher}}
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: time.Hour, SingleSession: true})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "T@example.com ", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "t@example.com", repo.lookedUp)
	assert.True(t, repo.revokedAll)
}

func TestAuthServiceLogoutRejectsForeignToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "owner", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newTestAuthService(repo, nil)

	err := svc.Logout(context.Background(), "token", "intruder", models.ClientInfo{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["token"].Revoked)

	err = svc.Logout(context.Background(), "missing", "owner", models.ClientInfo{})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "token", "owner", models.ClientInfo{IP: "10.0.0.1"}))
	assert.True(t, repo.refreshTokens["token"].Revoked)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, "10.0.0.1", repo.auditLogs[0].IPAddress)
}

func TestAuthServiceValidateTokenRejectsOtherSecret(t *testing.T) {
	signer := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "one", AccessTokenExpiry: time.Hour})
	verifier := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "two", AccessTokenExpiry: time.Hour})

	token, _, err := signer.signAccessToken(&models.User{ID: "u1", Role: models.RoleStudent}, time.Now())
	require.NoError(t, err)
	_, err = verifier.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	expired, _, err := signer.signAccessToken(&models.User{ID: "u1"}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = signer.ValidateToken(expired)
	assert.Error(t, err)
}
