package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers map[string]*domain.User

func (f fakeUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if email == "down@aqlhr.test" {
		return nil, errors.New("connection refused")
	}
	return f[email], nil
}

func TestIssuer_RoundTrip(t *testing.T) {
	key := newKey(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	users := fakeUsers{"hr-admin@aqlhr.test": {
		ID: "u1", TenantID: "t1", Email: "hr-admin@aqlhr.test", PasswordHash: string(hash), Role: domain.RoleAdmin,
	}}
	iss := NewIssuer(users, key, "aqlhr-console", time.Hour)

	resp, err := iss.GenerateToken(context.Background(), " HR-Admin@aqlhr.test ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.EqualValues(t, 3600, resp.ExpiresIn)

	got, err := NewRS256Validator(&key.PublicKey, "aqlhr-console").VerifyToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	_, err = iss.GenerateToken(context.Background(), "hr-admin@aqlhr.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = iss.GenerateToken(context.Background(), "nobody@aqlhr.test", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = iss.GenerateToken(context.Background(), "down@aqlhr.test", "s3cret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
