package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordVerifier(t *testing.T) {
	v, err := NewPasswordVerifier(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := v.Hash("admin123")
	require.NoError(t, err)

	assert.True(t, v.Verify("admin123", hash))
	assert.False(t, v.Verify("admin124", hash))
	assert.False(t, v.Verify("", hash))
	assert.False(t, v.Verify("admin123", "not-a-bcrypt-hash"))
	assert.False(t, v.Verify("admin123", ""))
	assert.False(t, v.VerifyMissing("admin123"))
}

func TestNewPasswordVerifier_RejectsBadCost(t *testing.T) {
	_, err := NewPasswordVerifier(bcrypt.MaxCost + 1)
	assert.Error(t, err)
	_, err = NewPasswordVerifier(1)
	assert.Error(t, err)
}

func TestHash_UsesConfiguredCost(t *testing.T) {
	v, err := NewPasswordVerifier(5)
	require.NoError(t, err)
	hash, err := v.Hash("pw")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestFailure(t *testing.T) {
	f := &Failure{Reason: ReasonForbidden}
	assert.Equal(t, 403, f.StatusCode())
	assert.Contains(t, f.Error(), "forbidden")

	inner := &Failure{Reason: ReasonInvalidToken, Err: ErrTokenExpired}
	assert.Equal(t, 401, inner.StatusCode())
	assert.ErrorIs(t, inner, ErrInvalidToken)
}

func TestRolesAndPrincipal(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleSuperAdmin.Valid())
	assert.False(t, Role("editor").Valid())

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.IsSuperAdmin())
	assert.True(t, (&Principal{Role: RoleSuperAdmin}).IsSuperAdmin())
	assert.False(t, (&Principal{Role: RoleAdmin}).IsSuperAdmin())
}
