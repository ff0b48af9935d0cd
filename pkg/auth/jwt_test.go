package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)

	token, claims, err := iss.Issue("u-1", "awa@uvci.edu.ci", "client")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	got, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "awa@uvci.edu.ci", got.Email)
	assert.Equal(t, claims.ID, got.ID)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _, err := NewIssuer("one", time.Hour).Issue("u-1", "a@uvci.edu.ci", "client")
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss := NewIssuer("s", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := iss.Issue("u-1", "a@uvci.edu.ci", "client")
	require.NoError(t, err)

	_, err = NewIssuer("s", time.Minute).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
}
