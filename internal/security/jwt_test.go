package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken("op-42")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "op-42", claims.OperatorID)
	assert.Equal(t, "hospital-router", claims.Issuer)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	other := NewJWTManager("different-secret", time.Hour)

	token, err := m.GenerateToken("op-42")
	assert.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateToken("op-42")
	assert.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTManager_Garbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	_, err := m.ValidateToken("not.a.token")
	assert.Error(t, err)
}
