package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret-test-secret-test-secret", time.Minute)
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer}

	token, err := m.GenerateAccess(actor)
	require.NoError(t, err)

	parsed, err := m.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, actor, parsed)
}

func TestTokenManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewTokenManager("one-secret", time.Minute).GenerateAccess(models.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret", time.Minute).ParseAccess(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := NewTokenManager("secret", -time.Minute)
	token, err := m.GenerateAccess(models.Actor{UserID: uuid.New(), Role: models.RoleClient})
	require.NoError(t, err)

	_, err = m.ParseAccess(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsUnknownRole(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	token, err := m.GenerateAccess(models.Actor{UserID: uuid.New(), Role: "superuser"})
	require.NoError(t, err)

	_, err = m.ParseAccess(token)
	assert.Error(t, err)
}
