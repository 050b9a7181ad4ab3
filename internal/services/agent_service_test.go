package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"console-service/internal/models"
)

func TestHeartbeat_RejectsUnknownStatus(t *testing.T) {
	svc := NewAgentService(nil, nil, nil, 0, 365)

	_, err := svc.Heartbeat(context.Background(), uuid.New(), "key", HeartbeatRequest{Status: "SLEEPING"})
	vErr, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "status", vErr.Field)
}

func TestIsValidAgentStatus(t *testing.T) {
	for _, status := range models.ValidAgentStatuses {
		assert.True(t, isValidAgentStatus(status), status)
	}
	assert.False(t, isValidAgentStatus("online"), "statuses are case-sensitive")
	assert.False(t, isValidAgentStatus("SLEEPING"))
	assert.False(t, isValidAgentStatus(""))
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := generateAPIKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)

	other, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
