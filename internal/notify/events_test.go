package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFields(t *testing.T) {
	ev := newEvent(KindFraudAlert, "user-1", "claim-1", map[string]any{"reason": "duplicate photos"})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, KindFraudAlert, ev.Kind)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "claim-1", ev.ClaimID)
	assert.Equal(t, "duplicate photos", ev.Payload["reason"])

	_, err := time.Parse(time.RFC3339, ev.Timestamp)
	assert.NoError(t, err)
}

func TestEventJSONOmitsUserID(t *testing.T) {
	ev := newEvent(KindStatusUpdate, "user-1", "claim-1", map[string]any{"status": "SUBMITTED"})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.NotContains(t, decoded, "UserID")
	assert.NotContains(t, decoded, "user_id")
	assert.Equal(t, "claim-1", decoded["claim_id"])
	assert.Equal(t, "status_update", decoded["kind"])
}
