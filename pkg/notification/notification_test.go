package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"created to queued", StatusCreated, StatusQueued, true},
		{"queued to sent", StatusQueued, StatusSent, true},
		{"queued to failed", StatusQueued, StatusFailed, true},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to failed via receipt", StatusSent, StatusFailed, true},
		{"sent to queued via escalation", StatusSent, StatusQueued, true},
		{"failed requeue", StatusFailed, StatusQueued, true},
		{"failed to abandoned", StatusFailed, StatusAbandoned, true},
		{"delivered is terminal", StatusDelivered, StatusQueued, false},
		{"abandoned is terminal", StatusAbandoned, StatusQueued, false},
		{"no created to sent shortcut", StatusCreated, StatusSent, false},
		{"no queued to delivered shortcut", StatusQueued, StatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusAbandoned.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusFailed.Terminal())
}

func TestNotification_Transition(t *testing.T) {
	n := New("user-1", TypeEventAlert, "meeting at noon")
	require.Equal(t, StatusCreated, n.Status)

	require.NoError(t, n.Transition(StatusQueued))
	require.NoError(t, n.Transition(StatusSent))
	require.NoError(t, n.Transition(StatusDelivered))

	err := n.Transition(StatusQueued)
	require.Error(t, err, "terminal state must reject further transitions")
}

func TestNotification_MarkRead(t *testing.T) {
	n := New("user-1", TypeTaskReminder, "vote tonight")

	require.Error(t, n.MarkRead(), "read flag must not be settable before send")

	require.NoError(t, n.Transition(StatusQueued))
	require.Error(t, n.MarkRead())

	require.NoError(t, n.Transition(StatusSent))
	require.NoError(t, n.MarkRead())
	assert.True(t, n.Read)
}

func TestNotification_Validate(t *testing.T) {
	valid := New("user-1", TypeBroadcast, "hello")
	require.NoError(t, valid.Validate())

	missingRecipient := New("", TypeBroadcast, "hello")
	require.Error(t, missingRecipient.Validate())

	missingBody := New("user-1", TypeBroadcast, "")
	require.Error(t, missingBody.Validate())
}

func TestChannel_BestEffort(t *testing.T) {
	assert.True(t, ChannelPush.BestEffort())
	assert.False(t, ChannelSMS.BestEffort())
	assert.False(t, ChannelEmail.BestEffort())
}
