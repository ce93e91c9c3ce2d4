package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
)

func TestBundle_Accumulates(t *testing.T) {
	b := New()
	require.True(t, b.Empty())

	require.NoError(t, b.AddLog(actionlog.New(actionlog.EntityGroup, "g-1", "u-1", "group created")))
	require.NoError(t, b.AddNotification(notification.New("u-2", notification.TypeEventAlert, "new group")))
	require.NoError(t, b.AddNotification(notification.New("u-3", notification.TypeEventAlert, "new group")))

	assert.Len(t, b.Logs(), 1)
	assert.Len(t, b.Notifications(), 2)
	assert.False(t, b.Empty())
}

func TestBundle_RejectsNilEntries(t *testing.T) {
	b := New()

	err := b.AddLog(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNilEntry, errors.CodeOf(err))

	err = b.AddNotification(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNilEntry, errors.CodeOf(err))

	// Invalid entries are rejected the same way as nil ones.
	err = b.AddNotification(notification.New("", notification.TypeBroadcast, "body"))
	require.Error(t, err)
}

func TestBundle_Merge(t *testing.T) {
	a := New()
	require.NoError(t, a.AddLog(actionlog.New(actionlog.EntityTask, "t-1", "u-1", "task logged")))

	b := New()
	require.NoError(t, b.AddNotification(notification.New("u-2", notification.TypeTaskReminder, "reminder")))

	require.NoError(t, a.Merge(b))
	assert.Len(t, a.Logs(), 1)
	assert.Len(t, a.Notifications(), 1)

	// The merged-from bundle is untouched.
	assert.Len(t, b.Notifications(), 1)

	// Self-merge is a no-op, not a duplication.
	require.NoError(t, a.Merge(a))
	assert.Len(t, a.Logs(), 1)
}

func TestBundle_ConsumedExactlyOnce(t *testing.T) {
	b := New()
	require.NoError(t, b.AddNotification(notification.New("u-1", notification.TypeBroadcast, "hi")))

	require.NoError(t, b.Consume())

	err := b.Consume()
	require.Error(t, err)
	assert.Equal(t, errors.ErrBundleConsumed, errors.CodeOf(err))

	// Append-only ends at consumption.
	err = b.AddNotification(notification.New("u-2", notification.TypeBroadcast, "hi"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrBundleConsumed, errors.CodeOf(err))
}
