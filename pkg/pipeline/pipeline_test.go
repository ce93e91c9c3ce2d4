package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-dispatch/internal/testutil"
	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/bundle"
	"github.com/grassrootza/grassroot-dispatch/pkg/config"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/pipeline"
	"github.com/grassrootza/grassroot-dispatch/pkg/sender"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "dispatch.db")
	// Fast schedules so the sweeps actually fire during the test.
	cfg.Sweeps.PendingInterval = 20 * time.Millisecond
	cfg.Sweeps.EscalationInterval = 20 * time.Millisecond
	cfg.Sweeps.RetryInterval = 20 * time.Millisecond
	cfg.Sweeps.GracePeriod = 0
	cfg.Sweeps.EscalationWindow = 50 * time.Millisecond
	cfg.Sweeps.BackoffBase = 10 * time.Millisecond
	cfg.Dispatch.ClaimWindow = 10 * time.Millisecond
	return cfg
}

func TestPipeline_EndToEndDelivery(t *testing.T) {
	sent := make(chan string, 8)
	p, err := pipeline.New(testConfig(t), pipeline.Options{
		Senders: map[notification.Channel]sender.Sender{
			notification.ChannelSMS: sender.Func(func(ctx context.Context, address, body string) (sender.Outcome, error) {
				sent <- address
				return sender.Success, nil
			}),
		},
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	p.Start()
	defer p.Close()

	bnd := bundle.New()
	require.NoError(t, bnd.AddLog(actionlog.New(actionlog.EntityGroup, "g-1", "u-1", "member added")))
	n := notification.New("u-2", notification.TypeEventAlert, "you were added to a group")
	require.NoError(t, bnd.AddNotification(n))
	require.NoError(t, p.StoreBundle(context.Background(), bnd))

	// Not priority: the pending sweep delivers it after the grace period.
	select {
	case addr := <-sent:
		assert.Equal(t, "u-2", addr)
	case <-time.After(5 * time.Second):
		t.Fatal("pending sweep never delivered the notification")
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		stored, err := p.Store.GetNotification(context.Background(), n.ID)
		return err == nil && stored.Status == notification.StatusSent
	})
}

func TestPipeline_TransientThenSuccess(t *testing.T) {
	first := true
	p, err := pipeline.New(testConfig(t), pipeline.Options{
		Senders: map[notification.Channel]sender.Sender{
			notification.ChannelSMS: sender.Func(func(ctx context.Context, address, body string) (sender.Outcome, error) {
				if first {
					first = false
					return sender.TransientFailure, context.DeadlineExceeded
				}
				return sender.Success, nil
			}),
		},
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	p.Start()
	defer p.Close()

	bnd := bundle.New()
	n := notification.New("u-1", notification.TypeTaskReminder, "task due")
	require.NoError(t, bnd.AddNotification(n))
	require.NoError(t, p.StoreBundle(context.Background(), bnd))

	// First attempt fails transiently; the retry sweep re-queues and the
	// pending sweep tries again.
	testutil.Eventually(t, 5*time.Second, func() bool {
		stored, err := p.Store.GetNotification(context.Background(), n.ID)
		return err == nil && stored.Status == notification.StatusSent
	})

	stored, err := p.Store.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
}

func TestPipeline_ReceiptAndRead(t *testing.T) {
	cfg := testConfig(t)
	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger.Discard})
	require.NoError(t, err)
	// Not started: drive the row by hand through the store.
	defer p.Close()
	ctx := context.Background()

	bnd := bundle.New()
	n := notification.New("u-1", notification.TypeEventAlert, "alert")
	require.NoError(t, bnd.AddNotification(n))
	require.NoError(t, p.StoreBundle(ctx, bnd))
	require.NoError(t, p.Store.RecordSent(ctx, n.ID, notification.ChannelPush, 0, time.Now().UTC()))

	require.NoError(t, p.MarkRead(ctx, n.ID))
	require.NoError(t, p.ApplyReceipt(ctx, n.ID, true))

	stored, err := p.Store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, stored.Status)
	assert.True(t, stored.Read)
}
