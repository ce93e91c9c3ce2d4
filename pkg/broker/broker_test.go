package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-dispatch/internal/testutil"
	"github.com/grassrootza/grassroot-dispatch/pkg/actionlog"
	"github.com/grassrootza/grassroot-dispatch/pkg/broker"
	"github.com/grassrootza/grassroot-dispatch/pkg/bundle"
	"github.com/grassrootza/grassroot-dispatch/pkg/dispatcher"
	"github.com/grassrootza/grassroot-dispatch/pkg/errors"
	"github.com/grassrootza/grassroot-dispatch/pkg/idempotency"
	"github.com/grassrootza/grassroot-dispatch/pkg/logger"
	"github.com/grassrootza/grassroot-dispatch/pkg/notification"
	"github.com/grassrootza/grassroot-dispatch/pkg/observability"
	"github.com/grassrootza/grassroot-dispatch/pkg/routing"
	"github.com/grassrootza/grassroot-dispatch/pkg/sender"
	"github.com/grassrootza/grassroot-dispatch/pkg/storage"
)

func newBundle(t *testing.T) (*bundle.Bundle, *actionlog.Entry, *notification.Notification) {
	t.Helper()
	bnd := bundle.New()
	entry := actionlog.New(actionlog.EntityTask, "t-1", "u-1", "task assigned")
	n := notification.New("u-2", notification.TypeTaskReminder, "you were assigned a task")
	require.NoError(t, bnd.AddLog(entry))
	require.NoError(t, bnd.AddNotification(n))
	return bnd, entry, n
}

func TestStoreBundle_Synchronous(t *testing.T) {
	s := testutil.NewTestStore(t)
	tel, err := observability.New(observability.DefaultConfig())
	require.NoError(t, err)
	b := broker.New(s, nil, tel, logger.Discard, broker.DefaultConfig())

	bnd, entry, n := newBundle(t)
	require.NoError(t, b.StoreBundle(context.Background(), bnd))

	_, err = s.GetActionLog(context.Background(), entry.ID)
	require.NoError(t, err)
	stored, err := s.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, stored.Status)
}

func TestStoreBundle_ConsumedBundleRejected(t *testing.T) {
	s := testutil.NewTestStore(t)
	b := broker.New(s, nil, nil, logger.Discard, broker.DefaultConfig())

	bnd, _, _ := newBundle(t)
	require.NoError(t, b.StoreBundle(context.Background(), bnd))

	err := b.StoreBundle(context.Background(), bnd)
	require.Error(t, err)
	assert.Equal(t, errors.ErrBundleConsumed, errors.CodeOf(err))
}

func TestStoreBundle_NilBundleRejected(t *testing.T) {
	s := testutil.NewTestStore(t)
	b := broker.New(s, nil, nil, logger.Discard, broker.DefaultConfig())

	err := b.StoreBundle(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNilEntry, errors.CodeOf(err))
}

func TestAsyncStoreBundle_Completes(t *testing.T) {
	s := testutil.NewTestStore(t)
	b := broker.New(s, nil, nil, logger.Discard, broker.DefaultConfig())
	b.Start()
	defer b.Close()

	bnd, _, n := newBundle(t)
	require.NoError(t, b.AsyncStoreBundle(context.Background(), bnd))

	testutil.Eventually(t, 2*time.Second, func() bool {
		_, err := s.GetNotification(context.Background(), n.ID)
		return err == nil
	})
}

func TestAsyncStoreBundle_FullQueueRejectsAndDeadLetters(t *testing.T) {
	s := testutil.NewTestStore(t)
	cfg := broker.DefaultConfig()
	cfg.QueueCapacity = 1
	// Workers never started, so the single slot fills and stays full.
	b := broker.New(s, nil, nil, logger.Discard, cfg)

	first, _, _ := newBundle(t)
	require.NoError(t, b.AsyncStoreBundle(context.Background(), first))

	second, _, _ := newBundle(t)
	err := b.AsyncStoreBundle(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, errors.ErrQueueFull, errors.CodeOf(err))

	rows, err := s.ListDeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "a rejected bundle must be preserved")
	assert.Contains(t, rows[0].Reason, "queue full")
}

// failingStore fails SaveBundle while keeping dead letters writable.
type failingStore struct {
	storage.Store
	fails int
	calls int
}

func (f *failingStore) SaveBundle(ctx context.Context, logs []*actionlog.Entry, notifs []*notification.Notification) error {
	f.calls++
	if f.calls <= f.fails {
		return errors.New(errors.ErrPersistence, "disk on fire")
	}
	return f.Store.SaveBundle(ctx, logs, notifs)
}

func TestAsyncStoreBundle_RetriesThenDeadLetters(t *testing.T) {
	inner := testutil.NewTestStore(t)
	fs := &failingStore{Store: inner, fails: 100}

	cfg := broker.DefaultConfig()
	cfg.StoreRetries = 2
	cfg.StoreRetryDelay = 5 * time.Millisecond
	b := broker.New(fs, nil, nil, logger.Discard, cfg)
	b.Start()
	defer b.Close()

	bnd, _, _ := newBundle(t)
	require.NoError(t, b.AsyncStoreBundle(context.Background(), bnd))

	testutil.Eventually(t, 2*time.Second, func() bool {
		rows, err := inner.ListDeadLetters(context.Background(), 10)
		return err == nil && len(rows) == 1
	})
	assert.Equal(t, 3, fs.calls, "initial attempt plus two retries")
}

func TestAsyncStoreBundle_RetrySucceeds(t *testing.T) {
	inner := testutil.NewTestStore(t)
	fs := &failingStore{Store: inner, fails: 1}

	cfg := broker.DefaultConfig()
	cfg.StoreRetryDelay = 5 * time.Millisecond
	b := broker.New(fs, nil, nil, logger.Discard, cfg)
	b.Start()
	defer b.Close()

	bnd, _, n := newBundle(t)
	require.NoError(t, b.AsyncStoreBundle(context.Background(), bnd))

	testutil.Eventually(t, 2*time.Second, func() bool {
		_, err := inner.GetNotification(context.Background(), n.ID)
		return err == nil
	})
	rows, err := inner.ListDeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStoreBundle_PrioritySendsImmediately(t *testing.T) {
	s := testutil.NewTestStore(t)

	sent := make(chan string, 2)
	reg := sender.NewRegistry(logger.Discard)
	reg.Register(notification.ChannelSMS, sender.Func(func(ctx context.Context, address, body string) (sender.Outcome, error) {
		sent <- address
		return sender.Success, nil
	}))
	router := routing.NewRouter(routing.StaticPreferences{}, logger.Discard)
	disp := dispatcher.New(s, router, reg, idempotency.NewMemoryGuard(), nil,
		nil, logger.Discard, dispatcher.DefaultConfig())

	b := broker.New(s, disp, nil, logger.Discard, broker.DefaultConfig())

	bnd := bundle.New()
	urgent := notification.New("u-1", notification.TypeEventAlert, "meeting moved").AsPriority()
	routine := notification.New("u-2", notification.TypeEventAlert, "meeting moved")
	require.NoError(t, bnd.AddNotification(urgent))
	require.NoError(t, bnd.AddNotification(routine))

	require.NoError(t, b.StoreBundle(context.Background(), bnd))

	require.Len(t, sent, 1, "only the priority notification skips the grace period")
	assert.Equal(t, "u-1", <-sent)

	stored, err := s.GetNotification(context.Background(), urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, stored.Status)

	stored, err = s.GetNotification(context.Background(), routine.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, stored.Status)
}
