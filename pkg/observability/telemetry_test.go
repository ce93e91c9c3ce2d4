package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNew_DisabledIsNoOp(t *testing.T) {
	tel, err := New(DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	// Every handle must be usable; none may reach for a collector.
	spanCtx, span := tel.StartSpan(ctx, "bundle.persist", attribute.Int("logs", 1))
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	span.End()

	tel.RecordBundlePersisted(ctx, true, 5*time.Millisecond)
	tel.RecordSend(ctx, "sms", "success")
	tel.RecordSweepRun(ctx, "pending", 3)
	tel.RecordSweepSkip(ctx, "pending")
	tel.RecordDeadLetter(ctx, "queue full")

	assert.NoError(t, tel.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "grassroot-dispatch", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}
