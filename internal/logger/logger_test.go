package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sitewarden/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New(config.LoggerConfig{Level: "debug", Format: format})
		require.NoError(t, err)
		require.NotNil(t, l)
	}

	_, err := New(config.LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogError_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.WithComponent("scanner").WithScanID("scan-1").LogError(context.Background(), errors.New("boom"), "scan.finalize", "website_id", "w1")
	l.LogError(context.Background(), nil, "ignored")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "scan.finalize", fields["operation"])
	assert.Equal(t, "scanner", fields["component"])
	assert.Equal(t, "scan-1", fields["scan_id"])
	assert.Equal(t, "w1", fields["website_id"])
}

func TestLogDuration(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.WithProbe("ssl").LogDuration(context.Background(), "probe.run", time.Now().Add(-time.Second))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ssl", fields["probe"])
	assert.GreaterOrEqual(t, fields["duration_ms"], int64(1000))
}
