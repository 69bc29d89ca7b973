package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("Transfer created", map[string]interface{}{
		"transfer_id": "t-1",
		"blocked":     true,
	})
	log.Warn("Verification rejected", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Transfer created", entries[0].Message)
	assert.Equal(t, "t-1", entries[0].ContextMap()["transfer_id"])
	assert.Equal(t, true, entries[0].ContextMap()["blocked"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestNopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		l := NewNop()
		l.Info("ignored", map[string]interface{}{"k": "v"})
		l.Error("ignored", nil)
	})
}
