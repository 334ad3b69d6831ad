package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/orrn/dsrx/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "text", "plain"} {
		t.Run(format, func(t *testing.T) {
			l, err := New(config.LoggingConfig{Level: "warn", Format: format})
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
			assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
