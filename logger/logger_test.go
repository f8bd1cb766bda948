package logger

import (
	"path/filepath"
	"testing"

	"github.com/skyportal/source-query/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "stdout json", cfg: config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{name: "console debug", cfg: config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout", EnableCaller: true}},
		{name: "rotated file", cfg: config.LoggingConfig{
			Level: "warn", Format: "json", Output: "file",
			FilePath: filepath.Join(t.TempDir(), "app.log"), MaxSize: 1, MaxBackups: 1, MaxAge: 1,
		}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "chatty"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.With("component", "test").Info("hello", "query_id", "abc")
		})
	}
}

func TestRedact(t *testing.T) {
	out := redact([]any{"access_token", "abc", "query_id", "q1", "dangling"})
	assert.Equal(t, []any{"access_token", "[REDACTED]", "query_id", "q1", "dangling"}, out)
}

func TestStdLogWritesThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "gorm").StdLog().Printf("SLOW SQL >= %s", "200ms")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "SLOW SQL >= 200ms", entries[0].Message)
	assert.Equal(t, "gorm", entries[0].ContextMap()["component"])
}
