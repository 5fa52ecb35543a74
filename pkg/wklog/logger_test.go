package wklog

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogger(t *testing.T) {
	opts := NewOptions()
	opts.Level = zap.DebugLevel
	opts.LineNum = true
	opts.NoStdout = true
	opts.LogDir = t.TempDir()
	Configure(opts)

	Info("this is info")
	Debug("this is debug")
	Warn("this is warn", zap.Uint64("index", 10))
	Error("this is error", zap.String("key", "value"))
	_ = Sync()

	for _, name := range []string{"info.log", "warn.log", "error.log"} {
		st, err := os.Stat(path.Join(opts.LogDir, name))
		assert.NoError(t, err, name)
		assert.NotZero(t, st.Size(), name)
	}
}

func TestWKLogPrefix(t *testing.T) {
	l := NewWKLog("raftNode[1]")
	assert.Equal(t, "【raftNode[1]】leader changed", l.withPrefix("leader changed"))
}

func TestSetLevel(t *testing.T) {
	opts := NewOptions()
	opts.NoStdout = true
	opts.LogDir = ""
	Configure(opts)

	SetLevel(zapcore.WarnLevel)
	assert.Equal(t, zapcore.WarnLevel, Level())
	SetLevel(zapcore.InfoLevel)
}
