package options

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testConfig = `
id: 2
httpAddr: "0.0.0.0:6002"
dataDir: "/tmp/wkkv2"
readTimeout: 5s
peers:
  - "1@http://127.0.0.1:6001"
  - "2@http://127.0.0.1:6002"
  - "3@http://127.0.0.1:6003"
logger:
  level: 1
  lineNum: true
raft:
  tickInterval: 50ms
  electionTick: 20
  snapshotCount: 100
  preVote: false
monitor:
  on: false
`

func newViper(t *testing.T, cfg string) *viper.Viper {
	vp := viper.New()
	vp.SetConfigType("yaml")
	require.NoError(t, vp.ReadConfig(strings.NewReader(cfg)))
	return vp
}

func TestConfigureWithViper(t *testing.T) {
	opts := New()
	require.NoError(t, opts.ConfigureWithViper(newViper(t, testConfig)))

	assert.Equal(t, uint64(2), opts.ID)
	assert.Equal(t, "0.0.0.0:6002", opts.HTTPAddr)
	assert.Equal(t, 5*time.Second, opts.ReadTimeout)
	require.Len(t, opts.Peers, 3)
	assert.Equal(t, "http://127.0.0.1:6002", opts.SelfAddr())
	assert.Equal(t, "http://127.0.0.1:6003", opts.PeerAddr(3))

	assert.Equal(t, 50*time.Millisecond, opts.Raft.TickInterval)
	assert.Equal(t, 20, opts.Raft.ElectionTick)
	assert.Equal(t, 1, opts.Raft.HeartbeatTick)
	assert.Equal(t, uint64(100), opts.Raft.SnapshotCount)
	assert.False(t, opts.Raft.PreVote)
	assert.False(t, opts.Monitor.On)

	assert.Equal(t, zapcore.DebugLevel, opts.Logger.Level)
	assert.True(t, opts.Logger.LineNum)
	assert.Equal(t, "/tmp/wkkv2/logs", opts.Logger.Dir)

	cfg := opts.RaftNodeConfig()
	assert.Equal(t, uint64(2), cfg.ID)
	assert.Equal(t, "http://127.0.0.1:6002", cfg.Addr)
	assert.Equal(t, 20, cfg.ElectionTicks)
	assert.Equal(t, "/tmp/wkkv2/raft", cfg.StorageDir())
}

func TestConfigureWithViper_Defaults(t *testing.T) {
	opts := New()
	require.NoError(t, opts.ConfigureWithViper(viper.New()))

	assert.Equal(t, uint64(1), opts.ID)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	assert.Empty(t, opts.Peers)
	assert.True(t, opts.Raft.PreVote)
	assert.True(t, opts.Monitor.On)
	assert.Equal(t, zapcore.InfoLevel, opts.Logger.Level)
	assert.Equal(t, "http://127.0.0.1:5001", opts.SelfAddr())
}

func TestConfigureWithViper_Invalid(t *testing.T) {
	opts := New()
	err := opts.ConfigureWithViper(newViper(t, `peers: ["bad"]`))
	assert.Error(t, err)

	opts = New()
	err = opts.ConfigureWithViper(newViper(t, "id: 9\npeers: [\"1@http://127.0.0.1:6001\"]"))
	assert.ErrorIs(t, err, ErrNodeNotInPeers)
}

func TestOptions(t *testing.T) {
	opts := New(WithID(3), WithHTTPAddr("127.0.0.1:7000"), WithReadTimeout(time.Second), WithMonitorOn(false))
	assert.Equal(t, uint64(3), opts.ID)
	assert.Equal(t, "http://127.0.0.1:7000", opts.SelfAddr())
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.False(t, opts.Monitor.On)
}
