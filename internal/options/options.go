package options

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wraft"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

var G *Options

type Mode string

const (
	// DebugMode indicates gin mode is debug.
	DebugMode Mode = "debug"
	// ReleaseMode indicates gin mode is release.
	ReleaseMode Mode = "release"
	// TestMode indicates gin mode is test.
	TestMode Mode = "test"
)

var (
	ErrNodeIdRequired = errors.New("id is required")
	ErrNodeNotInPeers = errors.New("id not found in peers")
)

type Options struct {
	vp       *viper.Viper
	ID       uint64 // 节点id
	Mode     Mode
	GinMode  string
	HTTPAddr string // http监听地址，同时提供api和raft消息接收
	DataDir  string // 数据目录
	// Peers 集群所有节点（包含自己），格式 id@http://host:port，为空则单节点启动
	Peers []*wraft.Peer
	// ReadTimeout 线性一致读的超时时间
	ReadTimeout time.Duration
	PprofOn     bool

	Logger struct {
		Dir     string // 日志存储目录
		Level   zapcore.Level
		LineNum bool // 是否显示代码行数
	}

	Raft struct {
		TickInterval           time.Duration
		ElectionTick           int
		HeartbeatTick          int
		SnapshotCount          uint64
		SnapshotCatchUpEntries uint64
		MaxSizePerMsg          uint64
		MaxInflightMsgs        int
		PreVote                bool
		ReadIndexTimeout       time.Duration
		TransportPoolSize      int // 发送raft消息的协程池大小
		TransportSendBuffer    int // 每个节点待发送消息队列的长度
	}

	Monitor struct {
		On bool // 是否开启监控
	}
}

func New(op ...Option) *Options {
	opts := &Options{
		ID:          1,
		Mode:        ReleaseMode,
		GinMode:     "release",
		HTTPAddr:    "0.0.0.0:5001",
		DataDir:     "wkkvdata",
		ReadTimeout: 3 * time.Second,
	}
	opts.Logger.Dir = "logs"
	opts.Logger.Level = zapcore.InfoLevel

	opts.Raft.TickInterval = 100 * time.Millisecond
	opts.Raft.ElectionTick = 10
	opts.Raft.HeartbeatTick = 1
	opts.Raft.SnapshotCount = 10000
	opts.Raft.SnapshotCatchUpEntries = 5000
	opts.Raft.MaxSizePerMsg = 1024 * 1024
	opts.Raft.MaxInflightMsgs = 512
	opts.Raft.PreVote = true
	opts.Raft.ReadIndexTimeout = 2 * time.Second
	opts.Raft.TransportPoolSize = 64
	opts.Raft.TransportSendBuffer = 4096

	opts.Monitor.On = true

	for _, o := range op {
		o(opts)
	}
	return opts
}

func (o *Options) ConfigureWithViper(vp *viper.Viper) error {
	o.vp = vp

	o.ID = o.getUint64("id", o.ID)

	modeStr := o.getString("mode", string(o.Mode))
	if strings.TrimSpace(modeStr) == "" {
		o.Mode = DebugMode
	} else {
		o.Mode = Mode(modeStr)
	}
	o.GinMode = o.getString("ginMode", o.GinMode)
	o.HTTPAddr = o.getString("httpAddr", o.HTTPAddr)
	o.DataDir = o.getString("dataDir", o.DataDir)
	o.ReadTimeout = o.getDuration("readTimeout", o.ReadTimeout)
	o.PprofOn = o.getBool("pprofOn", o.PprofOn)

	peers, err := wraft.ParsePeers(o.getStringSlice("peers"))
	if err != nil {
		return err
	}
	if len(peers) > 0 {
		o.Peers = peers
	}

	o.Raft.TickInterval = o.getDuration("raft.tickInterval", o.Raft.TickInterval)
	o.Raft.ElectionTick = o.getInt("raft.electionTick", o.Raft.ElectionTick)
	o.Raft.HeartbeatTick = o.getInt("raft.heartbeatTick", o.Raft.HeartbeatTick)
	o.Raft.SnapshotCount = o.getUint64("raft.snapshotCount", o.Raft.SnapshotCount)
	o.Raft.SnapshotCatchUpEntries = o.getUint64("raft.snapshotCatchUpEntries", o.Raft.SnapshotCatchUpEntries)
	o.Raft.MaxSizePerMsg = o.getUint64("raft.maxSizePerMsg", o.Raft.MaxSizePerMsg)
	o.Raft.MaxInflightMsgs = o.getInt("raft.maxInflightMsgs", o.Raft.MaxInflightMsgs)
	o.Raft.PreVote = o.getBool("raft.preVote", o.Raft.PreVote)
	o.Raft.ReadIndexTimeout = o.getDuration("raft.readIndexTimeout", o.Raft.ReadIndexTimeout)
	o.Raft.TransportPoolSize = o.getInt("raft.transportPoolSize", o.Raft.TransportPoolSize)
	o.Raft.TransportSendBuffer = o.getInt("raft.transportSendBuffer", o.Raft.TransportSendBuffer)

	o.Monitor.On = o.getBool("monitor.on", o.Monitor.On)

	o.configureLog(vp)

	return o.check()
}

func (o *Options) configureLog(vp *viper.Viper) {
	logLevel := vp.GetInt("logger.level")
	// level
	if logLevel == 0 { // 没有设置
		if o.Mode == DebugMode {
			logLevel = int(zapcore.DebugLevel)
		} else {
			logLevel = int(zapcore.InfoLevel)
		}
	} else {
		logLevel = logLevel - 2
	}
	o.Logger.Level = zapcore.Level(logLevel)
	o.Logger.Dir = o.getString("logger.dir", o.Logger.Dir)
	if !filepath.IsAbs(strings.TrimSpace(o.Logger.Dir)) {
		o.Logger.Dir = filepath.Join(o.DataDir, o.Logger.Dir)
	}
	o.Logger.LineNum = o.getBool("logger.lineNum", o.Logger.LineNum)
}

func (o *Options) check() error {
	if o.ID == 0 {
		return ErrNodeIdRequired
	}
	if len(o.Peers) > 0 && o.PeerAddr(o.ID) == "" {
		return fmt.Errorf("%w: id=%d", ErrNodeNotInPeers, o.ID)
	}
	return nil
}

// PeerAddr 节点的http地址，未配置返回空
func (o *Options) PeerAddr(id uint64) string {
	for _, p := range o.Peers {
		if p.ID == id {
			return p.Addr
		}
	}
	return ""
}

// SelfAddr 本节点对其他节点公布的地址
func (o *Options) SelfAddr() string {
	if addr := o.PeerAddr(o.ID); addr != "" {
		return addr
	}
	host, port, ok := strings.Cut(o.HTTPAddr, ":")
	if !ok {
		return "http://" + o.HTTPAddr
	}
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}

// RaftNodeConfig 根据配置生成raft节点的配置
func (o *Options) RaftNodeConfig() *wraft.RaftNodeConfig {
	cfg := wraft.NewRaftNodeConfig()
	cfg.ID = o.ID
	cfg.Addr = o.SelfAddr()
	cfg.DataDir = o.DataDir
	cfg.Peers = o.Peers
	cfg.TickInterval = o.Raft.TickInterval
	cfg.ElectionTicks = o.Raft.ElectionTick
	cfg.HeartbeatTicks = o.Raft.HeartbeatTick
	cfg.SnapshotCount = o.Raft.SnapshotCount
	cfg.SnapshotCatchUpEntries = o.Raft.SnapshotCatchUpEntries
	cfg.MaxSizePerMsg = o.Raft.MaxSizePerMsg
	cfg.MaxInflightMsgs = o.Raft.MaxInflightMsgs
	cfg.PreVote = o.Raft.PreVote
	cfg.ReadIndexTimeout = o.Raft.ReadIndexTimeout
	cfg.TransportPoolSize = o.Raft.TransportPoolSize
	cfg.TransportSendBuffer = o.Raft.TransportSendBuffer
	return cfg
}

func (o *Options) getString(key string, defaultValue string) string {
	v := o.vp.GetString(key)
	if v == "" {
		return defaultValue
	}
	return v
}

func (o *Options) getStringSlice(key string) []string {
	return o.vp.GetStringSlice(key)
}

func (o *Options) getInt(key string, defaultValue int) int {
	v := o.vp.GetInt(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getUint64(key string, defaultValue uint64) uint64 {
	v := o.vp.GetUint64(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getBool(key string, defaultValue bool) bool {
	objV := o.vp.Get(key)
	if objV == nil {
		return defaultValue
	}
	return cast.ToBool(objV)
}

func (o *Options) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := o.vp.GetDuration(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

type Option func(opts *Options)

func WithID(id uint64) Option {
	return func(opts *Options) {
		opts.ID = id
	}
}

func WithHTTPAddr(addr string) Option {
	return func(opts *Options) {
		opts.HTTPAddr = addr
	}
}

func WithDataDir(dir string) Option {
	return func(opts *Options) {
		opts.DataDir = dir
	}
}

func WithPeers(peers []*wraft.Peer) Option {
	return func(opts *Options) {
		opts.Peers = peers
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.ReadTimeout = timeout
	}
}

func WithRaftTickInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Raft.TickInterval = interval
	}
}

func WithMonitorOn(on bool) Option {
	return func(opts *Options) {
		opts.Monitor.On = on
	}
}
