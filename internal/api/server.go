package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/WuKongIM/wkkv/internal/coordinator"
	"github.com/WuKongIM/wkkv/internal/monitor"
	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/WuKongIM/wkkv/pkg/wraft"
	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"
)

// KV 读写入口
type KV interface {
	LinearizableRead(ctx context.Context, key string) (string, error)
	LocalRead(key string) string
	SubmitWrite(ctx context.Context, cmd coordinator.Command) (*types.WriteOutcome, error)
}

// Node raft节点
type Node interface {
	Status() wraft.NodeStatus
	Step(ctx context.Context, m raftpb.Message) error
}

// StoreStats 状态机统计
type StoreStats interface {
	Len() int
	LastApplied() uint64
}

type Options struct {
	Addr    string
	PprofOn bool
	KV      KV
	Node    Node
	Monitor monitor.IMonitor
	Store   StoreStats
	// PeerAddr 返回节点的地址，用于NotLeader时告诉客户端领导地址
	PeerAddr func(id uint64) string
}

type Server struct {
	r    *wkhttp.WKHttp
	opts Options
	srv  *http.Server
	wklog.Log
}

// New 创建api server
func New(opts Options) *Server {
	log := wklog.NewWKLog("apiServer")
	r := wkhttp.NewWithLogger(wkhttp.LoggerWithWklog(log))

	if opts.PprofOn {
		pprof.Register(r.GetGinRoute()) // 注册pprof
	}
	if opts.Monitor == nil {
		opts.Monitor = monitor.NewMonitor(false)
	}
	if opts.PeerAddr == nil {
		opts.PeerAddr = func(id uint64) string { return "" }
	}

	s := &Server{
		r:    r,
		opts: opts,
		Log:  log,
	}
	s.r.Use(wkhttp.RequestIDMiddleware())
	s.setRoutes()
	return s
}

func (s *Server) setRoutes() {
	s.r.GET("/health", func(c *wkhttp.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.r.GET("/metrics", s.opts.Monitor.Monitor)

	// raft消息不压缩
	s.r.POST(wraft.MessagePath, wraft.MessageHandler(s.opts.Node.Step))

	api := s.r.GetGinRoute().Group("", gzip.Gzip(gzip.DefaultCompression))
	kv := newKVApi(s)
	kv.route(api)
	cluster := newClusterApi(s)
	cluster.route(api)
}

// Handler 用于测试
func (s *Server) Handler() http.Handler {
	return s.r
}

// Start 开始监听
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.r,
	}
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Panic("api server listen failed", zap.Error(err), zap.String("addr", s.opts.Addr))
		}
	}()
	s.Info("ApiServer started", zap.String("addr", s.opts.Addr))
	return nil
}

// Stop 停止服务
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.Warn("api server shutdown", zap.Error(err))
	}
	s.Debug("stopped")
}
