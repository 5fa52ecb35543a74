package server

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/WuKongIM/wkkv/internal/api"
	"github.com/WuKongIM/wkkv/internal/coordinator"
	"github.com/WuKongIM/wkkv/internal/kvstore"
	"github.com/WuKongIM/wkkv/internal/monitor"
	"github.com/WuKongIM/wkkv/internal/options"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/WuKongIM/wkkv/pkg/wraft"
	"github.com/WuKongIM/wkkv/version"
	"github.com/gin-gonic/gin"
	"github.com/judwhite/go-svc"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

type Server struct {
	opts        *options.Options         // 配置
	wklog.Log                            // 日志
	store       *kvstore.Store           // 状态机
	node        *wraft.RaftNode          // raft节点
	coordinator *coordinator.Coordinator // 读写协调
	apiServer   *api.Server              // api服务
	monitor     monitor.IMonitor         // 监控
	start       time.Time                // 服务开始时间
	started     bool
}

func New(opts *options.Options) *Server {
	gin.SetMode(opts.GinMode)

	s := &Server{
		opts:    opts,
		Log:     wklog.NewWKLog("Server"),
		store:   kvstore.New(),
		monitor: monitor.NewMonitor(opts.Monitor.On),
		start:   time.Now(),
	}

	raftCfg := opts.RaftNodeConfig()
	raftCfg.FSM = s.store
	raftCfg.SetMonitor(s.monitor)
	s.node = wraft.NewRaftNode(raftCfg)

	s.coordinator = coordinator.New(s.node, s.node, s.store, s.node,
		coordinator.WithReadTimeout(opts.ReadTimeout),
		coordinator.WithMonitor(s.monitor),
	)

	s.apiServer = api.New(api.Options{
		Addr:     opts.HTTPAddr,
		PprofOn:  opts.PprofOn,
		KV:       s.coordinator,
		Node:     s.node,
		Monitor:  s.monitor,
		Store:    s.store,
		PeerAddr: opts.PeerAddr,
	})
	return s
}

func (s *Server) Init(env svc.Environment) error {
	if env.IsWindowsService() {
		dir := filepath.Dir(os.Args[0])
		return os.Chdir(dir)
	}
	return nil
}

func (s *Server) Start() error {
	s.Info("wkkv is Starting...")
	s.Info(fmt.Sprintf("  Mode:  %s", s.opts.Mode))
	s.Info(fmt.Sprintf("  Version:  %s", version.Version))
	s.Info(fmt.Sprintf("  Git:  %s", fmt.Sprintf("%s-%s", version.CommitDate, version.Commit)))
	s.Info(fmt.Sprintf("  Go build:  %s", runtime.Version()))
	s.Info(fmt.Sprintf("  NodeId:  %d", s.opts.ID))
	s.Info(fmt.Sprintf("  DataDir:  %s", s.opts.DataDir))
	s.Info(fmt.Sprintf("  ReadTimeout:  %s", s.coordinator.ReadTimeout()))
	for _, p := range s.opts.Peers {
		s.Info(fmt.Sprintf("  Peer:  %s", p.String()))
	}

	if err := os.MkdirAll(s.opts.DataDir, 0755); err != nil {
		return err
	}

	s.monitor.Start()

	// 先启动http，其他节点的raft消息才能进来
	if err := s.apiServer.Start(); err != nil {
		return err
	}
	if err := s.node.Start(); err != nil {
		s.Error("start raft node failed", zap.Error(err))
		return err
	}
	s.started = true
	s.Info("wkkv is ready", zap.Duration("cost", time.Since(s.start)))
	return nil
}

func (s *Server) Stop() error {
	s.Info("Server is Stoping...")
	defer s.Info("Server is exited")

	g := errgroup.Group{}
	g.Go(func() error {
		s.apiServer.Stop()
		return nil
	})
	g.Go(func() error {
		s.monitor.Stop()
		return nil
	})
	err := g.Wait()

	if s.started {
		s.node.Stop()
		s.started = false
	}
	_ = wklog.Sync()
	return err
}

// Coordinator 读写协调器
func (s *Server) Coordinator() *coordinator.Coordinator {
	return s.coordinator
}

// Node raft节点
func (s *Server) Node() *wraft.RaftNode {
	return s.node
}
