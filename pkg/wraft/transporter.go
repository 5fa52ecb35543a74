// Copyright (c) 2022 Shanghai Xinbida Network Technology Co., Ltd. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wraft

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/panjf2000/ants/v2"
	"github.com/sendgrid/rest"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MessagePath 接收raft消息的http路径
const MessagePath = "/raft/message"

type Transporter interface {
	Start() error
	Stop() error

	Send(m []raftpb.Message)
	// SetReporter 设置发送失败时的回调（通常为RaftNode）
	SetReporter(r Reporter)
}

// Reporter 把发送结果反馈给raft
type Reporter interface {
	ReportUnreachable(id uint64)
	ReportSnapshot(id uint64, status raft.SnapshotStatus)
}

// HTTPTransporter 通过http把raft消息投递给其他节点
// 每个节点一个常驻的发送协程（运行在协程池里），同一节点的消息严格按Send的顺序发出
type HTTPTransporter struct {
	id        uint64
	addrs     map[uint64]string
	peers     map[uint64]*peerSender
	peersLock sync.RWMutex
	client    *rest.Client
	pool      *ants.Pool
	poolSize  int
	sendBuf   int
	reporter  Reporter
	monitor   Monitor
	stopped   atomic.Bool
	wklog.Log
}

func NewHTTPTransporter(cfg *RaftNodeConfig) *HTTPTransporter {
	t := &HTTPTransporter{
		id:       cfg.ID,
		addrs:    make(map[uint64]string),
		peers:    make(map[uint64]*peerSender),
		poolSize: cfg.TransportPoolSize,
		sendBuf:  cfg.TransportSendBuffer,
		monitor:  cfg.Monitor(),
		client: &rest.Client{
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		},
		Log: wklog.NewWKLog(fmt.Sprintf("httpTransporter[%d]", cfg.ID)),
	}
	if t.sendBuf <= 0 {
		t.sendBuf = 4096
	}
	for _, p := range cfg.Peers {
		if p.ID != cfg.ID {
			t.addrs[p.ID] = p.Addr
		}
	}
	return t
}

func (t *HTTPTransporter) Start() error {
	size := t.poolSize
	if size <= 0 {
		size = 64
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return err
	}
	t.pool = pool
	t.stopped.Store(false)

	t.peersLock.Lock()
	defer t.peersLock.Unlock()
	for id, addr := range t.addrs {
		if err = t.startPeer(id, addr); err != nil {
			return err
		}
	}
	return nil
}

func (t *HTTPTransporter) Stop() error {
	t.stopped.Store(true)
	t.peersLock.Lock()
	for id, p := range t.peers {
		p.stop()
		delete(t.peers, id)
	}
	t.peersLock.Unlock()
	if t.pool != nil {
		t.pool.Release()
	}
	return nil
}

func (t *HTTPTransporter) SetReporter(r Reporter) {
	t.reporter = r
}

func (t *HTTPTransporter) AddPeer(id uint64, addr string) {
	t.peersLock.Lock()
	defer t.peersLock.Unlock()
	if old, ok := t.addrs[id]; ok && old == addr && t.peers[id] != nil {
		return
	}
	t.addrs[id] = addr
	if p := t.peers[id]; p != nil {
		p.stop()
		delete(t.peers, id)
	}
	if t.pool == nil || t.stopped.Load() {
		return
	}
	if err := t.startPeer(id, addr); err != nil {
		t.Error("start peer sender failed", zap.Error(err), zap.Uint64("peer", id))
	}
}

func (t *HTTPTransporter) RemovePeer(id uint64) {
	t.peersLock.Lock()
	defer t.peersLock.Unlock()
	delete(t.addrs, id)
	if p := t.peers[id]; p != nil {
		p.stop()
		delete(t.peers, id)
	}
}

// startPeer 调用方需持有peersLock
func (t *HTTPTransporter) startPeer(id uint64, addr string) error {
	p := newPeerSender(t, id, addr, t.sendBuf)
	// 发送协程常驻占用一个worker，容量不够时扩容
	if t.pool.Free() <= 0 {
		t.pool.Tune(t.pool.Cap() + 1)
	}
	if err := t.pool.Submit(p.loop); err != nil {
		return err
	}
	t.peers[id] = p
	return nil
}

func (t *HTTPTransporter) peer(id uint64) *peerSender {
	t.peersLock.RLock()
	defer t.peersLock.RUnlock()
	return t.peers[id]
}

func (t *HTTPTransporter) Send(ms []raftpb.Message) {
	if t.stopped.Load() {
		t.Warn("transporter stopped")
		return
	}
	for _, m := range ms {
		if m.To == 0 {
			// ignore intentionally dropped message
			continue
		}
		p := t.peer(m.To)
		if p == nil {
			t.Warn("peer not found", zap.Uint64("to", m.To))
			t.reportFailure(m.To, m)
			continue
		}
		if !p.send(m) {
			t.Warn("peer send queue is full, drop message", zap.Uint64("to", m.To), zap.String("type", m.Type.String()))
			t.reportFailure(m.To, m)
		}
	}
}

// peerSender 按顺序把消息发送给某一个节点
type peerSender struct {
	t     *HTTPTransporter
	id    uint64
	addr  string
	sendc chan raftpb.Message
	stopc chan struct{}
	once  sync.Once
}

func newPeerSender(t *HTTPTransporter, id uint64, addr string, bufSize int) *peerSender {
	return &peerSender{
		t:     t,
		id:    id,
		addr:  addr,
		sendc: make(chan raftpb.Message, bufSize),
		stopc: make(chan struct{}),
	}
}

func (p *peerSender) send(m raftpb.Message) bool {
	select {
	case <-p.stopc:
		return false
	default:
	}
	select {
	case p.sendc <- m:
		return true
	default:
		return false
	}
}

func (p *peerSender) stop() {
	p.once.Do(func() {
		close(p.stopc)
	})
}

func (p *peerSender) loop() {
	for {
		select {
		case m := <-p.sendc:
			if err := p.t.sendMessage(p.addr, m); err != nil {
				p.t.Debug("send message failed", zap.Error(err), zap.Uint64("to", p.id), zap.String("type", m.Type.String()))
				p.t.reportFailure(p.id, m)
				continue
			}
			if m.Type == raftpb.MsgSnap && p.t.reporter != nil {
				p.t.reporter.ReportSnapshot(p.id, raft.SnapshotFinish)
			}
		case <-p.stopc:
			return
		}
	}
}

func (t *HTTPTransporter) sendMessage(addr string, m raftpb.Message) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	resp, err := t.client.Send(rest.Request{
		Method:  rest.Post,
		BaseURL: addr + MessagePath,
		Headers: map[string]string{
			"Content-Type": "application/x-protobuf",
		},
		Body: data,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("peer responded with status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (t *HTTPTransporter) reportFailure(to uint64, m raftpb.Message) {
	t.monitor.SendFailuresInc()
	if t.reporter == nil {
		return
	}
	t.reporter.ReportUnreachable(to)
	if m.Type == raftpb.MsgSnap {
		t.reporter.ReportSnapshot(to, raft.SnapshotFailure)
	}
}

// MessageHandler 返回接收raft消息的http处理函数，step通常为 RaftNode.Step
func MessageHandler(step func(ctx context.Context, m raftpb.Message) error) wkhttp.HandlerFunc {
	return func(c *wkhttp.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.ResponseError(err)
			return
		}
		var m raftpb.Message
		if err = m.Unmarshal(data); err != nil {
			c.ResponseError(err)
			return
		}
		if err = step(c.Request.Context(), m); err != nil {
			c.ResponseErrorWithStatus(http.StatusServiceUnavailable, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
