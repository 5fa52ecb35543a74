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
	"fmt"
	"sync"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wait"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"github.com/lni/goutils/syncutil"
	"go.etcd.io/etcd/pkg/v3/idutil"
	etcdwait "go.etcd.io/etcd/pkg/v3/wait"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type RaftNode struct {
	node    raft.Node
	cfg     *RaftNodeConfig
	storage *PebbleStorage
	fsm     FSM

	transport Transporter
	monitor   Monitor
	stopper   *syncutil.Stopper
	wklog.Log

	leadID    atomic.Uint64
	term      atomic.Uint64
	raftState atomic.Uint32
	committed atomic.Uint64

	reqIDGen *idutil.Generator
	// w 等待提案被应用
	w etcdwait.Wait
	// readWait 等待ReadIndex请求的ReadState
	readWait etcdwait.Wait
	// applyWait 按应用进度唤醒
	applyWait *wait.IndexWait

	applyc chan ToApply

	// 以下字段只在apply协程里读写
	confState     raftpb.ConfState
	snapshotIndex uint64
	appliedIndex  uint64

	started  atomic.Bool
	stopOnce sync.Once
}

func NewRaftNode(cfg *RaftNodeConfig) *RaftNode {
	r := &RaftNode{
		cfg:       cfg,
		fsm:       cfg.FSM,
		storage:   NewPebbleStorage(cfg.StorageDir()),
		monitor:   cfg.Monitor(),
		stopper:   syncutil.NewStopper(),
		Log:       wklog.NewWKLog(fmt.Sprintf("raftNode[%d]", cfg.ID)),
		reqIDGen:  idutil.NewGenerator(uint16(cfg.ID), time.Now()),
		w:         etcdwait.New(),
		readWait:  etcdwait.New(),
		applyWait: wait.NewIndexWait(),
		applyc:    make(chan ToApply),
	}
	r.transport = cfg.Transport
	if r.transport == nil {
		r.transport = NewHTTPTransporter(cfg)
	}
	return r
}

func (r *RaftNode) Start() error {
	restart, err := r.storage.Open()
	if err != nil {
		return err
	}
	snap, err := r.storage.Snapshot()
	if err != nil {
		return err
	}
	if !raft.IsEmptySnap(snap) {
		if err = r.fsm.Restore(snap.Data); err != nil {
			return err
		}
		r.confState = snap.Metadata.ConfState
		r.snapshotIndex = snap.Metadata.Index
		r.appliedIndex = snap.Metadata.Index
		r.applyWait.Trigger(snap.Metadata.Index)
		r.Info("restore from snapshot", zap.Uint64("index", snap.Metadata.Index))
	}

	raftCfg := &raft.Config{
		ID:              r.cfg.ID,
		ElectionTick:    r.cfg.ElectionTicks,
		HeartbeatTick:   r.cfg.HeartbeatTicks,
		Storage:         r.storage,
		MaxSizePerMsg:   r.cfg.MaxSizePerMsg,
		MaxInflightMsgs: r.cfg.MaxInflightMsgs,
		CheckQuorum:     r.cfg.CheckQuorum,
		PreVote:         r.cfg.PreVote,
		Applied:         r.appliedIndex,
		// 提案只在领导上发起，跟随者直接返回NotLeader
		DisableProposalForwarding: true,
		ReadOnlyOption:            raft.ReadOnlySafe,
		Logger:                    newRaftLogger(wklog.NewWKLog(fmt.Sprintf("etcdRaft[%d]", r.cfg.ID))),
	}

	r.transport.SetReporter(r)
	if err = r.transport.Start(); err != nil {
		return err
	}

	if restart {
		r.Info("restart raft node")
		r.node = raft.RestartNode(raftCfg)
	} else {
		peers := make([]raft.Peer, 0, len(r.cfg.Peers))
		for _, p := range r.cfg.Peers {
			peers = append(peers, raft.Peer{ID: p.ID, Context: []byte(p.Addr)})
		}
		if len(peers) == 0 {
			peers = append(peers, raft.Peer{ID: r.cfg.ID, Context: []byte(r.cfg.Addr)})
		}
		r.Info("start new raft node", zap.Int("peers", len(peers)))
		r.node = raft.StartNode(raftCfg, peers)
	}
	r.started.Store(true)

	r.stopper.RunWorker(r.run)
	r.stopper.RunWorker(r.loopApply)
	return nil
}

func (r *RaftNode) Stop() {
	r.stopOnce.Do(func() {
		if !r.started.Load() {
			r.applyWait.Stop()
			return
		}
		r.stopper.Stop()
		r.node.Stop()
		r.applyWait.Stop()
		if err := r.transport.Stop(); err != nil {
			r.Warn("failed to stop transport", zap.Error(err))
		}
		if err := r.storage.Close(); err != nil {
			r.Warn("failed to close storage", zap.Error(err))
		}
		r.Info("raft node stopped")
	})
}

func (r *RaftNode) run() {
	tick := time.NewTicker(r.cfg.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			r.node.Tick()
		case rd := <-r.node.Ready():
			if rd.SoftState != nil {
				lead := rd.SoftState.Lead
				if lead != raft.None && r.leadID.Load() != lead {
					r.monitor.LeaderChangesInc()
					r.Info("leader changed", zap.Uint64("lead", lead), zap.String("state", rd.SoftState.RaftState.String()))
				}
				r.leadID.Store(lead)
				r.raftState.Store(uint32(rd.SoftState.RaftState))
			}
			if !raft.IsEmptyHardState(rd.HardState) {
				r.term.Store(rd.HardState.Term)
				r.committed.Store(rd.HardState.Commit)
				r.monitor.SetProposalsCommitted(rd.HardState.Commit)
			}
			for _, rs := range rd.ReadStates {
				id, ok := decodeReadCtx(rs.RequestCtx)
				if !ok {
					r.Warn("invalid read state ctx", zap.Binary("ctx", rs.RequestCtx))
					continue
				}
				r.readWait.Trigger(id, rs)
			}

			if err := r.storage.Save(rd.HardState, rd.Entries, rd.Snapshot); err != nil {
				r.Panic("failed to save raft state", zap.Error(err))
			}

			if len(rd.Messages) > 0 {
				r.transport.Send(r.processMessages(rd.Messages))
			}

			ap := ToApply{
				Entries:  rd.CommittedEntries,
				Snapshot: rd.Snapshot,
				done:     make(chan struct{}),
			}
			if len(ap.Entries) > 0 || !raft.IsEmptySnap(ap.Snapshot) {
				select {
				case r.applyc <- ap:
				case <-r.stopper.ShouldStop():
					return
				}
				// 成员变更必须应用后才能继续，否则raft看到的配置会落后
				if hasConfChange(ap.Entries) {
					select {
					case <-ap.done:
					case <-r.stopper.ShouldStop():
						return
					}
				}
			}
			r.node.Advance()
		case <-r.stopper.ShouldStop():
			return
		}
	}
}

// processMessages 过滤掉发给自己的消息
func (r *RaftNode) processMessages(ms []raftpb.Message) []raftpb.Message {
	out := ms[:0]
	for _, m := range ms {
		if m.To == r.cfg.ID || m.To == raft.None {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *RaftNode) loopApply() {
	for {
		select {
		case ap := <-r.applyc:
			r.applyAll(ap)
			close(ap.done)
		case <-r.stopper.ShouldStop():
			return
		}
	}
}

func (r *RaftNode) applyAll(ap ToApply) {
	r.applySnapshot(ap.Snapshot)
	r.applyEntries(ap.Entries)

	r.applyWait.Trigger(r.appliedIndex)
	r.monitor.SetProposalsApplied(r.appliedIndex)

	r.triggerSnapshot()
}

func (r *RaftNode) applySnapshot(snap raftpb.Snapshot) {
	if raft.IsEmptySnap(snap) {
		return
	}
	if snap.Metadata.Index <= r.appliedIndex {
		r.Warn("ignore stale snapshot", zap.Uint64("snapIndex", snap.Metadata.Index), zap.Uint64("applied", r.appliedIndex))
		return
	}
	if err := r.fsm.Restore(snap.Data); err != nil {
		r.Panic("failed to restore snapshot", zap.Error(err))
	}
	r.confState = snap.Metadata.ConfState
	r.snapshotIndex = snap.Metadata.Index
	r.appliedIndex = snap.Metadata.Index
	r.Info("applied snapshot", zap.Uint64("index", snap.Metadata.Index))
}

func (r *RaftNode) applyEntries(ents []raftpb.Entry) {
	for _, ent := range ents {
		if ent.Index <= r.appliedIndex {
			continue
		}
		switch ent.Type {
		case raftpb.EntryNormal:
			r.applyEntryNormal(ent)
		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(ent.Data); err != nil {
				r.Panic("failed to unmarshal conf change", zap.Error(err))
			}
			r.applyConfChange(cc)
		case raftpb.EntryConfChangeV2:
			var cc raftpb.ConfChangeV2
			if err := cc.Unmarshal(ent.Data); err != nil {
				r.Panic("failed to unmarshal conf change v2", zap.Error(err))
			}
			r.applyConfChange(cc)
		}
		r.appliedIndex = ent.Index
	}
}

func (r *RaftNode) applyEntryNormal(ent raftpb.Entry) {
	// 领导当选后追加的空日志
	if len(ent.Data) == 0 {
		return
	}
	id, data, err := decodeProposal(ent.Data)
	if err != nil {
		r.Warn("invalid proposal", zap.Uint64("index", ent.Index), zap.Error(err))
		return
	}
	resp, err := r.fsm.Apply(ent.Index, data)
	if err != nil {
		r.Warn("failed to apply entry", zap.Uint64("index", ent.Index), zap.Error(err))
	}
	r.w.Trigger(id, applyResult{
		outcome: &types.WriteOutcome{Index: ent.Index, Term: ent.Term, Data: resp},
		err:     err,
	})
}

func (r *RaftNode) applyConfChange(cc raftpb.ConfChangeI) {
	r.confState = *r.node.ApplyConfChange(cc)
	v2 := cc.AsV2()
	for _, c := range v2.Changes {
		if c.NodeID == r.cfg.ID {
			continue
		}
		ht, ok := r.transport.(*HTTPTransporter)
		if !ok {
			continue
		}
		switch c.Type {
		case raftpb.ConfChangeAddNode, raftpb.ConfChangeAddLearnerNode:
			if len(v2.Context) > 0 {
				ht.AddPeer(c.NodeID, string(v2.Context))
			}
		case raftpb.ConfChangeRemoveNode:
			ht.RemovePeer(c.NodeID)
		}
	}
	r.Info("applied conf change", zap.String("confState", r.confState.String()))
}

func (r *RaftNode) triggerSnapshot() {
	if r.cfg.SnapshotCount == 0 || r.appliedIndex-r.snapshotIndex < r.cfg.SnapshotCount {
		return
	}
	data, err := r.fsm.Snapshot()
	if err != nil {
		r.Error("failed to snapshot fsm", zap.Error(err))
		return
	}
	if _, err = r.storage.CreateSnapshot(r.appliedIndex, &r.confState, data, r.cfg.SnapshotCatchUpEntries); err != nil {
		r.Error("failed to create snapshot", zap.Error(err))
		return
	}
	r.snapshotIndex = r.appliedIndex
}
