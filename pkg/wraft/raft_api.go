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
	"time"

	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"
)

// Propose 提交一条命令并等待它被应用
func (r *RaftNode) Propose(ctx context.Context, data []byte) (*types.WriteOutcome, error) {
	if r.stopped() {
		return nil, ErrStopped
	}
	if !r.IsLeader() {
		return nil, types.NewNotLeaderError(r.LeaderId())
	}
	id := r.reqIDGen.Next()
	ch := r.w.Register(id)

	cctx, cancel := context.WithTimeout(ctx, r.cfg.ReqTimeout())
	defer cancel()

	r.monitor.ProposalsPendingInc()
	defer r.monitor.ProposalsPendingDec()

	if err := r.node.Propose(cctx, encodeProposal(id, data)); err != nil {
		r.w.Trigger(id, nil) // GC wait
		r.monitor.ProposalsFailedInc()
		if err == raft.ErrProposalDropped {
			return nil, types.NewNotLeaderError(r.LeaderId())
		}
		return nil, r.parseProposeCtxErr(cctx.Err(), err)
	}

	select {
	case x := <-ch:
		res, ok := x.(applyResult)
		if !ok {
			return nil, ErrStopped
		}
		if res.err != nil {
			r.monitor.ProposalsFailedInc()
			return res.outcome, res.err
		}
		return res.outcome, nil
	case <-cctx.Done():
		r.monitor.ProposalsFailedInc()
		r.w.Trigger(id, nil) // GC wait
		return nil, r.parseProposeCtxErr(cctx.Err(), nil)
	case <-r.stopper.ShouldStop():
		return nil, ErrStopped
	}
}

func (r *RaftNode) parseProposeCtxErr(ctxErr error, err error) error {
	if ctxErr == nil {
		if err == raft.ErrStopped {
			return ErrStopped
		}
		return err
	}
	switch ctxErr {
	case context.Canceled:
		return ctxErr
	default:
		return types.ErrTimeout
	}
}

// CheckLeader 通过ReadIndex向多数派确认本节点仍是领导，确认成功返回领导确认时的提交索引
func (r *RaftNode) CheckLeader(ctx context.Context) types.LeadershipStatus {
	if r.stopped() {
		return types.UnknownLeader(ErrStopped)
	}
	lead := r.LeaderId()
	if lead != r.cfg.ID {
		return types.NotLeader(lead)
	}

	start := time.Now()
	rs, err := r.readIndex(ctx)
	r.monitor.ReadIndexObserve(time.Since(start), err == nil)
	if err != nil {
		// 等待期间领导发生了变化
		if lead = r.LeaderId(); lead != r.cfg.ID {
			return types.NotLeader(lead)
		}
		return types.UnknownLeader(err)
	}
	if lead = r.LeaderId(); lead != r.cfg.ID {
		return types.NotLeader(lead)
	}
	return types.Leader(rs.Index)
}

func (r *RaftNode) readIndex(ctx context.Context) (raft.ReadState, error) {
	id := r.reqIDGen.Next()
	ch := r.readWait.Register(id)

	cctx, cancel := context.WithTimeout(ctx, r.cfg.ReadIndexTimeout)
	defer cancel()

	if err := r.node.ReadIndex(cctx, encodeReadCtx(id)); err != nil {
		r.readWait.Trigger(id, nil)
		if err == raft.ErrStopped {
			return raft.ReadState{}, ErrStopped
		}
		return raft.ReadState{}, err
	}
	select {
	case x := <-ch:
		rs, ok := x.(raft.ReadState)
		if !ok {
			return raft.ReadState{}, ErrStopped
		}
		return rs, nil
	case <-cctx.Done():
		r.readWait.Trigger(id, nil)
		r.Debug("read index timeout", zap.Uint64("id", id))
		return raft.ReadState{}, types.ErrTimeout
	case <-r.stopper.ShouldStop():
		return raft.ReadState{}, ErrStopped
	}
}

// AppliedIndex 已应用到状态机的最大日志索引
func (r *RaftNode) AppliedIndex() uint64 {
	return r.applyWait.Index()
}

// WaitUntilApplied 阻塞直到状态机应用到index，或者ctx结束，或者节点停止
func (r *RaftNode) WaitUntilApplied(ctx context.Context, index uint64) types.ApplyWaitResult {
	if applied := r.AppliedIndex(); applied >= index {
		return types.Reached(applied)
	}
	select {
	case <-r.applyWait.Wait(index):
		return types.Reached(r.AppliedIndex())
	case <-ctx.Done():
		return types.TimedOut()
	case <-r.applyWait.StopC():
		return types.Fatal(ErrStopped)
	}
}

func (r *RaftNode) Step(ctx context.Context, m raftpb.Message) error {
	if r.stopped() {
		return ErrStopped
	}
	return r.node.Step(ctx, m)
}

func (r *RaftNode) ReportUnreachable(id uint64) {
	if r.stopped() {
		return
	}
	r.node.ReportUnreachable(id)
}

func (r *RaftNode) ReportSnapshot(id uint64, status raft.SnapshotStatus) {
	if r.stopped() {
		return
	}
	r.node.ReportSnapshot(id, status)
}

func (r *RaftNode) LeaderId() uint64 {
	return r.leadID.Load()
}

func (r *RaftNode) IsLeader() bool {
	return r.leadID.Load() == r.cfg.ID && raft.StateType(r.raftState.Load()) == raft.StateLeader
}

func (r *RaftNode) Term() uint64 {
	return r.term.Load()
}

func (r *RaftNode) CommittedIndex() uint64 {
	return r.committed.Load()
}

func (r *RaftNode) ID() uint64 {
	return r.cfg.ID
}

func (r *RaftNode) Config() *RaftNodeConfig {
	return r.cfg
}

type NodeStatus struct {
	ID        uint64 `json:"id"`
	Leader    uint64 `json:"leader"`
	Term      uint64 `json:"term"`
	Role      string `json:"role"`
	Committed uint64 `json:"committed"`
	Applied   uint64 `json:"applied"`
}

func (r *RaftNode) Status() NodeStatus {
	return NodeStatus{
		ID:        r.cfg.ID,
		Leader:    r.LeaderId(),
		Term:      r.Term(),
		Role:      raft.StateType(r.raftState.Load()).String(),
		Committed: r.CommittedIndex(),
		Applied:   r.AppliedIndex(),
	}
}

func (r *RaftNode) stopped() bool {
	if !r.started.Load() {
		return true
	}
	select {
	case <-r.stopper.ShouldStop():
		return true
	default:
		return false
	}
}
