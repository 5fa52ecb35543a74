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
	"path"
	"time"
)

type RaftNodeConfig struct {
	ID      uint64
	Addr    string // 本节点对外的http地址 例如 http://127.0.0.1:5001
	DataDir string
	// TickInterval raft逻辑时钟间隔
	TickInterval  time.Duration
	Peers         []*Peer // peers is the list of raft peers
	ElectionTicks int
	// HeartbeatTicks 必须小于ElectionTicks
	HeartbeatTicks int
	MaxSizePerMsg  uint64 // Assuming the RTT is around 10ms, 1MB max size is large enough.

	MaxInflightMsgs int
	PreVote         bool
	CheckQuorum     bool

	// SnapshotCount 每应用多少条日志生成一次快照，0表示不生成
	SnapshotCount uint64
	// SnapshotCatchUpEntries 压缩日志时保留的日志条数，让落后不多的副本无需快照就能追上
	SnapshotCatchUpEntries uint64

	// ReadIndexTimeout 单次ReadIndex等待领导确认的最长时间
	ReadIndexTimeout time.Duration

	// TransportPoolSize 发送raft消息的协程池大小
	TransportPoolSize int
	// TransportSendBuffer 每个节点待发送消息队列的长度，队列满时消息丢弃并报告不可达
	TransportSendBuffer int

	Transport Transporter
	FSM       FSM

	monitor Monitor
}

func NewRaftNodeConfig() *RaftNodeConfig {
	return &RaftNodeConfig{
		Addr:                   "http://127.0.0.1:5001",
		DataDir:                "raftdata",
		TickInterval:           100 * time.Millisecond,
		ElectionTicks:          10,
		HeartbeatTicks:         1,
		Peers:                  make([]*Peer, 0),
		MaxSizePerMsg:          1 * 1024 * 1024,
		MaxInflightMsgs:        4096 / 8,
		PreVote:                true,
		CheckQuorum:            true,
		SnapshotCount:          10000,
		SnapshotCatchUpEntries: 5000,
		ReadIndexTimeout:       2 * time.Second,
		TransportPoolSize:      64,
		TransportSendBuffer:    4096,
	}
}

func (r *RaftNodeConfig) Monitor() Monitor {
	if r.monitor == nil {
		r.monitor = &emptyMonitor{}
	}
	return r.monitor
}

func (r *RaftNodeConfig) SetMonitor(monitor Monitor) {
	r.monitor = monitor
}

func (r *RaftNodeConfig) StorageDir() string {
	return path.Join(r.DataDir, "raft")
}

func (r *RaftNodeConfig) ReqTimeout() time.Duration {
	// 5s for queue waiting, computation and disk IO delay
	// + 2 * election timeout for possible leader election
	return 5*time.Second + 2*time.Duration(r.ElectionTicks)*r.TickInterval
}

// PeerAddr 返回节点的地址，未知返回空字符串
func (r *RaftNodeConfig) PeerAddr(id uint64) string {
	for _, p := range r.Peers {
		if p.ID == id {
			return p.Addr
		}
	}
	return ""
}
