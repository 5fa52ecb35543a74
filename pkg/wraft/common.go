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
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"go.etcd.io/raft/v3/raftpb"
)

var (
	ErrStopped          = types.ErrStopped
	ErrInvalidProposal  = errors.New("invalid proposal data")
	ErrInvalidPeerValue = errors.New("invalid peer, format is id@addr")
)

type Peer struct {
	ID   uint64
	Addr string // 格式 http://xx.xx.xx.xx:xxxx
}

func NewPeer(id uint64, addr string) *Peer {
	return &Peer{
		ID:   id,
		Addr: addr,
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf("%d@%s", p.ID, p.Addr)
}

// ParsePeer 解析 "1@http://127.0.0.1:5001"
func ParsePeer(v string) (*Peer, error) {
	idStr, addr, ok := strings.Cut(strings.TrimSpace(v), "@")
	if !ok || addr == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeerValue, v)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeerValue, v)
	}
	return NewPeer(id, strings.TrimRight(addr, "/")), nil
}

func ParsePeers(values []string) ([]*Peer, error) {
	peers := make([]*Peer, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := ParsePeer(v)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// 提案数据格式: 8字节请求id + 命令数据
const proposalHeaderSize = 8

func encodeProposal(id uint64, data []byte) []byte {
	buf := make([]byte, proposalHeaderSize+len(data))
	binary.BigEndian.PutUint64(buf, id)
	copy(buf[proposalHeaderSize:], data)
	return buf
}

func decodeProposal(data []byte) (uint64, []byte, error) {
	if len(data) < proposalHeaderSize {
		return 0, nil, ErrInvalidProposal
	}
	return binary.BigEndian.Uint64(data), data[proposalHeaderSize:], nil
}

func encodeReadCtx(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeReadCtx(data []byte) (uint64, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// ToApply contains entries, snapshot to be applied. Once
// an toApply is consumed, the entries will be persisted to
// raft storage concurrently.
type ToApply struct {
	Entries  []raftpb.Entry
	Snapshot raftpb.Snapshot
	// done is closed after the apply loop finished this batch;
	// only awaited for batches that carry conf changes.
	done chan struct{}
}

func hasConfChange(ents []raftpb.Entry) bool {
	for _, ent := range ents {
		if ent.Type == raftpb.EntryConfChange || ent.Type == raftpb.EntryConfChangeV2 {
			return true
		}
	}
	return false
}

type applyResult struct {
	outcome *types.WriteOutcome
	err     error
}
