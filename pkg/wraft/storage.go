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
	"math"

	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/cockroachdb/pebble"
	pkgerrors "github.com/pkg/errors"
	"go.etcd.io/raft/v3"
	pb "go.etcd.io/raft/v3/raftpb"
	"go.uber.org/zap"
)

const logKeySize = 10

var (
	logKeyHeader = [2]byte{0x1, 0x1}
	hardStateKey = []byte{0x2, 0x2}
	snapshotKey  = []byte{0x3, 0x3}
)

func newLogKey(index uint64) []byte {
	key := make([]byte, logKeySize)
	key[0] = logKeyHeader[0]
	key[1] = logKeyHeader[1]
	binary.BigEndian.PutUint64(key[2:], index)
	return key
}

// PebbleStorage 将raft的hardState、日志和快照持久化到pebble，
// 读取由内嵌的 raft.MemoryStorage 提供
type PebbleStorage struct {
	*raft.MemoryStorage
	db   *pebble.DB
	path string
	wo   *pebble.WriteOptions
	wklog.Log
}

func NewPebbleStorage(path string) *PebbleStorage {
	return &PebbleStorage{
		MemoryStorage: raft.NewMemoryStorage(),
		path:          path,
		Log:           wklog.NewWKLog("pebbleStorage"),
		wo: &pebble.WriteOptions{
			Sync: true,
		},
	}
}

// Open 打开数据库并把已持久化的状态加载到内存，返回是否为重启（存在旧状态）
func (p *PebbleStorage) Open() (bool, error) {
	var err error
	p.db, err = pebble.Open(p.path, &pebble.Options{})
	if err != nil {
		return false, pkgerrors.Wrap(err, "open pebble")
	}

	snap, err := p.loadSnapshot()
	if err != nil {
		return false, err
	}
	if !raft.IsEmptySnap(snap) {
		if err = p.MemoryStorage.ApplySnapshot(snap); err != nil {
			return false, pkgerrors.Wrap(err, "apply persisted snapshot")
		}
	}

	hs, err := p.loadHardState()
	if err != nil {
		return false, err
	}
	if !raft.IsEmptyHardState(hs) {
		if err = p.MemoryStorage.SetHardState(hs); err != nil {
			return false, pkgerrors.Wrap(err, "set persisted hard state")
		}
	}

	ents, err := p.loadEntries(snap.Metadata.Index + 1)
	if err != nil {
		return false, err
	}
	if len(ents) > 0 {
		if err = p.MemoryStorage.Append(ents); err != nil {
			return false, pkgerrors.Wrap(err, "append persisted entries")
		}
	}
	p.Debug("storage opened", zap.Uint64("snapshotIndex", snap.Metadata.Index), zap.Uint64("commit", hs.Commit), zap.Int("entries", len(ents)))
	return !raft.IsEmptyHardState(hs) || !raft.IsEmptySnap(snap), nil
}

func (p *PebbleStorage) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	if err != nil {
		p.Warn("close pebble db err", zap.Error(err))
	}
	p.db = nil
	return err
}

// Save 在一个同步batch里持久化快照、hardState和日志，然后更新内存
func (p *PebbleStorage) Save(hs pb.HardState, ents []pb.Entry, snap pb.Snapshot) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	if !raft.IsEmptySnap(snap) {
		data, err := snap.Marshal()
		if err != nil {
			return err
		}
		if err = batch.Set(snapshotKey, data, p.wo); err != nil {
			return err
		}
		if err = batch.DeleteRange(newLogKey(0), newLogKey(snap.Metadata.Index+1), p.wo); err != nil {
			return err
		}
	}
	if !raft.IsEmptyHardState(hs) {
		data, err := hs.Marshal()
		if err != nil {
			return err
		}
		if err = batch.Set(hardStateKey, data, p.wo); err != nil {
			return err
		}
	}
	if len(ents) > 0 {
		for _, ent := range ents {
			data, err := ent.Marshal()
			if err != nil {
				return err
			}
			if err = batch.Set(newLogKey(ent.Index), data, p.wo); err != nil {
				return err
			}
		}
		// 新日志之后的旧日志与领导冲突，需要删除
		last := ents[len(ents)-1].Index
		if err := batch.DeleteRange(newLogKey(last+1), newLogKey(math.MaxUint64), p.wo); err != nil {
			return err
		}
	}
	if err := batch.Commit(p.wo); err != nil {
		return pkgerrors.Wrap(err, "commit raft batch")
	}

	if !raft.IsEmptySnap(snap) {
		if err := p.MemoryStorage.ApplySnapshot(snap); err != nil && !errors.Is(err, raft.ErrSnapOutOfDate) {
			return err
		}
	}
	if !raft.IsEmptyHardState(hs) {
		if err := p.MemoryStorage.SetHardState(hs); err != nil {
			return err
		}
	}
	if len(ents) > 0 {
		return p.MemoryStorage.Append(ents)
	}
	return nil
}

// CreateSnapshot 在index处生成快照并压缩日志，保留catchUpEntries条日志
func (p *PebbleStorage) CreateSnapshot(index uint64, cs *pb.ConfState, data []byte, catchUpEntries uint64) (pb.Snapshot, error) {
	snap, err := p.MemoryStorage.CreateSnapshot(index, cs, data)
	if err != nil {
		return pb.Snapshot{}, err
	}
	snapData, err := snap.Marshal()
	if err != nil {
		return pb.Snapshot{}, err
	}
	if err = p.db.Set(snapshotKey, snapData, p.wo); err != nil {
		return pb.Snapshot{}, pkgerrors.Wrap(err, "save snapshot")
	}

	compactIndex := uint64(1)
	if index > catchUpEntries {
		compactIndex = index - catchUpEntries
	}
	if err = p.MemoryStorage.Compact(compactIndex); err != nil && !errors.Is(err, raft.ErrCompacted) {
		return pb.Snapshot{}, err
	}
	if err = p.db.DeleteRange(newLogKey(0), newLogKey(compactIndex), p.wo); err != nil {
		return pb.Snapshot{}, pkgerrors.Wrap(err, "compact log")
	}
	p.Info("snapshot created", zap.Uint64("index", index), zap.Uint64("compactIndex", compactIndex))
	return snap, nil
}

func (p *PebbleStorage) loadSnapshot() (pb.Snapshot, error) {
	var snap pb.Snapshot
	data, closer, err := p.db.Get(snapshotKey)
	if err != nil {
		if err == pebble.ErrNotFound {
			return snap, nil
		}
		return snap, err
	}
	defer closer.Close()
	if err = snap.Unmarshal(data); err != nil {
		return snap, pkgerrors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}

func (p *PebbleStorage) loadHardState() (pb.HardState, error) {
	var hs pb.HardState
	data, closer, err := p.db.Get(hardStateKey)
	if err != nil {
		if err == pebble.ErrNotFound {
			return hs, nil
		}
		return hs, err
	}
	defer closer.Close()
	if err = hs.Unmarshal(data); err != nil {
		return hs, pkgerrors.Wrap(err, "unmarshal hard state")
	}
	return hs, nil
}

func (p *PebbleStorage) loadEntries(startIndex uint64) ([]pb.Entry, error) {
	iter := p.db.NewIter(&pebble.IterOptions{
		LowerBound: newLogKey(startIndex),
		UpperBound: newLogKey(math.MaxUint64),
	})
	defer iter.Close()
	var ents []pb.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var ent pb.Entry
		if err := ent.Unmarshal(iter.Value()); err != nil {
			return nil, pkgerrors.Wrap(err, "unmarshal entry")
		}
		ents = append(ents, ent)
	}
	return ents, nil
}
