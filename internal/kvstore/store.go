package kvstore

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/WuKongIM/wkkv/pkg/wklog"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrEmptyKey = errors.New("key is empty")

// Request 写命令
type Request struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	if req.Key == "" {
		return req, ErrEmptyKey
	}
	return req, nil
}

// Response 写命令被应用后的返回
type Response struct {
	Value string `json:"value"`
}

func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if len(data) == 0 {
		return resp, nil
	}
	err := json.Unmarshal(data, &resp)
	return resp, err
}

type snapshot struct {
	LastApplied uint64            `json:"last_applied"`
	Data        map[string]string `json:"data"`
}

// Store 内存中的key/value状态机，只由raft的apply协程写入
type Store struct {
	mu          sync.RWMutex
	data        map[string]string
	lastApplied atomic.Uint64
	wklog.Log
}

func New() *Store {
	return &Store{
		data: make(map[string]string),
		Log:  wklog.NewWKLog("kvstore"),
	}
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Apply(index uint64, data []byte) ([]byte, error) {
	req, err := DecodeRequest(data)
	if err != nil {
		// 日志已经提交，无法拒绝，只推进应用位置
		s.lastApplied.Store(index)
		return nil, err
	}
	s.mu.Lock()
	s.data[req.Key] = req.Value
	s.mu.Unlock()
	s.lastApplied.Store(index)

	return json.Marshal(Response{Value: req.Value})
}

func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(snapshot{
		LastApplied: s.lastApplied.Load(),
		Data:        s.data,
	})
}

func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Data == nil {
		snap.Data = make(map[string]string)
	}
	s.mu.Lock()
	s.data = snap.Data
	s.mu.Unlock()
	s.lastApplied.Store(snap.LastApplied)
	s.Info("restored", zap.Uint64("lastApplied", snap.LastApplied), zap.Int("keys", len(snap.Data)))
	return nil
}

func (s *Store) LastApplied() uint64 {
	return s.lastApplied.Load()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
