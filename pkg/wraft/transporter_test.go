package wraft

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

type testReporter struct {
	mu          sync.Mutex
	unreachable []uint64
	snapshots   []raft.SnapshotStatus
}

func (r *testReporter) ReportUnreachable(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = append(r.unreachable, id)
}

func (r *testReporter) ReportSnapshot(id uint64, status raft.SnapshotStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, status)
}

func (r *testReporter) unreachableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unreachable)
}

func newPeerServer(t *testing.T, step func(ctx context.Context, m raftpb.Message) error) *httptest.Server {
	gin.SetMode(gin.TestMode)
	h := wkhttp.New()
	h.POST(MessagePath, MessageHandler(step))
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return s
}

func TestHTTPTransporter_Send(t *testing.T) {
	var (
		mu       sync.Mutex
		received []raftpb.Message
	)
	s := newPeerServer(t, func(ctx context.Context, m raftpb.Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, m)
		return nil
	})

	cfg := NewRaftNodeConfig()
	cfg.ID = 1
	cfg.Peers = []*Peer{NewPeer(1, "http://127.0.0.1:1"), NewPeer(2, s.URL)}
	tr := NewHTTPTransporter(cfg)
	reporter := &testReporter{}
	tr.SetReporter(reporter)
	require.NoError(t, tr.Start())
	defer tr.Stop()

	tr.Send([]raftpb.Message{
		{Type: raftpb.MsgHeartbeat, From: 1, To: 2, Term: 3},
		{Type: raftpb.MsgApp, From: 1, To: 2, Term: 3, Index: 7},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, raftpb.MsgHeartbeat, received[0].Type)
	assert.Equal(t, uint64(7), received[1].Index)
	mu.Unlock()
	assert.Equal(t, 0, reporter.unreachableCount())
}

func TestHTTPTransporter_ReportUnreachable(t *testing.T) {
	s := newPeerServer(t, func(ctx context.Context, m raftpb.Message) error {
		return errors.New("raft stopped")
	})

	cfg := NewRaftNodeConfig()
	cfg.ID = 1
	cfg.Peers = []*Peer{NewPeer(2, s.URL)}
	tr := NewHTTPTransporter(cfg)
	reporter := &testReporter{}
	tr.SetReporter(reporter)
	require.NoError(t, tr.Start())
	defer tr.Stop()

	tr.Send([]raftpb.Message{{Type: raftpb.MsgSnap, From: 1, To: 2}})
	require.Eventually(t, func() bool {
		return reporter.unreachableCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	reporter.mu.Lock()
	assert.Equal(t, []raft.SnapshotStatus{raft.SnapshotFailure}, reporter.snapshots)
	reporter.mu.Unlock()

	// 未知节点直接报告不可达
	tr.Send([]raftpb.Message{{Type: raftpb.MsgHeartbeat, From: 1, To: 9}})
	assert.Equal(t, 2, reporter.unreachableCount())
}

func TestHTTPTransporter_SendOrderAcrossCalls(t *testing.T) {
	var (
		mu    sync.Mutex
		order []uint64
	)
	s := newPeerServer(t, func(ctx context.Context, m raftpb.Message) error {
		if m.Index == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		order = append(order, m.Index)
		return nil
	})

	cfg := NewRaftNodeConfig()
	cfg.ID = 1
	cfg.Peers = []*Peer{NewPeer(2, s.URL)}
	tr := NewHTTPTransporter(cfg)
	reporter := &testReporter{}
	tr.SetReporter(reporter)
	require.NoError(t, tr.Start())
	defer tr.Stop()

	// 两次Ready分别发送
	tr.Send([]raftpb.Message{{Type: raftpb.MsgApp, From: 1, To: 2, Term: 1, Index: 1}})
	tr.Send([]raftpb.Message{{Type: raftpb.MsgApp, From: 1, To: 2, Term: 1, Index: 2}})
	tr.Send([]raftpb.Message{{Type: raftpb.MsgApp, From: 1, To: 2, Term: 1, Index: 3}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []uint64{1, 2, 3}, order)
	mu.Unlock()
	assert.Equal(t, 0, reporter.unreachableCount())
}

func TestHTTPTransporter_SendQueueFull(t *testing.T) {
	received := make(chan uint64, 8)
	release := make(chan struct{})
	s := newPeerServer(t, func(ctx context.Context, m raftpb.Message) error {
		received <- m.Index
		<-release
		return nil
	})
	t.Cleanup(func() { close(release) })

	cfg := NewRaftNodeConfig()
	cfg.ID = 1
	cfg.TransportSendBuffer = 1
	cfg.Peers = []*Peer{NewPeer(2, s.URL)}
	tr := NewHTTPTransporter(cfg)
	reporter := &testReporter{}
	tr.SetReporter(reporter)
	require.NoError(t, tr.Start())
	defer tr.Stop()

	tr.Send([]raftpb.Message{{Type: raftpb.MsgApp, From: 1, To: 2, Index: 1}})
	select {
	case idx := <-received:
		assert.Equal(t, uint64(1), idx)
	case <-time.After(3 * time.Second):
		t.Fatal("first message not received")
	}

	// 第一条还在发送中，队列只能再放一条
	tr.Send([]raftpb.Message{
		{Type: raftpb.MsgApp, From: 1, To: 2, Index: 2},
		{Type: raftpb.MsgSnap, From: 1, To: 2, Index: 3},
	})
	assert.Equal(t, 1, reporter.unreachableCount())
	reporter.mu.Lock()
	assert.Equal(t, []raft.SnapshotStatus{raft.SnapshotFailure}, reporter.snapshots)
	reporter.mu.Unlock()
}

func TestHTTPTransporter_RemovePeer(t *testing.T) {
	s := newPeerServer(t, func(ctx context.Context, m raftpb.Message) error {
		return nil
	})
	cfg := NewRaftNodeConfig()
	cfg.ID = 1
	cfg.Peers = []*Peer{NewPeer(2, s.URL)}
	tr := NewHTTPTransporter(cfg)
	reporter := &testReporter{}
	tr.SetReporter(reporter)
	require.NoError(t, tr.Start())
	defer tr.Stop()

	tr.RemovePeer(2)
	tr.Send([]raftpb.Message{{Type: raftpb.MsgHeartbeat, From: 1, To: 2}})
	assert.Equal(t, 1, reporter.unreachableCount())

	tr.AddPeer(2, s.URL)
	tr.Send([]raftpb.Message{{Type: raftpb.MsgHeartbeat, From: 1, To: 2}})
	assert.Equal(t, 1, reporter.unreachableCount())
}

func TestParsePeers(t *testing.T) {
	peers, err := ParsePeers([]string{"1@http://127.0.0.1:5001", " ", "2@http://127.0.0.1:5002/"})
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, uint64(2), peers[1].ID)
	assert.Equal(t, "http://127.0.0.1:5002", peers[1].Addr)

	_, err = ParsePeers([]string{"abc"})
	assert.ErrorIs(t, err, ErrInvalidPeerValue)
	_, err = ParsePeer("0@http://127.0.0.1:5001")
	assert.ErrorIs(t, err, ErrInvalidPeerValue)
}

func TestProposalCodec(t *testing.T) {
	id, data, err := decodeProposal(encodeProposal(42, []byte("cmd")))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, []byte("cmd"), data)

	_, _, err = decodeProposal([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidProposal)

	rid, ok := decodeReadCtx(encodeReadCtx(7))
	assert.True(t, ok)
	assert.Equal(t, uint64(7), rid)
}
