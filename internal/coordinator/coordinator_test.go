package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/WuKongIM/wkkv/internal/kvstore"
	"github.com/WuKongIM/wkkv/pkg/wait"
	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

type fakeOracle struct {
	mu     sync.Mutex
	status types.LeadershipStatus
	calls  atomic.Int64
}

func (f *fakeOracle) set(st types.LeadershipStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeOracle) CheckLeader(ctx context.Context) types.LeadershipStatus {
	f.calls.Inc()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// fakeTracker 使用IndexWait模拟状态机的应用进度
type fakeTracker struct {
	iw    *wait.IndexWait
	calls atomic.Int64
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{iw: wait.NewIndexWait()}
}

func (f *fakeTracker) AppliedIndex() uint64 {
	return f.iw.Index()
}

func (f *fakeTracker) WaitUntilApplied(ctx context.Context, index uint64) types.ApplyWaitResult {
	f.calls.Inc()
	select {
	case <-f.iw.Wait(index):
		return types.Reached(f.iw.Index())
	case <-ctx.Done():
		return types.TimedOut()
	case <-f.iw.StopC():
		return types.Fatal(types.ErrStopped)
	}
}

type countingStore struct {
	*kvstore.Store
	gets atomic.Int64
}

func (c *countingStore) Get(key string) (string, bool) {
	c.gets.Inc()
	return c.Store.Get(key)
}

// fakeWriter 直接应用到状态机并推进应用进度
type fakeWriter struct {
	mu      sync.Mutex
	index   uint64
	store   *kvstore.Store
	tracker *fakeTracker
	oracle  *fakeOracle
	err     error
}

func (f *fakeWriter) Propose(ctx context.Context, data []byte) (*types.WriteOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index++
	resp, err := f.store.Apply(f.index, data)
	if err != nil {
		return nil, err
	}
	f.tracker.iw.Trigger(f.index)
	if f.oracle != nil {
		f.oracle.set(types.Leader(f.index))
	}
	return &types.WriteOutcome{Index: f.index, Term: 1, Data: resp}, nil
}

type testEnv struct {
	oracle  *fakeOracle
	tracker *fakeTracker
	store   *countingStore
	writer  *fakeWriter
	c       *Coordinator
}

func newTestEnv(opts ...Option) *testEnv {
	oracle := &fakeOracle{status: types.NotLeader(0)}
	tracker := newFakeTracker()
	store := &countingStore{Store: kvstore.New()}
	writer := &fakeWriter{store: store.Store, tracker: tracker, oracle: oracle}
	return &testEnv{
		oracle:  oracle,
		tracker: tracker,
		store:   store,
		writer:  writer,
		c:       New(oracle, tracker, store, writer, opts...),
	}
}

func (e *testEnv) write(t *testing.T, key, value string) *types.WriteOutcome {
	out, err := e.c.SubmitWrite(context.Background(), kvstore.Request{Key: key, Value: value})
	require.NoError(t, err)
	return out
}

func TestLinearizableRead_ReturnsAppliedValue(t *testing.T) {
	env := newTestEnv()
	for i := 1; i <= 4; i++ {
		env.write(t, fmt.Sprintf("other%d", i), "x")
	}
	out := env.write(t, "k", "v")
	require.Equal(t, uint64(5), out.Index)
	require.Equal(t, uint64(5), env.tracker.AppliedIndex())
	env.oracle.set(types.Leader(5))

	v, err := env.c.LinearizableRead(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestLinearizableRead_NotLeaderShortCircuits(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.NotLeader(2))

	v, err := env.c.LinearizableRead(context.Background(), "k")
	assert.Equal(t, EmptyValue, v)
	assert.ErrorIs(t, err, types.ErrNotLeader)
	re, ok := AsReadError(err)
	require.True(t, ok)
	assert.Equal(t, ReadErrNotLeader, re.Kind)
	assert.Equal(t, uint64(2), re.LeaderHint)

	assert.Equal(t, int64(0), env.tracker.calls.Load())
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestLinearizableRead_UnknownLeaderIsNotLeader(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.UnknownLeader(types.ErrTimeout))

	_, err := env.c.LinearizableRead(context.Background(), "k")
	assert.ErrorIs(t, err, types.ErrNotLeader)
	assert.NotErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, int64(0), env.tracker.calls.Load())
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestLinearizableRead_StoppedNodeIsUnavailable(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.UnknownLeader(types.ErrStopped))

	_, err := env.c.LinearizableRead(context.Background(), "k")
	re, ok := AsReadError(err)
	require.True(t, ok)
	assert.Equal(t, ReadErrUnavailable, re.Kind)
	assert.ErrorIs(t, err, types.ErrUnavailable)
	assert.ErrorIs(t, err, types.ErrStopped)
	assert.NotErrorIs(t, err, types.ErrNotLeader)
	assert.Equal(t, int64(0), env.tracker.calls.Load())
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestLinearizableRead_Timeout(t *testing.T) {
	env := newTestEnv(WithReadTimeout(100 * time.Millisecond))
	env.oracle.set(types.Leader(10))

	start := time.Now()
	v, err := env.c.LinearizableRead(context.Background(), "k")
	assert.Equal(t, EmptyValue, v)
	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestLinearizableRead_CallerDeadline(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.Leader(10))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.c.LinearizableRead(ctx, "k")
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestLinearizableRead_Unavailable(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.Leader(10))

	errC := make(chan error, 1)
	go func() {
		_, err := env.c.LinearizableRead(context.Background(), "k")
		errC <- err
	}()
	time.Sleep(20 * time.Millisecond)
	env.tracker.iw.Stop()

	select {
	case err := <-errC:
		assert.ErrorIs(t, err, types.ErrUnavailable)
		assert.ErrorIs(t, err, types.ErrStopped)
		re, ok := AsReadError(err)
		require.True(t, ok)
		assert.Equal(t, ReadErrUnavailable, re.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("read not woken by stop")
	}
	assert.Equal(t, int64(0), env.store.gets.Load())
}

func TestLinearizableRead_WaitsForApply(t *testing.T) {
	env := newTestEnv()
	env.write(t, "k", "old")
	env.oracle.set(types.Leader(2))

	resC := make(chan string, 1)
	go func() {
		v, err := env.c.LinearizableRead(context.Background(), "k")
		if err != nil {
			resC <- err.Error()
			return
		}
		resC <- v
	}()

	select {
	case v := <-resC:
		t.Fatalf("read returned before apply: %s", v)
	case <-time.After(30 * time.Millisecond):
	}

	env.write(t, "k", "new")
	select {
	case v := <-resC:
		assert.Equal(t, "new", v)
	case <-time.After(2 * time.Second):
		t.Fatal("read not woken by apply")
	}
}

func TestLinearizableRead_NoStaleRead(t *testing.T) {
	env := newTestEnv()
	var last string
	for i := 0; i < 20; i++ {
		last = fmt.Sprintf("v%d", i)
		env.write(t, "k", last)

		v, err := env.c.LinearizableRead(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, last, v)
	}
}

func TestLinearizableRead_RepeatedReadIndex(t *testing.T) {
	env := newTestEnv()
	env.write(t, "k", "v")

	for i := 0; i < 2; i++ {
		start := time.Now()
		v, err := env.c.LinearizableRead(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	}
}

func TestLinearizableRead_MissingKey(t *testing.T) {
	env := newTestEnv()
	env.write(t, "k", "v")

	v, err := env.c.LinearizableRead(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, EmptyValue, v)
}

func TestLinearizableRead_Concurrent(t *testing.T) {
	env := newTestEnv()
	env.write(t, "k", "v0")
	env.oracle.set(types.Leader(3))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			v, err := env.c.LinearizableRead(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v2" {
				return fmt.Errorf("unexpected value %q", v)
			}
			return nil
		})
	}
	time.Sleep(20 * time.Millisecond)
	env.writer.oracle = nil
	env.write(t, "k", "v1")
	env.write(t, "k", "v2")
	require.NoError(t, g.Wait())
}

func TestLocalRead(t *testing.T) {
	env := newTestEnv()
	assert.Equal(t, EmptyValue, env.c.LocalRead("missing"))

	env.write(t, "k", "v")
	assert.Equal(t, "v", env.c.LocalRead("k"))
	assert.Equal(t, int64(0), env.oracle.calls.Load())
	assert.Equal(t, int64(0), env.tracker.calls.Load())
}

func TestLocalRead_NeverBlocks(t *testing.T) {
	env := newTestEnv()
	env.oracle.set(types.Leader(100))

	go func() {
		_, _ = env.c.LinearizableRead(context.Background(), "k")
	}()
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	assert.Equal(t, EmptyValue, env.c.LocalRead("k"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	env.tracker.iw.Stop()
}

func TestSubmitWrite_PassThrough(t *testing.T) {
	env := newTestEnv()
	out := env.write(t, "k", "v")
	assert.Equal(t, uint64(1), out.Index)
	resp, err := kvstore.DecodeResponse(out.Data)
	require.NoError(t, err)
	assert.Equal(t, "v", resp.Value)

	notLeader := types.NewNotLeaderError(3)
	env.writer.err = notLeader
	_, err = env.c.SubmitWrite(context.Background(), kvstore.Request{Key: "k", Value: "x"})
	assert.Same(t, notLeader, err)
	hint, ok := types.LeaderHintOf(err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), hint)

	env.writer.err = errors.New("boom")
	_, err = env.c.SubmitWrite(context.Background(), kvstore.Request{Key: "k", Value: "x"})
	assert.EqualError(t, err, "boom")
}

func TestReadError_Message(t *testing.T) {
	assert.Equal(t, "read failed: not leader, leader unknown", (&ReadError{Kind: ReadErrNotLeader}).Error())
	assert.Equal(t, "read failed: not leader, leader is 2", (&ReadError{Kind: ReadErrNotLeader, LeaderHint: 2}).Error())
	assert.Equal(t, "read failed: unavailable: raft stopped", (&ReadError{Kind: ReadErrUnavailable, Reason: types.ErrStopped}).Error())
	assert.Equal(t, "Timeout", ReadErrTimeout.String())
}
