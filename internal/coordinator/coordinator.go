package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"go.uber.org/zap"
)

// EmptyValue key不存在时返回的值
const EmptyValue = ""

// LeadershipOracle 确认本节点是否为领导，是领导时返回确认时的提交索引
type LeadershipOracle interface {
	CheckLeader(ctx context.Context) types.LeadershipStatus
}

// ApplyTracker 状态机的应用进度
type ApplyTracker interface {
	AppliedIndex() uint64
	WaitUntilApplied(ctx context.Context, index uint64) types.ApplyWaitResult
}

type StateMachine interface {
	Get(key string) (string, bool)
}

// Writer 共识写入路径
type Writer interface {
	Propose(ctx context.Context, data []byte) (*types.WriteOutcome, error)
}

// Command 可以被编码后提交的写命令
type Command interface {
	Encode() ([]byte, error)
}

type Coordinator struct {
	oracle  LeadershipOracle
	tracker ApplyTracker
	sm      StateMachine
	writer  Writer
	opts    *Options
	wklog.Log
}

func New(oracle LeadershipOracle, tracker ApplyTracker, sm StateMachine, writer Writer, opt ...Option) *Coordinator {
	opts := NewOptions()
	for _, o := range opt {
		o(opts)
	}
	return &Coordinator{
		oracle:  oracle,
		tracker: tracker,
		sm:      sm,
		writer:  writer,
		opts:    opts,
		Log:     wklog.NewWKLog("coordinator"),
	}
}

// LinearizableRead 读取key，返回的值至少包含调用开始前已完成的所有写入。
// 只有在确认领导身份并且状态机应用到ReadIndex之后才会读状态机。
func (c *Coordinator) LinearizableRead(ctx context.Context, key string) (string, error) {
	start := time.Now()
	value, err := c.linearizableRead(ctx, key)
	kind := "ok"
	if re, ok := AsReadError(err); ok {
		kind = re.Kind.String()
	}
	c.opts.Monitor.LinearizableReadObserve(time.Since(start), kind)
	return value, err
}

func (c *Coordinator) linearizableRead(ctx context.Context, key string) (string, error) {
	// 整个调用只有一个截止时间
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()

	status := c.oracle.CheckLeader(ctx)
	if status.State == types.LeaderStateUnknown && errors.Is(status.Err, types.ErrStopped) {
		// 节点已停止
		return "", &ReadError{Kind: ReadErrUnavailable, Reason: status.Err}
	}
	if status.State != types.LeaderStateLeader {
		c.Debug("reject linearizable read", zap.String("key", key), zap.String("status", status.String()))
		return "", &ReadError{
			Kind:       ReadErrNotLeader,
			LeaderHint: status.LeaderHint,
			Reason:     status.Err,
		}
	}
	readIndex := status.Committed

	res := c.tracker.WaitUntilApplied(ctx, readIndex)
	switch res.Status {
	case types.ApplyReached:
	case types.ApplyTimedOut:
		c.Warn("wait apply timeout", zap.Uint64("readIndex", readIndex), zap.Uint64("applied", c.tracker.AppliedIndex()))
		return "", &ReadError{Kind: ReadErrTimeout, Reason: ctx.Err()}
	default:
		c.Warn("wait apply failed", zap.Uint64("readIndex", readIndex), zap.Error(res.Reason))
		return "", &ReadError{Kind: ReadErrUnavailable, Reason: res.Reason}
	}

	value, ok := c.sm.Get(key)
	if !ok {
		return EmptyValue, nil
	}
	return value, nil
}

// LocalRead 直接读本地状态机，可能读到旧值
func (c *Coordinator) LocalRead(key string) string {
	c.opts.Monitor.LocalReadInc()
	value, ok := c.sm.Get(key)
	if !ok {
		return EmptyValue
	}
	return value
}

// SubmitWrite 提交写命令，结果原样返回
func (c *Coordinator) SubmitWrite(ctx context.Context, cmd Command) (*types.WriteOutcome, error) {
	data, err := cmd.Encode()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	outcome, err := c.writer.Propose(ctx, data)
	c.opts.Monitor.WriteObserve(time.Since(start), err == nil)
	return outcome, err
}

func (c *Coordinator) ReadTimeout() time.Duration {
	return c.opts.ReadTimeout
}
