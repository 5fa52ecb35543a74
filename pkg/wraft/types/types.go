package types

import (
	"fmt"
	"strconv"
)

// LeaderState 领导身份检查的结果类型
type LeaderState int

const (
	// LeaderStateUnknown 无法确认（选举中、刚失去领导、超时或已停止）
	LeaderStateUnknown LeaderState = iota
	// LeaderStateLeader 当前节点是领导
	LeaderStateLeader
	// LeaderStateNotLeader 当前节点不是领导
	LeaderStateNotLeader
)

func (l LeaderState) String() string {
	switch l {
	case LeaderStateLeader:
		return "Leader"
	case LeaderStateNotLeader:
		return "NotLeader"
	default:
		return "Unknown"
	}
}

// LeadershipStatus 某一时刻的领导身份
type LeadershipStatus struct {
	State LeaderState
	// Committed 确认领导身份时的已提交下标（State为Leader时有效）
	Committed uint64
	// LeaderHint 已知的领导节点id，0表示未知
	LeaderHint uint64
	// Err State为Unknown时的原因
	Err error
}

func Leader(committed uint64) LeadershipStatus {
	return LeadershipStatus{State: LeaderStateLeader, Committed: committed}
}

func NotLeader(hint uint64) LeadershipStatus {
	return LeadershipStatus{State: LeaderStateNotLeader, LeaderHint: hint}
}

func UnknownLeader(err error) LeadershipStatus {
	return LeadershipStatus{State: LeaderStateUnknown, Err: err}
}

func (s LeadershipStatus) String() string {
	switch s.State {
	case LeaderStateLeader:
		return fmt.Sprintf("Leader(committed=%d)", s.Committed)
	case LeaderStateNotLeader:
		return fmt.Sprintf("NotLeader(hint=%d)", s.LeaderHint)
	default:
		return fmt.Sprintf("Unknown(%v)", s.Err)
	}
}

// ApplyWaitStatus 等待应用的结果类型
type ApplyWaitStatus int

const (
	ApplyReached ApplyWaitStatus = iota
	ApplyTimedOut
	ApplyFatal
)

func (a ApplyWaitStatus) String() string {
	switch a {
	case ApplyReached:
		return "Reached"
	case ApplyTimedOut:
		return "TimedOut"
	default:
		return "Fatal"
	}
}

// ApplyWaitResult 等待状态机应用到指定下标的结果
type ApplyWaitResult struct {
	Status ApplyWaitStatus
	// At 到达时的已应用下标（Status为Reached时有效）
	At uint64
	// Reason Status为Fatal时的原因
	Reason error
}

func Reached(at uint64) ApplyWaitResult {
	return ApplyWaitResult{Status: ApplyReached, At: at}
}

func TimedOut() ApplyWaitResult {
	return ApplyWaitResult{Status: ApplyTimedOut}
}

func Fatal(reason error) ApplyWaitResult {
	return ApplyWaitResult{Status: ApplyFatal, Reason: reason}
}

// WriteOutcome 写入（提案）被应用后的结果
type WriteOutcome struct {
	Index uint64 `json:"index"` // 日志下标
	Term  uint64 `json:"term"`  // 日志任期
	Data  []byte `json:"-"`     // 状态机返回的数据
}

func (w *WriteOutcome) String() string {
	return "WriteOutcome{index:" + strconv.FormatUint(w.Index, 10) + " term:" + strconv.FormatUint(w.Term, 10) + "}"
}
