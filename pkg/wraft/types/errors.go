package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotLeader   = errors.New("not leader")
	ErrStopped     = errors.New("raft stopped")
	ErrTimeout     = errors.New("timeout")
	ErrUnavailable = errors.New("unavailable")
)

// NotLeaderError 当前节点不是领导，LeaderHint为已知的领导（0为未知）
type NotLeaderError struct {
	LeaderHint uint64
}

func NewNotLeaderError(hint uint64) *NotLeaderError {
	return &NotLeaderError{LeaderHint: hint}
}

func (e *NotLeaderError) Error() string {
	if e.LeaderHint == 0 {
		return "not leader, leader unknown"
	}
	return fmt.Sprintf("not leader, leader is %d", e.LeaderHint)
}

func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}

// LeaderHintOf 返回错误链中携带的领导提示
func LeaderHintOf(err error) (uint64, bool) {
	var nle *NotLeaderError
	if errors.As(err, &nle) {
		return nle.LeaderHint, true
	}
	return 0, false
}
