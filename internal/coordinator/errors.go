package coordinator

import (
	"errors"
	"fmt"

	"github.com/WuKongIM/wkkv/pkg/wraft/types"
)

type ReadErrorKind int

const (
	ReadErrNotLeader ReadErrorKind = iota + 1
	ReadErrTimeout
	ReadErrUnavailable
)

func (k ReadErrorKind) String() string {
	switch k {
	case ReadErrNotLeader:
		return "NotLeader"
	case ReadErrTimeout:
		return "Timeout"
	case ReadErrUnavailable:
		return "Unavailable"
	}
	return fmt.Sprintf("ReadErrorKind(%d)", int(k))
}

// ReadError 线性一致读失败，失败时不会返回任何值
type ReadError struct {
	Kind ReadErrorKind
	// LeaderHint 只在NotLeader时有意义，0表示未知
	LeaderHint uint64
	Reason     error
}

func (e *ReadError) Error() string {
	switch e.Kind {
	case ReadErrNotLeader:
		if e.LeaderHint == 0 {
			return "read failed: not leader, leader unknown"
		}
		return fmt.Sprintf("read failed: not leader, leader is %d", e.LeaderHint)
	case ReadErrTimeout:
		return "read failed: timed out waiting for apply"
	case ReadErrUnavailable:
		if e.Reason != nil {
			return fmt.Sprintf("read failed: unavailable: %v", e.Reason)
		}
		return "read failed: unavailable"
	}
	return "read failed"
}

func (e *ReadError) Is(target error) bool {
	switch target {
	case types.ErrNotLeader:
		return e.Kind == ReadErrNotLeader
	case types.ErrTimeout:
		return e.Kind == ReadErrTimeout
	case types.ErrUnavailable:
		return e.Kind == ReadErrUnavailable
	}
	return false
}

// Unwrap 只暴露Unavailable的原因，其余类型的原因不参与errors.Is匹配
func (e *ReadError) Unwrap() error {
	if e.Kind == ReadErrUnavailable {
		return e.Reason
	}
	return nil
}

// AsReadError 取出err链上的ReadError
func AsReadError(err error) (*ReadError, bool) {
	var re *ReadError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
