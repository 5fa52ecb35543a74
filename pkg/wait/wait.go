package wait

import (
	"sync"

	"go.uber.org/atomic"
)

// IndexWait 等待一个单调递增的下标（例如状态机已应用的日志下标）达到指定值。
// 下标只有一个写入者（Trigger），可以有任意多个等待者。
type IndexWait struct {
	mu      sync.Mutex
	current atomic.Uint64
	// 相同下标的等待者共享同一个chan，下标到达后关闭chan唤醒所有等待者
	waits map[uint64]chan struct{}

	stopped bool
	stopC   chan struct{}
}

var closedC = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func NewIndexWait() *IndexWait {
	return &IndexWait{
		waits: make(map[uint64]chan struct{}),
		stopC: make(chan struct{}),
	}
}

// Wait 返回一个chan，当下标 >= index 时被关闭。
// 如果下标已经达到，返回已关闭的chan，所以重复等待同一个下标总是安全的。
func (w *IndexWait) Wait(index uint64) <-chan struct{} {
	if w.current.Load() >= index {
		return closedC
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current.Load() >= index {
		return closedC
	}
	ch := w.waits[index]
	if ch == nil {
		ch = make(chan struct{})
		w.waits[index] = ch
	}
	return ch
}

// Trigger 推进下标并唤醒所有阈值 <= index 的等待者。小于当前值的index会被忽略。
func (w *IndexWait) Trigger(index uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index <= w.current.Load() {
		return
	}
	w.current.Store(index)
	for idx, ch := range w.waits {
		if idx <= index {
			close(ch)
			delete(w.waits, idx)
		}
	}
}

// Index 当前下标
func (w *IndexWait) Index() uint64 {
	return w.current.Load()
}

// Pending 尚未被唤醒的不同下标数量
func (w *IndexWait) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waits)
}

// Stop 停止后 StopC 被关闭，未到达的等待者应通过 StopC 感知停止
func (w *IndexWait) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopC)
}

func (w *IndexWait) StopC() <-chan struct{} {
	return w.stopC
}
