package coordinator

import "time"

// Monitor 读写路径的监控
type Monitor interface {
	LinearizableReadObserve(d time.Duration, kind string)
	LocalReadInc()
	WriteObserve(d time.Duration, ok bool)
}

type emptyMonitor struct{}

func (emptyMonitor) LinearizableReadObserve(d time.Duration, kind string) {}
func (emptyMonitor) LocalReadInc()                                        {}
func (emptyMonitor) WriteObserve(d time.Duration, ok bool)                {}
