package coordinator

import "time"

// DefaultReadTimeout 线性一致读等待状态机追上ReadIndex的默认时间
const DefaultReadTimeout = 3 * time.Second

type Options struct {
	// ReadTimeout 一次线性一致读的总时长（领导确认 + 等待应用）
	ReadTimeout time.Duration
	Monitor     Monitor
}

func NewOptions() *Options {
	return &Options{
		ReadTimeout: DefaultReadTimeout,
		Monitor:     emptyMonitor{},
	}
}

type Option func(*Options)

func WithReadTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.ReadTimeout = timeout
		}
	}
}

func WithMonitor(m Monitor) Option {
	return func(o *Options) {
		if m != nil {
			o.Monitor = m
		}
	}
}
