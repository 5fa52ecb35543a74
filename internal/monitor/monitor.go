package monitor

import (
	"time"

	"github.com/WuKongIM/wkkv/pkg/wkhttp"
)

func NewMonitor(on bool) IMonitor {
	if !on {
		return &monitorEmpty{}
	}
	return NewPrometheus()
}

// IMonitor 同时作为raft节点和读写协调器的监控
type IMonitor interface {
	Start()
	Stop()
	Monitor(c *wkhttp.Context) // 暴露监控接口

	// ---------- raft ----------
	SetProposalsCommitted(proposalsCommitted uint64)
	SetProposalsApplied(proposalsApplied uint64)
	LeaderChangesInc()
	SendFailuresInc()
	ProposalsFailedInc()
	ProposalsPendingInc()
	ProposalsPendingDec()
	ReadIndexObserve(d time.Duration, ok bool)

	// ---------- 读写 ----------
	LinearizableReadObserve(d time.Duration, kind string)
	LocalReadInc()
	WriteObserve(d time.Duration, ok bool)
}

type monitorEmpty struct {
}

func (m *monitorEmpty) Start() {}
func (m *monitorEmpty) Stop()  {}
func (m *monitorEmpty) Monitor(c *wkhttp.Context) {
	c.String(404, "monitor is off")
}

func (m *monitorEmpty) SetProposalsCommitted(proposalsCommitted uint64) {}
func (m *monitorEmpty) SetProposalsApplied(proposalsApplied uint64)     {}
func (m *monitorEmpty) LeaderChangesInc()                               {}
func (m *monitorEmpty) SendFailuresInc()                                {}
func (m *monitorEmpty) ProposalsFailedInc()                             {}
func (m *monitorEmpty) ProposalsPendingInc()                            {}
func (m *monitorEmpty) ProposalsPendingDec()                            {}
func (m *monitorEmpty) ReadIndexObserve(d time.Duration, ok bool)       {}

func (m *monitorEmpty) LinearizableReadObserve(d time.Duration, kind string) {}
func (m *monitorEmpty) LocalReadInc()                                        {}
func (m *monitorEmpty) WriteObserve(d time.Duration, ok bool)                {}
