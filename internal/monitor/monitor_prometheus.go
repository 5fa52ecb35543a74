package monitor

import (
	"time"

	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prometheus struct {
	registry *prometheus.Registry

	// ---------------- raft ----------------
	proposalsCommittedGauge prometheus.Gauge
	proposalsAppliedGauge   prometheus.Gauge
	proposalsPendingGauge   prometheus.Gauge
	proposalsFailedCounter  prometheus.Counter
	leaderChangesCounter    prometheus.Counter
	sendFailuresCounter     prometheus.Counter
	readIndexHistogram      *prometheus.HistogramVec

	// ---------------- 读写 ----------------
	linearizableReadHistogram *prometheus.HistogramVec
	localReadCounter          prometheus.Counter
	writeHistogram            *prometheus.HistogramVec
}

var latencyBuckets = []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5}

func NewPrometheus() *Prometheus {
	namespace := "wukong"
	subsystem := "kv"

	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		proposalsCommittedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proposals_committed",
			Help:      "已提交的最大日志索引",
		}),
		proposalsAppliedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proposals_applied",
			Help:      "已应用的最大日志索引",
		}),
		proposalsPendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proposals_pending",
			Help:      "等待应用的提案数量",
		}),
		proposalsFailedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proposals_failed_total",
			Help:      "失败的提案数量",
		}),
		leaderChangesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "leader_changes_total",
			Help:      "领导变更次数",
		}),
		sendFailuresCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_failures_total",
			Help:      "raft消息发送失败次数",
		}),
		readIndexHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_index_seconds",
			Help:      "ReadIndex确认领导耗时",
			Buckets:   latencyBuckets,
		}, []string{"result"}),
		linearizableReadHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "linearizable_read_seconds",
			Help:      "线性一致读耗时",
			Buckets:   latencyBuckets,
		}, []string{"result"}),
		localReadCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "local_read_total",
			Help:      "本地读次数",
		}),
		writeHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_seconds",
			Help:      "写入耗时",
			Buckets:   latencyBuckets,
		}, []string{"result"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.proposalsCommittedGauge,
		p.proposalsAppliedGauge,
		p.proposalsPendingGauge,
		p.proposalsFailedCounter,
		p.leaderChangesCounter,
		p.sendFailuresCounter,
		p.readIndexHistogram,
		p.linearizableReadHistogram,
		p.localReadCounter,
		p.writeHistogram,
	)
	return p
}

func (p *Prometheus) Start() {}

func (p *Prometheus) Stop() {}

func (p *Prometheus) Monitor(c *wkhttp.Context) {
	promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (p *Prometheus) SetProposalsCommitted(proposalsCommitted uint64) {
	p.proposalsCommittedGauge.Set(float64(proposalsCommitted))
}

func (p *Prometheus) SetProposalsApplied(proposalsApplied uint64) {
	p.proposalsAppliedGauge.Set(float64(proposalsApplied))
}

func (p *Prometheus) LeaderChangesInc() {
	p.leaderChangesCounter.Inc()
}

func (p *Prometheus) SendFailuresInc() {
	p.sendFailuresCounter.Inc()
}

func (p *Prometheus) ProposalsFailedInc() {
	p.proposalsFailedCounter.Inc()
}

func (p *Prometheus) ProposalsPendingInc() {
	p.proposalsPendingGauge.Inc()
}

func (p *Prometheus) ProposalsPendingDec() {
	p.proposalsPendingGauge.Dec()
}

func (p *Prometheus) ReadIndexObserve(d time.Duration, ok bool) {
	p.readIndexHistogram.WithLabelValues(resultLabel(ok)).Observe(d.Seconds())
}

func (p *Prometheus) LinearizableReadObserve(d time.Duration, kind string) {
	p.linearizableReadHistogram.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *Prometheus) LocalReadInc() {
	p.localReadCounter.Inc()
}

func (p *Prometheus) WriteObserve(d time.Duration, ok bool) {
	p.writeHistogram.WithLabelValues(resultLabel(ok)).Observe(d.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
