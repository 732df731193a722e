// Package metrics 提供 hostapi.Metrics 的具体实现。
//
// Prometheus 部分借鉴了 maestro 的
// pkg/agent/middleware/metrics/prometheus.go: promauto 注册
// HistogramVec，标签维度按调用方传入。固定三个直方图
// (agent_creation_ms/agent_destruction_ms/message_delivery_ms)，各自带
// 一个耗时阈值，超阈值记一条告警日志。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// 三个耗时阈值 (毫秒)，超出时记一条 warn 日志。
const (
	agentCreationWarnMs    = 50
	agentDestructionWarnMs = 100
	messageDeliveryWarnMs  = 10
)

// thresholdHistogram 包装一个 *prometheus.HistogramVec，在观测值超过阈值时
// 额外发出一条日志告警。
type thresholdHistogram struct {
	vec       *prometheus.HistogramVec
	threshold float64
	name      string
	log       hostapi.Logger
}

func (h *thresholdHistogram) Labels(labels map[string]string) hostapi.Observer {
	return &thresholdObserver{h: h, labels: labels}
}

type thresholdObserver struct {
	h      *thresholdHistogram
	labels map[string]string
}

func (o *thresholdObserver) Observe(ms float64) {
	o.h.vec.With(prometheus.Labels(o.labels)).Observe(ms)
	if ms > o.h.threshold && o.h.log != nil {
		o.h.log.Warn("performance threshold exceeded", "metric", o.h.name, "ms", ms, "thresholdMs", o.h.threshold)
	}
}

// Prometheus 是 hostapi.Metrics 的 Prometheus 支撑实现。
type Prometheus struct {
	creation    *thresholdHistogram
	destruction *thresholdHistogram
	delivery    *thresholdHistogram
}

// NewPrometheus 注册三个直方图并返回 Metrics 实现；log 可为 nil (不告警)。
func NewPrometheus(log hostapi.Logger) *Prometheus {
	return &Prometheus{
		creation: &thresholdHistogram{
			name:      "agent_creation_ms",
			threshold: agentCreationWarnMs,
			log:       log,
			vec: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agent_creation_ms",
				Help:    "Duration of agent creation in milliseconds",
				Buckets: prometheus.DefBuckets,
			}, []string{}),
		},
		destruction: &thresholdHistogram{
			name:      "agent_destruction_ms",
			threshold: agentDestructionWarnMs,
			log:       log,
			vec: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agent_destruction_ms",
				Help:    "Duration of agent destruction in milliseconds",
				Buckets: prometheus.DefBuckets,
			}, []string{}),
		},
		delivery: &thresholdHistogram{
			name:      "message_delivery_ms",
			threshold: messageDeliveryWarnMs,
			log:       log,
			vec: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "message_delivery_ms",
				Help:    "Duration of message delivery in milliseconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"agent"}),
		},
	}
}

func (p *Prometheus) AgentCreation() hostapi.Histogram    { return p.creation }
func (p *Prometheus) AgentDestruction() hostapi.Histogram { return p.destruction }
func (p *Prometheus) MessageDelivery() hostapi.Histogram  { return p.delivery }

// NoOp 是用于测试和精简部署的空实现，观测值被丢弃。
type NoOp struct{}

func (NoOp) AgentCreation() hostapi.Histogram    { return noopHistogram{} }
func (NoOp) AgentDestruction() hostapi.Histogram { return noopHistogram{} }
func (NoOp) MessageDelivery() hostapi.Histogram  { return noopHistogram{} }

type noopHistogram struct{}

func (noopHistogram) Labels(map[string]string) hostapi.Observer { return noopObserver{} }

type noopObserver struct{}

func (noopObserver) Observe(float64) {}
