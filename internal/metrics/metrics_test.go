package metrics

import "testing"

func TestNoOpMetricsDoesNotPanic(t *testing.T) {
	m := NoOp{}
	m.AgentCreation().Labels(nil).Observe(1)
	m.AgentDestruction().Labels(map[string]string{"x": "y"}).Observe(2)
	m.MessageDelivery().Labels(nil).Observe(3)
}

func TestPrometheusRecordsObservations(t *testing.T) {
	p := NewPrometheus(nil)
	p.AgentCreation().Labels(nil).Observe(5)
	p.AgentDestruction().Labels(nil).Observe(5)
	p.MessageDelivery().Labels(map[string]string{"agent": "a1"}).Observe(5)
}
