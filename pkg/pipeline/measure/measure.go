package measure

import (
	"sync"
)

// DefaultMeasure is an in-memory Measure.
type DefaultMeasure struct {
	mu     sync.RWMutex
	Stages map[string]Metric
}

// NewDefaultMeasure creates an empty measure.
func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		Stages: make(map[string]Metric),
	}
}

// AddMetric creates the metric of a stage, replacing any metric with the same name.
func (m *DefaultMeasure) AddMetric(name string, concurrent int) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt := &DefaultMetric{
		mu:            &sync.Mutex{},
		allTransports: make(map[string]*TransportInfo),
		concurrent:    max(concurrent, 1),
	}
	m.Stages[name] = mt

	return mt
}

// GetMetric returns the metric of a stage, nil if there is none.
func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Stages[name]
}

// AllMetrics returns a copy of the metrics, keyed by stage name.
func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[string]Metric, len(m.Stages))
	for name, mt := range m.Stages {
		all[name] = mt
	}

	return all
}

var _ Measure = (*DefaultMeasure)(nil)
