// Package telemetry collects run-scoped metrics and flushes them through the
// structured log at the end of a run. One-shot commands get one-shot
// batches: there is no background loop and no export server.
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector accumulates metrics for a single run.
type Collector struct {
	mu      sync.Mutex
	metrics []Metric
	enabled bool
}

func NewCollector(enabled bool) *Collector {
	return &Collector{enabled: enabled}
}

func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: labels, Timestamp: time.Now()})
}

func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Gauge, Value: value, Labels: labels, Timestamp: time.Now()})
}

func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.add(Metric{
		Name: name, Type: Timer, Value: float64(duration.Milliseconds()),
		Labels: labels, Timestamp: time.Now(), Unit: "ms",
	})
}

func (c *Collector) add(m Metric) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.mu.Unlock()
}

// Metrics returns a copy of everything collected so far.
func (c *Collector) Metrics() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Flush writes every collected metric through the log and clears the batch.
func (c *Collector) Flush() {
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) == 0 {
		return
	}
	log.Debug().Int("count", len(metrics)).Msg("flushing run metrics")
	for _, m := range metrics {
		log.Info().
			Str("name", m.Name).
			Str("type", string(m.Type)).
			Float64("value", m.Value).
			Interface("labels", m.Labels).
			Msg("metric")
	}
}
