/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xmount

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeDispatched  = "dispatched"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsConfig configures the Prometheus collectors registered by NewMetrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "xmount").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registerer is the Prometheus registerer to use.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegisterer sets the Prometheus registerer.
func WithRegisterer(registerer prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registerer = registerer
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:  "xmount",
		Registerer: prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors updated by ServerController and Context. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	dispatches   *prometheus.CounterVec
	compilations *prometheus.CounterVec
	contexts     prometheus.Gauge
	events       *prometheus.CounterVec
}

// NewMetrics creates and registers the xmount collectors.
func NewMetrics(options ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, option := range options {
		option(&config)
	}

	factory := promauto.With(config.Registerer)

	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Total number of requests dispatched to contexts",
			ConstLabels: config.ConstLabels,
		}, []string{"context", "outcome"}),

		compilations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "compilations_total",
			Help:        "Total number of context handler compilations",
			ConstLabels: config.ConstLabels,
		}, []string{"context", "result"}),

		contexts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "contexts",
			Help:        "Number of registered contexts",
			ConstLabels: config.ConstLabels,
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "server_events_total",
			Help:        "Total number of server state events emitted",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),
	}
}

func (m *Metrics) recordDispatch(id ContextId, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(id), outcome).Inc()
}

func (m *Metrics) recordCompilation(id ContextId, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.compilations.WithLabelValues(string(id), result).Inc()
}

func (m *Metrics) setContexts(count int) {
	if m == nil {
		return
	}
	m.contexts.Set(float64(count))
}

func (m *Metrics) recordEvent(event ServerEvent) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event.String()).Inc()
}
