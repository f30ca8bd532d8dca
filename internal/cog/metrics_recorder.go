// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cog

import "time"

// MetricsRecorder tracks command execution metrics for a single dispatch.
type MetricsRecorder struct {
	startTime   time.Time
	commandName string
	cogName     string
	status      string
}

// NewMetricsRecorder initializes a recorder for a single dispatch.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{startTime: time.Now()}
}

// SetCommandName sets the command name for metrics.
func (m *MetricsRecorder) SetCommandName(name string) {
	m.commandName = name
}

// SetCogName sets the owning cog for metrics.
func (m *MetricsRecorder) SetCogName(name string) {
	m.cogName = name
}

// SetStatus sets the execution status for metrics.
func (m *MetricsRecorder) SetStatus(status string) {
	m.status = status
}

// Record writes the collected metrics if the command resolved. Unknown
// command names are not recorded to keep label cardinality bounded.
func (m *MetricsRecorder) Record() {
	if m.commandName == "" {
		return
	}

	CommandExecutions.WithLabelValues(m.commandName, m.cogName, m.status).Inc()
	CommandDuration.WithLabelValues(m.commandName, m.cogName).Observe(time.Since(m.startTime).Seconds())
}
