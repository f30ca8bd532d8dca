// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for metrics.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// CommandExecutions is the counter for command executions.
// Use RegisterMetrics to register this with a Prometheus registry.
var CommandExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cogwheel_command_executions_total",
		Help: "Total number of command executions",
	},
	[]string{"command", "cog", "status"},
)

// CommandDuration is the histogram for command execution duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cogwheel_command_duration_seconds",
		Help:    "Command execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command", "cog"},
)

// CogDisables counts cogs taken offline after a handler failure.
var CogDisables = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cogwheel_cog_disables_total",
		Help: "Total number of cogs disabled by the fault policy",
	},
	[]string{"cog"},
)

// ModuleLoads counts module loads by result.
var ModuleLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cogwheel_module_loads_total",
		Help: "Total number of module loads and reloads",
	},
	[]string{"module", "status"},
)

// ModuleLoadDuration is the histogram for module load duration, including
// teardown of the previous version.
var ModuleLoadDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cogwheel_module_load_duration_seconds",
		Help:    "Module load duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"module"},
)

// RegisterMetrics registers cog package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CommandExecutions)
	reg.MustRegister(CommandDuration)
	reg.MustRegister(CogDisables)
	reg.MustRegister(ModuleLoads)
	reg.MustRegister(ModuleLoadDuration)
}

// RecordCogDisabled increments the cog disable counter.
func RecordCogDisabled(cogName string) {
	CogDisables.WithLabelValues(cogName).Inc()
}

// RecordModuleLoad records a finished module load.
// Parameters:
//   - module: the module name passed to the loader
//   - status: StatusSuccess or StatusError
//   - duration: wall time including teardown of the previous version
func RecordModuleLoad(module, status string, duration time.Duration) {
	ModuleLoads.WithLabelValues(module, status).Inc()
	ModuleLoadDuration.WithLabelValues(module).Observe(duration.Seconds())
}
