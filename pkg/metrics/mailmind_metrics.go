// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailmind_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_agent_runs_total",
			Help: "Agent runs by agent and final status",
		},
		[]string{"agent", "status"},
	)

	AgentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailmind_agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"agent"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_llm_requests_total",
			Help: "LLM completions by profile and outcome",
		},
		[]string{"profile", "outcome"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailmind_llm_latency_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		},
		[]string{"profile"},
	)

	SkillMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_skill_mutations_total",
			Help: "Skill read-modify-write attempts by outcome",
		},
		[]string{"outcome"},
	)

	SkillChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_skill_changes_total",
			Help: "Applied evolution changes by change type",
		},
		[]string{"change_type"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_escalations_total",
			Help: "Escalation decisions by outcome",
		},
		[]string{"escalated"},
	)

	Jobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailmind_jobs_total",
			Help: "Job state transitions by type and status",
		},
		[]string{"type", "status"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailmind_jobs_in_flight",
			Help: "Jobs currently executing in this process",
		},
	)
)
