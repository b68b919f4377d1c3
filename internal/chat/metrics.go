package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "chat_llm_calls_total",
			Help:      "Model completion calls by status",
		},
		[]string{"status"},
	)

	llmDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "curator",
			Name:      "chat_llm_duration_seconds",
			Help:      "Duration of model completion calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "chat_tool_calls_total",
			Help:      "Domain tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "chat_handoffs_total",
			Help:      "Agent handoffs by target",
		},
		[]string{"target"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "chat_events_total",
			Help:      "Normalized stream events by type",
		},
		[]string{"type"},
	)

	fallbackPassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "chat_fallback_passes_total",
			Help:      "Second passes forced by skipped image analysis",
		},
	)

	runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "curator",
			Name:      "chat_runs_active",
			Help:      "Chat runs currently streaming",
		},
	)
)
