package duplicates

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curator",
		Name:      "duplicate_checks_total",
		Help:      "Duplicate checks by recommendation",
	}, []string{"recommendation"})

	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "curator",
		Name:      "duplicate_check_duration_seconds",
		Help:      "Duplicate check duration",
		Buckets:   prometheus.DefBuckets,
	})

	hashFastPathTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "curator",
		Name:      "duplicate_hash_fast_path_total",
		Help:      "Duplicate checks resolved by cover content hash",
	})

	embeddingFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curator",
		Name:      "duplicate_embedding_failures_total",
		Help:      "Embedding calls that failed during duplicate checks",
	}, []string{"modality"})

	indexFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "curator",
		Name:      "duplicate_index_fallbacks_total",
		Help:      "Duplicate checks degraded to substring search",
	})

	visualComparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curator",
		Name:      "duplicate_visual_comparisons_total",
		Help:      "Visual tie-break comparisons by status",
	}, []string{"status"})
)
