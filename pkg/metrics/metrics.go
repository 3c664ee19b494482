// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gallery"

var (
	FacesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faces_ingested_total",
		Help:      "Total number of faces stored by ingestion",
	})

	PersonsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persons_created_total",
		Help:      "Persons created, by the operation that created them",
	}, []string{"source"})

	ReclusterRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recluster_runs_total",
		Help:      "Re-cluster passes, by outcome",
	}, []string{"status"})

	ReclusterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recluster_duration_seconds",
		Help:      "Duration of re-cluster passes",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Image uploads, by result",
	}, []string{"result"})

	DetectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "detect_duration_seconds",
		Help:      "Duration of face detection calls",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	ImportedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imported_files_total",
		Help:      "Files handled by the bulk importer, by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
