package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var ManifestsDiscovered = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_manifests_discovered_total",
}, []string{"synthetic"})
var ManifestsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_manifests_completed_total",
}, []string{"synthetic"})
var ManifestsRejected = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "pipeline_manifests_rejected_total",
})
var DiscoveryCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_discovery_cycles_total",
}, []string{"outcome"})
var RecordsLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_records_loaded_total",
}, []string{"fileType", "action"})
var BatchesLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_batches_loaded_total",
}, []string{"outcome"})
var BatchLoadTime = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name: "pipeline_batch_load_time_seconds",
})
var CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_cache_hits_total",
}, []string{"cache"})
var CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_cache_misses_total",
}, []string{"cache"})
var BytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "pipeline_bytes_downloaded_total",
})
var IdentifiersHashed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_identifiers_hashed_total",
}, []string{"source"})
var ObjectStoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pipeline_object_store_operations_total",
}, []string{"operation"})
var ResumePoint = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "pipeline_resume_point_record_number",
})

func init() {
	prometheus.MustRegister(ManifestsDiscovered)
	prometheus.MustRegister(ManifestsCompleted)
	prometheus.MustRegister(ManifestsRejected)
	prometheus.MustRegister(DiscoveryCycles)
	prometheus.MustRegister(RecordsLoaded)
	prometheus.MustRegister(BatchesLoaded)
	prometheus.MustRegister(BatchLoadTime)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(BytesDownloaded)
	prometheus.MustRegister(IdentifiersHashed)
	prometheus.MustRegister(ObjectStoreOperations)
	prometheus.MustRegister(ResumePoint)
}
