package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memcap_uploads_total",
		Help: "Upload attempts by outcome.",
	}, []string{"result"})

	compensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memcap_upload_compensations_total",
		Help: "Objects deleted after their record insert failed.",
	})

	remoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memcap_remote_function_calls_total",
		Help: "Remote post-processing calls by outcome.",
	}, []string{"result"})

	thumbnailHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memcap_thumbnail_cache_hits_total",
		Help: "Thumbnail LRU hits.",
	})
	thumbnailMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memcap_thumbnail_cache_misses_total",
		Help: "Thumbnail LRU misses.",
	})

	orphansRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memcap_orphan_objects_removed_total",
		Help: "Objects removed by the reconciliation sweep.",
	})
)
