package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fragmentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_stream_fragments_total",
		Help: "Fragments appended to ingest buffers.",
	})
	bytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_stream_bytes_total",
		Help: "Bytes appended to ingest buffers.",
	})
	streamsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_stream_finalized_total",
		Help: "Streams finalized cleanly.",
	})
	streamsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_stream_failed_total",
		Help: "Streams sealed with an error marker.",
	})
	staleFragments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_stream_stale_fragments_total",
		Help: "Fragments discarded because their stream was no longer current.",
	})
)
