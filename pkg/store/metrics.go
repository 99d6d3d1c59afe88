package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_store_writes_total",
		Help: "Number of store write operations, by kind.",
	}, []string{"kind"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_store_conversations_deleted_total",
		Help: "Number of conversations deleted from the store.",
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "loom_store_disk_usage_bytes",
		Help: "Best-effort on-disk size of the database directory.",
	}, func() float64 { return float64(DiskUsageBytes()) })
)

// DiskUsageBytes returns the best-effort on-disk size of the DB directory.
func DiskUsageBytes() uint64 {
	if db == nil || dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
