// Package metrics records operational gauges and counters into an embedded
// tstorage time-series store under the application workdir.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"go.uber.org/zap"
)

var (
	mu       sync.Mutex
	storage  tstorage.Storage
	counters = map[string]float64{}
)

// InitMetrics opens the metrics store below workdir. Must be called once
// before any gauge or counter is recorded; recording without it is a no-op.
func InitMetrics(workdir string) error {
	stg, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	mu.Lock()
	storage = stg
	mu.Unlock()
	return nil
}

// Close flushes and closes the metrics store.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		if err := storage.Close(); err != nil {
			zap.L().Warn("metrics store close failed", zap.Error(err))
		}
		storage = nil
	}
}

// SetGauge records the current value of a gauge metric.
func SetGauge(name string, value int64) {
	insert(name, float64(value))
}

// IncrCounter increments a monotonic counter and records its new total.
func IncrCounter(name string) {
	mu.Lock()
	counters[name]++
	v := counters[name]
	mu.Unlock()
	insert(name, v)
}

// Latest returns the most recent recorded value for a metric within the
// last hour, or false when nothing was recorded.
func Latest(name string) (float64, bool) {
	mu.Lock()
	stg := storage
	mu.Unlock()
	if stg == nil {
		return 0, false
	}
	now := time.Now().Unix()
	points, err := stg.Select(name, nil, now-3600, now+1)
	if err != nil || len(points) == 0 {
		return 0, false
	}
	return points[len(points)-1].Value, true
}

func insert(name string, value float64) {
	mu.Lock()
	stg := storage
	mu.Unlock()
	if stg == nil {
		return
	}
	err := stg.InsertRows([]tstorage.Row{
		{Metric: name, DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value}},
	})
	if err != nil {
		zap.L().Warn("metrics insert failed", zap.String("metric", name), zap.Error(err))
	}
}
