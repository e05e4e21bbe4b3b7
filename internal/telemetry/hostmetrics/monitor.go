// Package hostmetrics periodically samples host CPU/memory via
// gopsutil, feeds the numbers to Prometheus gauges and keeps the latest
// reading available through Monitor.Current. admission.Limiter does not
// read it.
package hostmetrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is the last sampled reading.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Monitor samples host resources on an interval and stores the latest
// reading for lock-free reads from any goroutine.
type Monitor struct {
	interval time.Duration
	logger   zerolog.Logger

	current atomic.Value // Snapshot

	cpuGauge prometheus.Gauge
	memGauge prometheus.Gauge
}

// New constructs a Monitor sampling every interval. Pass reg =
// prometheus.DefaultRegisterer to use the global registry.
func New(interval time.Duration, reg prometheus.Registerer, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		interval: interval,
		logger:   logger,
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bus", Subsystem: "host", Name: "cpu_percent",
			Help: "Host CPU utilization percent, last sample.",
		}),
		memGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bus", Subsystem: "host", Name: "memory_percent",
			Help: "Host memory utilization percent, last sample.",
		}),
	}
	reg.MustRegister(m.cpuGauge, m.memGauge)
	m.current.Store(Snapshot{})
	return m
}

// Current returns the most recent sample without blocking.
func (m *Monitor) Current() Snapshot {
	return m.current.Load().(Snapshot)
}

// Start runs the sampling loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		m.sample(ctx)
		for {
			select {
			case <-ticker.C:
				m.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) sample(ctx context.Context) {
	snap := Snapshot{}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		m.logger.Warn().Err(err).Msg("hostmetrics: cpu sample failed")
	} else if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("hostmetrics: memory sample failed")
	} else {
		snap.MemoryPercent = vm.UsedPercent
	}

	m.current.Store(snap)
	m.cpuGauge.Set(snap.CPUPercent)
	m.memGauge.Set(snap.MemoryPercent)
}

// GoroutineCount reports runtime.NumGoroutine(), a cheap load proxy to
// read alongside CPU/memory. Nothing in the admission path calls it.
func GoroutineCount() int64 {
	return int64(runtime.NumGoroutine())
}
