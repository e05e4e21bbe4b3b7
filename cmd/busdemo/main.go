// Command busdemo wires the bus's core engine together with its ambient
// and domain stack into one runnable process: a broker, a slab pool, a
// sample HSM, Prometheus /metrics, a debug introspect WebSocket and,
// optionally, a NATS stats bridge.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/busbox/internal/admission"
	"github.com/adred-codev/busbox/internal/config"
	"github.com/adred-codev/busbox/internal/hsm"
	"github.com/adred-codev/busbox/internal/introspect"
	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/message/slabpool"
	"github.com/adred-codev/busbox/internal/natsbridge"
	"github.com/adred-codev/busbox/internal/pubsub"
	"github.com/adred-codev/busbox/internal/telemetry"
	"github.com/adred-codev/busbox/internal/telemetry/hostmetrics"
)

const (
	demoPoolBlocks      = 256
	demoPoolPayloadSize = 64
	demoMaxPubMsgID     = 63
)

func main() {
	startupLogger := telemetry.NewLogger(telemetry.LoggerConfig{Level: "info", Format: "pretty"}, "busdemo")
	startupLogger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting")

	cfg, err := config.Load(&startupLogger)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := telemetry.NewLogger(telemetry.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat}, "busdemo")
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := message.NewRegistry(logger)
	pool := slabpool.New(demoPoolBlocks, demoPoolPayloadSize)
	allocatorID, err := registry.Register(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register demo pool")
	}

	brokerMetrics := telemetry.NewBrokerMetrics(prometheus.DefaultRegisterer, "default")
	broker := pubsub.NewBroker(registry, logger, 0, brokerMetrics)
	broker.Start(ctx)
	defer broker.Shutdown()

	limiter := admission.New(broker, cfg.PublishRate, cfg.PublishBurst)

	poolMetrics := telemetry.NewPoolMetrics(prometheus.DefaultRegisterer)
	hsmMetrics := telemetry.NewHSMMetrics(prometheus.DefaultRegisterer)

	engine := newDemoHSM(cfg.MaxHSMDepth, demoMaxPubMsgID, hsmMetrics, logger)
	engine.Subscriber.Subscribe(1) // demo: msg id 1 drives the traffic light
	if err := broker.Attach(engine.Subscriber); err != nil {
		logger.Fatal().Err(err).Msg("failed to attach demo HSM")
	}
	engine.Start()

	viewer := introspect.New(demoMaxPubMsgID, 0, logger)
	viewer.Subscriber.Subscribe(1)
	if err := broker.Attach(viewer.Subscriber); err != nil {
		logger.Fatal().Err(err).Msg("failed to attach introspect viewer")
	}

	hostMonitor := hostmetrics.New(cfg.MetricsInterval, prometheus.DefaultRegisterer, logger)
	hostMonitor.Start(ctx)

	go reportPoolUsage(ctx, pool, poolMetrics, allocatorID, cfg.MetricsInterval)
	go publishTicks(ctx, limiter, registry, allocatorID, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	introspectMux := http.NewServeMux()
	introspectMux.Handle("/narrate", viewer)
	introspectSrv := &http.Server{Addr: cfg.IntrospectAddr, Handler: introspectMux}
	go func() {
		if err := introspectSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("introspect server stopped")
		}
	}()

	var bridge *natsbridge.Bridge
	if cfg.NATSEnabled {
		bridge, err = natsbridge.New(cfg.NATSURL, "bus.stats", func() natsbridge.Stats {
			return natsbridge.Stats{
				PoolBlocksInUse: pool.InUse(),
				HSMCurrentState: engine.Current().Name,
			}
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to NATS, continuing without the stats bridge")
		} else {
			bridge.StartExport(ctx, cfg.MetricsInterval)
			defer bridge.Close()
		}
	}

	logger.Info().Msg("busdemo ready")
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	introspectSrv.Shutdown(shutdownCtx)
}

func reportPoolUsage(ctx context.Context, pool *slabpool.Pool, metrics *telemetry.PoolMetrics, allocatorID uint8, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	label := allocatorIDLabel(allocatorID)
	for {
		select {
		case <-ticker.C:
			metrics.SetInUse(label, float64(pool.InUse()))
		case <-ctx.Done():
			return
		}
	}
}

func allocatorIDLabel(id uint8) string {
	return strconv.Itoa(int(id))
}

// publishTicks drives the demo HSM and the introspect viewer with a tick
// every second, exercising the full allocate -> admit -> dispatch ->
// release path. Publishing goes through the admission limiter rather
// than the broker directly, same as any other producer would.
func publishTicks(ctx context.Context, limiter *admission.Limiter, registry *message.Registry, allocatorID uint8, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			blk, err := registry.NewMessage(ctx, allocatorID, tickMsgID)
			if err != nil {
				logger.Error().Err(err).Msg("failed to allocate tick message")
				continue
			}
			if err := limiter.Publish(blk); err != nil {
				logger.Warn().Err(err).Msg("tick publish throttled")
				registry.Release(blk)
			}
		case <-ctx.Done():
			return
		}
	}
}
