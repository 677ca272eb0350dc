package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/anomaly"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/config"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/events"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/history"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/logger"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/monitor"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/pnl"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Defaults are good enough to run against the simulator.
		cfg = &config.Config{
			LogFile:     "monitor.log",
			MetricsAddr: ":9101",
			Monitoring:  config.DefaultMonitoring(),
		}
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.Development,
	})
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting position monitor",
		zap.String("config", *configPath),
		zap.String("bridge_url", cfg.BridgeURL),
		zap.String("metrics_addr", cfg.MetricsAddr))

	connector, cleanup := buildConnector(cfg, log)
	defer cleanup()

	detector := anomaly.NewDetector(anomaly.Config{
		PriceSpikeThreshold: cfg.Monitoring.PriceSpikeThreshold,
		VolumeThreshold:     cfg.Monitoring.VolumeThreshold,
		MarginCallThreshold: cfg.Monitoring.MarginCallThreshold,
		DrawdownThreshold:   cfg.Monitoring.DrawdownThreshold,
		MaxPositionAge:      cfg.Monitoring.MaxPositionAge(),
		MaxAnomalies:        cfg.Monitoring.MaxAnomalies,
		AllowedMagics:       cfg.Monitoring.AllowedMagics,
		History: history.Config{
			MaxPricePoints:   cfg.Monitoring.MaxPriceHistory,
			MaxVolumeSamples: cfg.Monitoring.MaxVolumeHistory,
			MaxStates:        cfg.Monitoring.MaxStateHistory,
		},
	}, log)
	detector.SetActionHandler(func(action anomaly.Action, a anomaly.Anomaly) error {
		// Notification-only handler; trade-side actions need a broker
		// channel this process does not own.
		log.Warn("Recommended action",
			zap.String("action", string(action.Type)),
			zap.String("anomaly_type", string(a.Type)),
			zap.String("severity", string(a.Severity)),
			zap.Int64("ticket", a.Ticket),
			zap.String("description", a.Description))
		return nil
	})

	mon := monitor.NewMonitor(&monitor.MonitorConfig{
		Monitoring: cfg.Monitoring,
		Calculator: pnl.NewCalculator(log),
		Detector:   detector,
		Logger:     log,
	})
	mon.SetConnector(connector)

	mon.OnPositionEvent("main", func(evt events.PositionEvent) {
		log.Info("Position event",
			zap.String("type", string(evt.Type)),
			zap.Int64("ticket", evt.Position.Ticket),
			zap.String("symbol", evt.Position.Symbol))
	})

	subID := mon.Subscribe("operator", func(positions []*domain.MonitoredPosition) {
		total := 0.0
		for _, p := range positions {
			total += p.TotalPnL
		}
		log.Debug("Position snapshot",
			zap.Int("count", len(positions)),
			zap.Float64("total_pnl", total))
	})

	metricsSrv := serveMetrics(cfg.MetricsAddr, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down")
	mon.Unsubscribe(subID)
	mon.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// buildConnector picks the bridge when a URL is configured, or a
// seeded simulator for local runs.
func buildConnector(cfg *config.Config, log *zap.Logger) (broker.Connector, func()) {
	if cfg.BridgeURL != "" {
		bridge := broker.NewBridgeConnector(broker.BridgeConfig{
			URL:    cfg.BridgeURL,
			Logger: log,
		})
		return bridge, func() { _ = bridge.Close() }
	}

	log.Info("No bridge_url configured, running against the simulator")
	sim := broker.NewSimConnector(log)
	sim.SetSymbolInfo(broker.SymbolInfo{
		Symbol: "EURUSD", Digits: 5, PipValue: 10, ContractSize: 100000, Leverage: 100,
	})
	sim.SetQuote(broker.Quote{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0852, Time: time.Now()})
	sim.SetPositions([]broker.Position{
		{
			Ticket:     1001,
			Symbol:     "EURUSD",
			Type:       broker.Buy,
			Volume:     0.10,
			OpenPrice:  1.0840,
			StopLoss:   1.0790,
			TakeProfit: 1.0940,
			OpenTime:   time.Now().Add(-2 * time.Hour),
		},
	})
	sim.SetDrift(0.0001)
	return sim, func() {}
}

// serveMetrics starts the Prometheus endpoint.
func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
