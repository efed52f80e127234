// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/canopy/internal/api"
	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/Thermoquad/canopy/internal/config"
	"github.com/Thermoquad/canopy/internal/link"
	"github.com/Thermoquad/canopy/internal/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge and its HTTP API",
	Long: `Open the controller link and serve the HTTP API.

The link is reopened with exponential backoff whenever it fails. Every line
from the controller is kept in a short message log for /api/messages, sensor
samples are checked against the alarm thresholds, and commands posted to
/api/cmd are validated before they are written to the controller.

Optional sinks mirror the message log to MQTT (mqtt.enabled) and record
sensor samples in InfluxDB (influx.enabled).

Supports both serial and WebSocket connections.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("web-dir", "./web", "Directory with the web UI (index.html, index.css, index.js)")

	for key, flag := range map[string]string{"http.addr": "addr", "http.web_dir": "web-dir"} {
		if err := settings.BindPFlag(key, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	dial, err := NewDialer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := bridge.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	state := bridge.NewState(bridge.Options{
		Channel: bridge.NewCommandChannel(bridge.BreakerSettings{
			Failures: cfg.Breaker.Failures,
			OpenFor:  cfg.Breaker.OpenFor,
		}),
		Logger:  logger,
		Metrics: metrics,
	})

	hub := api.NewHub(logger)
	state.Log.OnAppend(hub.Broadcast)

	closeSinks, err := attachSinks(ctx, cfg, state, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	b := bridge.New(state)
	network := link.NewNetwork()

	srv := api.NewServer(b, api.Options{
		WebDir:   cfg.HTTP.WebDir,
		Network:  network.Status,
		Gatherer: reg,
		Hub:      hub,
		Logger:   logger,
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	connector := link.NewConnector(dial, b, link.Settings{
		InitialInterval: cfg.Link.ReconnectInterval,
		MaxInterval:     cfg.Link.ReconnectMax,
		ConnectTimeout:  cfg.Link.ConnectTimeout,
	}, logger, metrics)
	reporter := link.NewStatusReporter(b, network.Status, cfg.Link.StatusInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		return connector.Run(gctx)
	})
	g.Go(func() error {
		return reporter.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", ln.Addr().String(), "web_dir", cfg.HTTP.WebDir)
		network.SetListening(true)
		defer network.SetListening(false)
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("canopy stopped")
	return err
}

// attachSinks connects the optional MQTT and InfluxDB sinks to state.
// The returned func closes whatever was opened.
func attachSinks(ctx context.Context, cfg *config.Config, state *bridge.State, logger *slog.Logger) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTT.Enabled {
		mirror, err := sink.DialMQTT(ctx, sink.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			return nil, err
		}
		state.Log.OnAppend(mirror.Publish)
		closers = append(closers, mirror.Close)
	}

	if cfg.Influx.Enabled {
		recorder := sink.NewInfluxRecorder(sink.InfluxOptions{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		state.OnSample(recorder.Record)
		closers = append(closers, recorder.Close)
	}

	return closeAll, nil
}
