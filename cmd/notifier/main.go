package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/config"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/messaging"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/notifier"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("KAFKA_BROKERS", "EMAIL_SERVICE_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "notifier", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	handler := notifier.NewHandler(cfg.EmailServiceURL, httpClient, logger)

	consumers := []struct {
		consumer *messaging.Consumer
		handle   messaging.Handler
	}{
		{messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderSettled, messaging.SettlementNotifierGroup, messaging.WithLogger(logger)), handler.HandleOrderSettled},
		{messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicVendorPayout, messaging.PayoutNotifierGroup, messaging.WithLogger(logger)), handler.HandlePayoutRecorded},
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting settlement notifier", "brokers", cfg.KafkaBrokers)

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failed   bool
	)
	for _, c := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = c.consumer.Close() }()

			if err := c.consumer.Consume(ctx, c.handle); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return
				}
				logger.Error("consumer error", "error", err)
				failOnce.Do(func() {
					failed = true
					cancel()
				})
			}
		}()
	}
	wg.Wait()

	if failed {
		os.Exit(1)
	}
	logger.Info("consumers stopped")
}
