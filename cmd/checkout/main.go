package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/cart"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/catalog"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/commission"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/config"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/gateway"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/ledger"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/messaging"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/orders"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/payment"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/settlement"
	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL", "PAYMENT_KEY_ID", "PAYMENT_KEY_SECRET"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "checkout", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(ctx, "checkout", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, cfg.DatabaseSchema)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var settledPublisher, payoutPublisher *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		settledPublisher = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderSettled, messaging.WithWriteTimeout(5*time.Second))
		defer func() { _ = settledPublisher.Close() }()
		payoutPublisher = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicVendorPayout, messaging.WithWriteTimeout(5*time.Second))
		defer func() { _ = payoutPublisher.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, settlement events are disabled")
	}

	allocator, err := commission.NewAllocator(cfg.CommissionDefaultRate)
	if err != nil {
		logger.Error("invalid commission rate", "error", err)
		os.Exit(1)
	}

	verifier, err := payment.NewVerifier(cfg.PaymentKeySecret)
	if err != nil {
		logger.Error("failed to create payment verifier", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	vendorCatalog := catalog.NewVendorCatalog(db)
	storeCatalog := catalog.NewStoreCatalog(db)
	cartRepo := cart.NewCartRepository(db)

	svcCfg := settlement.Config{
		Verifier:  verifier,
		Snapshots: cart.NewSnapshotter(cartRepo, vendorCatalog, storeCatalog),
		Store: settlement.NewStore(db, allocator,
			settlement.WithTimeout(cfg.SettlementTimeout),
			settlement.WithLockTimeout(cfg.SettlementLockTimeout),
		),
		Gateway:   gateway.NewClient(cfg.PaymentGatewayURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, httpClient),
		Allocator: allocator,
		Currency:  cfg.PaymentCurrency,
		Logger:    logger,
	}
	var ledgerPublisher ledger.EventPublisher
	if settledPublisher != nil {
		svcCfg.Publisher = settledPublisher
		ledgerPublisher = payoutPublisher
	}

	checkout, err := settlement.NewService(svcCfg)
	if err != nil {
		logger.Error("failed to create settlement service", "error", err)
		os.Exit(1)
	}

	checkoutHandler := settlement.NewHandler(checkout, logger)
	cartHandler := cart.NewHandler(cartRepo, vendorCatalog, storeCatalog, logger)
	ledgerHandler := ledger.NewHandler(ledger.New(db, ledgerPublisher, logger), logger)
	ordersHandler := orders.NewHandler(orders.NewOrderRepository(db), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout/{userId}/gateway-order", telemetry.WithHTTPRoute(checkoutHandler.HandleCreateGatewayOrder))
	mux.HandleFunc("GET /checkout/{userId}/preview", telemetry.WithHTTPRoute(checkoutHandler.HandlePreview))
	mux.HandleFunc("POST /checkout/verify", telemetry.WithHTTPRoute(checkoutHandler.HandleVerify))
	mux.HandleFunc("POST /users/{userId}/cart", telemetry.WithHTTPRoute(cartHandler.HandleAddLine))
	mux.HandleFunc("PUT /users/{userId}/cart/{lineId}", telemetry.WithHTTPRoute(cartHandler.HandleUpdateLine))
	mux.HandleFunc("DELETE /users/{userId}/cart/{lineId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveLine))
	mux.HandleFunc("POST /payouts", telemetry.WithHTTPRoute(ledgerHandler.HandleRecordPayout))
	mux.HandleFunc("GET /ledger/vendors", telemetry.WithHTTPRoute(ledgerHandler.HandleApprovedVendors))
	mux.HandleFunc("GET /ledger/vendors/{vendorId}", telemetry.WithHTTPRoute(ledgerHandler.HandleVendor))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleListAll))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("GET /users/{userId}/orders", telemetry.WithHTTPRoute(ordersHandler.HandleListByUser))
	mux.HandleFunc("GET /vendors/{vendorId}/orders", telemetry.WithHTTPRoute(ordersHandler.HandleListByVendor))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateStatus))
	mux.HandleFunc("PATCH /orders/{id}/items/{itemId}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateItemStatus))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "checkout",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout: 10 * time.Second,
		// Settlement may hold the request for its full timeout.
		WriteTimeout: cfg.SettlementTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting checkout service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
