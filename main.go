package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appnotification "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/notification"
	apporder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/order"
	apppayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/payment"
	appshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/shipment"
	appstock "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	domnotif "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	domoutbox "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	dompayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	domproduct "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/amqp"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/carrier"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/gateway"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/id"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/notify"
	infraobservability "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/observability/oteltrace"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/observability/prometrics"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/observability/zaplogger"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/outbox"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/postgres"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	httppresentation "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/presentation/http"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	tel := buildObservability(cfg, logger)
	log := tel.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. DATABASE_URL moves products and the order-number sequence onto
	// postgres; everything else stays in memory.
	var (
		products  domproduct.Repository    = memory.NewProductRepository()
		sequencer apporder.NumberSequencer = memory.NewNumberSequencer()
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		products = postgres.NewProductRepository(pool)
		sequencer = postgres.NewNumberSequencer(pool)
		log.Info("postgres_connected")
	}

	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	payments := memory.NewPaymentRepository()
	notifications := memory.NewNotificationRepository()
	preferences := memory.NewPreferenceRepository()
	shipments := memory.NewShipmentRepository()

	// Event plumbing: in-memory bus for the saga subscribers, optionally
	// mirrored to RabbitMQ for external consumers.
	bus := outbox.NewBus(log)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	var publisher domoutbox.Publisher = bus
	if cfg.AMQPURL != "" {
		mirror, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Error("amqp_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer mirror.Close()
		publisher = amqp.Fanout{bus, mirror}
		log.Info("amqp_connected", observability.F("exchange", cfg.AMQPExchange))
	}

	idGen := id.NewUUIDGenerator()
	ledger := appstock.NewLedger(products, log)

	materializer := apporder.NewMaterializer(orders, carts, products, ledger, sequencer, idGen, publisher, cfg.TaxRate, tel)
	orderService := apporder.NewService(orders, ledger, publisher, log)

	gateways := buildGateways(cfg)
	checkout := apppayment.NewCheckoutService(payments, carts, gateways, idGen, log)
	reconciler := apppayment.NewReconciler(payments, materializer, gateways, tel)

	dispatcher := appnotification.NewDispatcher(notifications, preferences, buildNotifyProviders(cfg), idGen, tel)
	notificationWorker := appnotification.NewWorker(bus, dispatcher, log)
	notificationWorker.Start()
	scheduler := appnotification.NewScheduler(notifications, dispatcher, tel).
		WithIntervals(cfg.NotificationDueInterval, cfg.NotificationRetryInterval)
	scheduler.Start(ctx)

	carrierClient := carrier.NewClient(cfg.CarrierBaseURL, cfg.CarrierAPIKey)
	orchestrator := appshipment.NewOrchestrator(shipments, orders, carrierClient, idGen, publisher, tel)
	tracking := appshipment.NewTrackingReconciler(shipments, orders, carrierClient, publisher, tel).
		WithInterval(cfg.TrackingSweepInterval, cfg.TrackingStaleAfter)
	tracking.Start(ctx)

	handler := httppresentation.NewHandler(checkout, reconciler, orderService, orchestrator, dispatcher, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		log.Info("http_server_stopped")
	}
}

func buildObservability(cfg *config.Config, logger observability.Logger) observability.Observability {
	registry := prometrics.New(cfg.ServiceName, "")

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests served.",
			"method", "route", "status",
		),
		observability.MExternalRequests: registry.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external peers.",
			"peer", "endpoint", "outcome",
		),
		observability.MSweepRuns: registry.Counter(
			string(observability.MSweepRuns),
			"Total number of background sweep executions.",
			"sweep", "outcome",
		),
		observability.MSweepItems: registry.Counter(
			string(observability.MSweepItems),
			"Total number of rows processed by background sweeps.",
			"sweep",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			prometheus.DefBuckets,
			"use_case",
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			prometheus.DefBuckets,
			"method", "route",
		),
	}

	return infraobservability.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
}

func buildGateways(cfg *config.Config) apppayment.GatewayResolver {
	clients := make(map[dompayment.Provider]apppayment.Gateway)
	if cfg.PayPalBaseURL != "" {
		clients[dompayment.ProviderPayPal] = gateway.NewClient(dompayment.ProviderPayPal, cfg.PayPalBaseURL, cfg.PayPalAPIKey)
	}
	if cfg.MercadoPagoBaseURL != "" {
		clients[dompayment.ProviderMercadoPago] = gateway.NewClient(dompayment.ProviderMercadoPago, cfg.MercadoPagoBaseURL, cfg.MercadoPagoAPIKey)
	}
	return func(provider dompayment.Provider) apppayment.Gateway {
		return clients[provider]
	}
}

func buildNotifyProviders(cfg *config.Config) appnotification.ProviderResolver {
	providers := make(map[domnotif.Channel]appnotification.Provider)
	if cfg.EmailEndpoint != "" {
		providers[domnotif.ChannelEmail] = notify.NewHTTPProvider(domnotif.ChannelEmail, cfg.EmailEndpoint, cfg.NotifyAPIKey)
	}
	if cfg.SMSEndpoint != "" {
		providers[domnotif.ChannelSMS] = notify.NewHTTPProvider(domnotif.ChannelSMS, cfg.SMSEndpoint, cfg.NotifyAPIKey)
	}
	if cfg.PushEndpoint != "" {
		providers[domnotif.ChannelPush] = notify.NewHTTPProvider(domnotif.ChannelPush, cfg.PushEndpoint, cfg.NotifyAPIKey)
	}
	// in_app intentionally has no provider; those notifications are stored.
	return func(ch domnotif.Channel) appnotification.Provider {
		return providers[ch]
	}
}
