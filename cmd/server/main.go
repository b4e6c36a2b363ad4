package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/infrastructure/dispatch"
	"github.com/alumnet-hq/alumnet/modules/enrollment/infrastructure/persistence"
	"github.com/alumnet-hq/alumnet/modules/enrollment/presentation/controllers"
	"github.com/alumnet-hq/alumnet/modules/enrollment/services"
	"github.com/alumnet-hq/alumnet/pkg/composables"
	"github.com/alumnet-hq/alumnet/pkg/configuration"
	"github.com/alumnet-hq/alumnet/pkg/eventbus"
	"github.com/alumnet-hq/alumnet/pkg/outbox"
)

func main() {
	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.ConnectionString())
	if err != nil {
		logger.WithError(err).Fatal("failed to create database pool")
	}
	defer pool.Close()

	bus := eventbus.NewEventPublisher(logger)
	clock := clockwork.NewRealClock()

	requests := persistence.NewRequestRepository()
	offerings := persistence.NewOfferingRepository()
	pools := persistence.NewCapacityRepository()
	wallet := persistence.NewWalletService()

	// The Postgres gate joins the admission transaction. The Redis gate
	// trades that for cheaper hot-path reservations; admissions compensate
	// failed inserts with an explicit release.
	var gate capacity.Gate = pools
	if conf.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		gate = persistence.NewRedisCapacityGate(client)
		logger.Info("capacity gate: redis at " + conf.Redis.Addr)
	}

	publisher := outbox.NewPublisher()
	admission := services.NewAdmissionService(requests, offerings, gate, bus, clock, logger)
	transitions := services.NewRequestService(requests, publisher, clock)
	cancellation := services.NewCancellationService(
		requests, offerings, gate, wallet, publisher,
		clock, logger, conf.Wallet.Timeout,
	)

	relay, err := outbox.NewRelay(pool, dispatch.NewEventBusDispatcher(bus, logger), outbox.RelayOptions{
		PollInterval: conf.Outbox.PollInterval,
		BatchSize:    conf.Outbox.BatchSize,
		MaxAttempts:  conf.Outbox.MaxAttempts,
		MaxBackoff:   conf.Outbox.MaxBackoff,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create outbox relay")
	}
	go func() {
		if err := relay.Run(composables.WithPool(ctx, pool)); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("outbox relay stopped")
		}
	}()

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	controllers.NewEnrollmentAPIController(admission, transitions, cancellation, logger).Register(router)

	srv := &http.Server{
		Addr:              conf.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return composables.WithPool(context.Background(), pool)
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server shutdown failed")
		}
	}()

	logger.Info("listening on " + conf.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server failed")
	}
}
