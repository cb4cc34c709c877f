package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ariefcatur/surplus-orders/internal/cart"
	"github.com/ariefcatur/surplus-orders/internal/config"
	"github.com/ariefcatur/surplus-orders/internal/directory"
	"github.com/ariefcatur/surplus-orders/internal/gateway"
	"github.com/ariefcatur/surplus-orders/internal/httpx"
	"github.com/ariefcatur/surplus-orders/internal/inventory"
	kafkax "github.com/ariefcatur/surplus-orders/internal/kafka"
	"github.com/ariefcatur/surplus-orders/internal/logging"
	"github.com/ariefcatur/surplus-orders/internal/notify"
	"github.com/ariefcatur/surplus-orders/internal/order"
	"github.com/ariefcatur/surplus-orders/internal/payment"
	"github.com/ariefcatur/surplus-orders/internal/postgres"
	"github.com/ariefcatur/surplus-orders/internal/redisx"
	"github.com/ariefcatur/surplus-orders/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Inventory: Redis holds, Postgres totals
	store := inventory.NewRedisStore(rdb, cfg.HoldTTL, nil)
	inv := &inventory.Service{Store: store, Totals: &inventory.PostgresStock{DB: db}, Log: log}
	if _, err := inv.Warm(ctx); err != nil {
		log.Fatal().Err(err).Msg("warm inventory")
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, order.TopicNotifications, 1024, log)
	prod.Start(ctx)
	dispatcher := &notify.KafkaDispatcher{Producer: prod, Service: cfg.ServiceName, Log: log}

	dir := &directory.Postgres{DB: db}
	ledger := &payment.Ledger{
		Repo:    &payment.PostgresRepository{DB: db},
		Methods: &payment.PostgresMethods{DB: db},
		Gateway: gateway.NewSimulator(),
		Log:     log.With().Str("component", "payment").Logger(),
	}
	machine := &order.Machine{
		Orders:    &order.PostgresRepository{DB: db},
		Payments:  ledger,
		Inventory: store,
		Directory: dir,
		Notifier:  dispatcher,
		Config: order.Config{
			AcceptanceTimeout: cfg.AcceptanceTimeout,
			OrderHoldTTL:      cfg.OrderHoldTTL,
			PickupWindow:      cfg.PickupWindow,
			TaxRate:           cfg.TaxRate,
			Currency:          cfg.Currency,
		},
		Log: log.With().Str("component", "order").Logger(),
	}
	carts := &cart.Service{
		Directory: dir,
		Inventory: store,
		Sessions:  &cart.RedisSessions{RDB: rdb},
		TTL:       cfg.CartTTL,
		Log:       log.With().Str("component", "cart").Logger(),
	}

	// Sweeper
	sw := &sweeper.Sweeper{
		Machine:  machine,
		Orders:   machine.Orders,
		Lease:    redisx.NewLease(rdb, redisx.KeySweepLease, uuid.NewString(), redisx.TTLSweepLease),
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
		Log:      log.With().Str("component", "sweeper").Logger(),
	}
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sw.Run(ctx)
	}()

	// Handlers
	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Machine: machine, Log: log}).Register(router)
	(&httpx.CartsHandler{Carts: carts, Machine: machine, Log: log}).Register(router)
	(&httpx.UnitsHandler{Inventory: inv, Directory: dir, Log: log}).Register(router)
	(&httpx.PaymentsHandler{Ledger: ledger, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop sweeper and producer loop
	<-sweepDone
	prod.Close()
	prod.WaitClosed()
}
