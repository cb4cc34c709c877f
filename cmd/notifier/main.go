package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/surplus-orders/internal/config"
	kafkax "github.com/ariefcatur/surplus-orders/internal/kafka"
	"github.com/ariefcatur/surplus-orders/internal/logging"
	"github.com/ariefcatur/surplus-orders/internal/notify"
	"github.com/ariefcatur/surplus-orders/internal/order"
	"github.com/ariefcatur/surplus-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.ServiceName+"-notifier", cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis holds the per-event dedupe keys
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &notify.Handler{
		Sender: notify.LogSender{Log: log},
		Seen:   rdb,
		Log:    log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, order.TopicNotifications, cfg.NotifierWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().Str("group", cfg.NotifierGroup).Str("topic", order.TopicNotifications).
			Int("workers", cfg.NotifierWorkers).Msg("notifier consumer started")
		if err := cons.Start(ctx, h.Handle); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down notifier")
	cancel()
	<-done
}
