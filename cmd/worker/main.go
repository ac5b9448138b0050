package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/chatapp/internal/config"
	"github.com/suPer8Hu/chatapp/internal/db"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"github.com/suPer8Hu/chatapp/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatapp/internal/usage"
	"gorm.io/gorm"
)

const (
	maxRetries     = 3
	retryDelay     = 5 * time.Second
	reconnectDelay = time.Second
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.AppEnv)
	log := logging.For("worker")

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required")
	}

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	if err := db.Migrate(gdb); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	rec := usage.NewStoreRecorder(usage.NewRepo(gdb), cfg.UsageCostPer1KTokens)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"queue":       cfg.RabbitQueue,
		"concurrency": cfg.WorkerConcurrency,
	}).Info("worker started")

	for {
		err := consume(ctx, cfg, handler(rec, log))
		if ctx.Err() != nil {
			log.Info("worker shutting down")
			return
		}
		log.WithError(err).Warn("consumer stopped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func consume(ctx context.Context, cfg config.Config, h rabbitmq.Handler) error {
	c, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, rabbitmq.ConsumerOptions{
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  maxRetries,
		RetryDelay:  retryDelay,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Run(ctx, h)
}

// handler stores one usage event. Bodies that can never succeed are marked
// permanent so they skip the retry queue.
func handler(rec *usage.StoreRecorder, log *logrus.Entry) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) error {
		start := time.Now()
		err := usage.HandleDelivery(ctx, rec, body)
		switch {
		case err == nil:
			if cost := time.Since(start); cost > 500*time.Millisecond {
				log.WithField("cost", cost.String()).Warn("slow usage write")
			}
			return nil
		case errors.Is(err, usage.ErrBadEvent), errors.Is(err, gorm.ErrForeignKeyViolated):
			return fmt.Errorf("%w: %v", rabbitmq.ErrPermanent, err)
		default:
			return err
		}
	}
}
