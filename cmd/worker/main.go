package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/bootstrap"
	"github.com/Domenick1991/terminbooking/internal/kafka"
	"github.com/Domenick1991/terminbooking/internal/logger"
	"github.com/Domenick1991/terminbooking/internal/notification"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Database.Driver == "memory" {
		zlog.Fatal("the worker needs the shared postgres store, the app consumes jobs itself with the memory driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.Build(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to build services", zap.Error(err))
	}
	defer stack.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		stack.Dispatcher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := stack.ConsumeJobs(ctx, cfg.RabbitMQ, zlog); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("job consumer stopped", zap.Error(err))
		}
	}()

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.NotificationsTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zlog.Named("notifications"))
		defer consumer.Close()
		sender := notification.NewSender(zlog.Named("sender"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stop()
			err := consumer.ConsumeNotifications(ctx, func(ctx context.Context, n kafka.Notification) error {
				if err := sender.Send(ctx, n); err != nil {
					zlog.Warn("dropping notification", zap.String("template", n.Template), zap.Error(err))
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	zlog.Info("worker started")
	<-ctx.Done()
	wg.Wait()
	zlog.Info("worker stopped")
}
