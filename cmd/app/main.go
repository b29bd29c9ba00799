package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/terminbooking/api"
	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/bootstrap"
	"github.com/Domenick1991/terminbooking/internal/logger"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.Build(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to build services", zap.Error(err))
	}
	defer stack.Close()

	dispatched := make(chan struct{})
	go func() {
		stack.Dispatcher.Run(ctx)
		close(dispatched)
	}()

	// The memory store is private to this process, so its waitlist jobs
	// cannot be handled by a separate worker.
	if cfg.Database.Driver == "memory" {
		go func() {
			if err := stack.ConsumeJobs(ctx, cfg.RabbitMQ, zlog); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("job consumer stopped", zap.Error(err))
			}
		}()
	}

	err = bootstrap.Run(ctx, cfg.HTTP, zlog,
		bootstrap.Route{Prefix: "/bookings", Handler: api.NewBookingHandler(stack.Booking)},
		bootstrap.Route{Prefix: "/availability", Handler: api.NewAvailabilityHandler(stack.Availability)},
		bootstrap.Route{Prefix: "/queue", Handler: api.NewQueueHandler(stack.Queue)},
		bootstrap.Route{Prefix: "/waitlist", Handler: api.NewWaitlistHandler(stack.Waitlist)},
	)
	stop()
	<-dispatched
	if err != nil {
		zlog.Error("server error", zap.Error(err))
	}
}
