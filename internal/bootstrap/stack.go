package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/cache"
	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/events"
	"github.com/Domenick1991/terminbooking/internal/jobs"
	"github.com/Domenick1991/terminbooking/internal/kafka"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/Domenick1991/terminbooking/internal/repository/memory"
	"github.com/Domenick1991/terminbooking/internal/service/availability"
	"github.com/Domenick1991/terminbooking/internal/service/booking"
	"github.com/Domenick1991/terminbooking/internal/service/queue"
	"github.com/Domenick1991/terminbooking/internal/service/waitlist"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Repositories struct {
	Appointments repository.AppointmentRepository
	Schedules    repository.ScheduleRepository
	Queue        repository.QueueRepository
	Waitlist     repository.WaitlistRepository
}

// Stack is everything the app and worker processes share.
type Stack struct {
	Repos        Repositories
	Cache        *cache.RedisCache
	Dispatcher   *events.Dispatcher
	Availability *availability.AvailabilityService
	Booking      *booking.BookingService
	Queue        *queue.QueueService
	Waitlist     *waitlist.WaitlistService
	Rabbit       *amqp.Connection
	Scheduler    *jobs.RabbitScheduler

	closers []func()
}

// OpenRepositories connects the configured store. The returned func releases it.
func OpenRepositories(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (Repositories, func(), error) {
	if cfg.Driver == "memory" {
		store := memory.NewStore()
		if cfg.SeedPath != "" {
			if err := store.LoadSeedFile(cfg.SeedPath); err != nil {
				return Repositories{}, nil, err
			}
		}
		log.Warn("using in-memory store, state is lost on restart")
		return Repositories{
			Appointments: store.Appointments(),
			Schedules:    store.Schedules(),
			Queue:        store.Queue(),
			Waitlist:     store.Waitlist(),
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return Repositories{}, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return Repositories{}, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return Repositories{
		Appointments: repository.NewAppointmentRepository(pool),
		Schedules:    repository.NewScheduleRepository(pool),
		Queue:        repository.NewQueueRepository(pool),
		Waitlist:     repository.NewWaitlistRepository(pool),
	}, pool.Close, nil
}

// Build connects the infrastructure and assembles the services. On error
// everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *Stack, err error) {
	s := &Stack{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	repos, closeRepos, err := OpenRepositories(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeRepos)
	repos.Schedules = repository.NewCachedScheduleRepository(
		repos.Schedules,
		cfg.Schedule.RulesCacheSize,
		time.Duration(cfg.Schedule.RulesCacheTTLSeconds)*time.Second,
	)
	s.Repos = repos

	s.Cache = cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.SlotCacheTTLSeconds)*time.Second)
	s.closers = append(s.closers, func() { _ = s.Cache.Close() })
	if err := s.Cache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	var producer events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewProducer(cfg.Kafka.Brokers, log)
		s.closers = append(s.closers, func() { _ = p.Close() })
		if err := p.CheckConnection(ctx); err != nil {
			log.Warn("kafka is not reachable, events are dropped until it is", zap.Error(err))
		}
		producer = p
	} else {
		log.Warn("no kafka brokers configured, events and notifications are not published")
	}
	s.Dispatcher = events.NewDispatcher(s.Cache, producer, events.Options{
		Buffer:             cfg.Queue.EventBuffer,
		EventsTopic:        cfg.Kafka.EventsTopic,
		NotificationsTopic: cfg.Kafka.NotificationsTopic,
		ConfirmURLBase:     cfg.Waitlist.ConfirmURLBase,
	}, log)

	s.Rabbit, err = jobs.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = s.Rabbit.Close() })
	s.Scheduler, err = jobs.NewRabbitScheduler(s.Rabbit, cfg.RabbitMQ, clock.Real{})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = s.Scheduler.Close() })

	clk := clock.Real{}
	s.Availability = availability.NewAvailabilityService(repos.Schedules, repos.Appointments, s.Cache, clk, availability.Options{
		SlotBufferMinutes: cfg.Booking.SlotBufferMinutes,
		MinAdvance:        time.Duration(cfg.Booking.MinAdvanceHours) * time.Hour,
		MaxAdvance:        time.Duration(cfg.Booking.MaxAdvanceDays) * 24 * time.Hour,
		PublicHolidays:    cfg.Schedule.PublicHolidays,
	}, log.Named("availability"))

	s.Waitlist = waitlist.NewWaitlistService(repos.Waitlist, repos.Schedules, s.Scheduler, s.Availability, s.Dispatcher, clk, waitlist.Options{
		OfferWindow: time.Duration(cfg.Waitlist.OfferWindowMinutes) * time.Minute,
	}, log.Named("waitlist"))

	s.Booking = booking.NewBookingService(repos.Appointments, repos.Schedules, s.Cache, s.Availability, s.Dispatcher, s.Waitlist, clk, booking.Options{
		LockTTL:    time.Duration(cfg.Booking.LockTTLSeconds) * time.Second,
		CancelLead: time.Duration(cfg.Booking.CancelLeadHours) * time.Hour,
		CodePrefix: cfg.Booking.CodePrefix,
	}, log.Named("booking"))

	s.Queue = queue.NewQueueService(repos.Queue, repos.Schedules, s.Cache, s.Dispatcher, clk, log.Named("queue"))
	return s, nil
}

// ConsumeJobs runs the waitlist job consumer until ctx is done.
func (s *Stack) ConsumeJobs(ctx context.Context, cfg config.RabbitMQConfig, log *zap.Logger) error {
	consumer, err := jobs.NewConsumer(s.Rabbit, cfg, s.Scheduler, clock.Real{}, log.Named("jobs"))
	if err != nil {
		return err
	}
	defer consumer.Close()
	return consumer.Consume(ctx, s.Waitlist.HandleJob)
}

// Close releases resources in reverse order of acquisition.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
