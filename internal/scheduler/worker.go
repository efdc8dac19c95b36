package scheduler

import (
	"context"
	"fmt"
	"time"

	"clinic_booking_backend/internal/appointments/service"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	doneKeyPrefix = "clinic:notifications:done:"
	doneKeyTTL    = 7 * 24 * time.Hour
)

// Processor runs notification tasks against a gateway. asynq delivers at
// least once, so completed task ids are remembered in Redis and repeats
// are acknowledged without running again.
type Processor struct {
	gateway service.NotificationGateway
	redis   redis.UniversalClient
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewProcessor returns a Processor that records completed tasks in rdb.
func NewProcessor(gateway service.NotificationGateway, rdb redis.UniversalClient, log *logger.Logger, m *metrics.Collector) *Processor {
	return &Processor{gateway: gateway, redis: rdb, log: log, metrics: m}
}

// Register binds the notification task types to their handlers on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskReserveDoctorSlot, p.handleReserveDoctorSlot)
	mux.HandleFunc(TaskReserveRoom, p.handleReserveRoom)
	mux.HandleFunc(TaskSendConfirmation, p.handleSendConfirmation)
}

func (p *Processor) handleReserveDoctorSlot(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReserveDoctorSlotPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return p.once(ctx, "doctor_calendar", payload.TaskID(), func(ctx context.Context) error {
		return p.gateway.ReserveDoctorSlot(ctx, payload.DoctorID, payload.StartTime, payload.EndTime)
	})
}

func (p *Processor) handleReserveRoom(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReserveRoomPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return p.once(ctx, "room_reservation", payload.TaskID(), func(ctx context.Context) error {
		return p.gateway.ReserveRoom(ctx, payload.RoomID, payload.StartTime, payload.EndTime)
	})
}

func (p *Processor) handleSendConfirmation(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSendConfirmationPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return p.once(ctx, "email", payload.TaskID(), func(ctx context.Context) error {
		return p.gateway.SendConfirmation(ctx, payload.ToEmail, payload.Subject, payload.Body)
	})
}

func (p *Processor) once(ctx context.Context, channel, id string, run func(context.Context) error) error {
	key := doneKeyPrefix + id

	done, err := p.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check task %s: %w", id, err)
	}
	if done > 0 {
		p.log.WithContext(ctx).Debug("notification already delivered", "channel", channel, "task_id", id)
		return nil
	}

	err = run(ctx)
	p.metrics.ObserveNotification(channel, err)
	if err != nil {
		p.log.WithContext(ctx).Warn("notification task failed", "channel", channel, "task_id", id, "error", err)
		return err
	}

	// A failure here means a possible repeat delivery, not a lost one.
	if err := p.redis.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), doneKeyTTL).Err(); err != nil {
		p.log.WithContext(ctx).Warn("failed to record delivered notification", "channel", channel, "task_id", id, "error", err)
	}
	return nil
}

// Worker runs the asynq server for the notification queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	redis  *redis.Client
	log    *logger.Logger
}

// NewWorker builds the asynq server and registers a Processor on its mux.
func NewWorker(cfg config.SchedulerConfig, gateway service.NotificationGateway, log *logger.Logger, m *metrics.Collector) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	rdbOpt, err := redisOptions(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	rdb := redis.NewClient(rdbOpt)
	mux := asynq.NewServeMux()
	NewProcessor(gateway, rdb, log, m).Register(mux)

	return &Worker{
		server: server,
		mux:    mux,
		redis:  rdb,
		log:    log,
	}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	defer func() {
		_ = w.redis.Close()
	}()

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
