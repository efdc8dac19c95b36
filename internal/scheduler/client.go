package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"clinic_booking_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueue    = "default"
	maxTaskRetry    = 5
	taskIDRetention = 24 * time.Hour
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client hands notifications to the worker through asynq. It satisfies the
// appointments NotificationGateway, so a booking returns once its
// notifications are queued rather than delivered.
type Client struct {
	client enqueuer
	queue  string
}

// NewClient connects an asynq client to the configured Redis.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

// Close releases the Redis connection. It is safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ReserveDoctorSlot queues the doctor calendar update.
func (c *Client) ReserveDoctorSlot(ctx context.Context, doctorID int64, start, end time.Time) error {
	payload := ReserveDoctorSlotPayload{DoctorID: doctorID, StartTime: start.UTC(), EndTime: end.UTC()}
	task, err := NewReserveDoctorSlotTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, payload.TaskID())
}

// ReserveRoom queues the external room reservation.
func (c *Client) ReserveRoom(ctx context.Context, roomID int64, start, end time.Time) error {
	payload := ReserveRoomPayload{RoomID: roomID, StartTime: start.UTC(), EndTime: end.UTC()}
	task, err := NewReserveRoomTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, payload.TaskID())
}

// SendConfirmation queues the confirmation email.
func (c *Client) SendConfirmation(ctx context.Context, toEmail, subject, body string) error {
	payload := SendConfirmationPayload{ToEmail: toEmail, Subject: subject, Body: body}
	task, err := NewSendConfirmationTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, payload.TaskID())
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, id string) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(id),
		asynq.MaxRetry(maxTaskRetry),
		asynq.Retention(taskIDRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return defaultQueue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func redisOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}
