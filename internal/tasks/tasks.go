// Package tasks binds the queue server to the matching pipeline and
// the notification fanout: it owns the task kinds, their payloads and
// retry policies, and the enqueuer implementations the other packages
// consume as interfaces.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rkrishnan/sangam-backend/internal/matching"
	"github.com/rkrishnan/sangam-backend/internal/notification"
	"github.com/rkrishnan/sangam-backend/internal/taskqueue"
)

const (
	KindGenerateAll  = "matching:generate_all"
	KindGenerateUser = "matching:generate_user"
	KindFanout       = "notification:fanout"
	KindEmailSend    = "email:send"
)

type GenerateUserPayload struct {
	MemberID int64 `json:"member_id" validate:"required"`
}

// Dispatcher enqueues work onto the named queues. It is the concrete
// Notifier and BatchEnqueuer the matching package depends on, and the
// EmailEnqueuer the fanout hands emails to.
type Dispatcher struct {
	queue *taskqueue.Server
}

func NewDispatcher(queue *taskqueue.Server) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// Event IDs are derived from the match and recipient so a re-enqueued
// fanout for the same logical event collapses onto one record.
func (d *Dispatcher) EnqueueNewMatch(ctx context.Context, recipientID, matchedID, matchID int64, score float64, delay time.Duration) error {
	return d.queue.EnqueueIn(ctx, KindFanout, &notification.Event{
		EventID:     fmt.Sprintf("new_match:%d:%d", matchID, recipientID),
		RecipientID: recipientID,
		Type:        notification.TypeNewMatch,
		ActorID:     matchedID,
		MatchID:     matchID,
		Score:       score,
	}, delay)
}

func (d *Dispatcher) EnqueueMutualMatch(ctx context.Context, recipientID, matchedID, matchID int64, delay time.Duration) error {
	return d.queue.EnqueueIn(ctx, KindFanout, &notification.Event{
		EventID:     fmt.Sprintf("mutual_match:%d:%d", matchID, recipientID),
		RecipientID: recipientID,
		Type:        notification.TypeMutualMatch,
		ActorID:     matchedID,
		MatchID:     matchID,
	}, delay)
}

func (d *Dispatcher) EnqueueSuperLike(ctx context.Context, recipientID, fromID, matchID int64, delay time.Duration) error {
	return d.queue.EnqueueIn(ctx, KindFanout, &notification.Event{
		EventID:     fmt.Sprintf("super_like:%d:%d", matchID, recipientID),
		RecipientID: recipientID,
		Type:        notification.TypeSuperLike,
		ActorID:     fromID,
		MatchID:     matchID,
	}, delay)
}

func (d *Dispatcher) EnqueueGenerateAll(ctx context.Context) error {
	return d.queue.Enqueue(ctx, KindGenerateAll, struct{}{})
}

func (d *Dispatcher) EnqueueGenerateUser(ctx context.Context, memberID int64) error {
	return d.queue.Enqueue(ctx, KindGenerateUser, &GenerateUserPayload{MemberID: memberID})
}

func (d *Dispatcher) EnqueueEmail(ctx context.Context, msg *notification.EmailMessage) error {
	return d.queue.Enqueue(ctx, KindEmailSend, msg)
}

// RegisterConfig carries the queue sizing and per-kind policy knobs
// from configuration
type RegisterConfig struct {
	MatchingWorkers     int
	NotificationWorkers int
	EmailWorkers        int

	MaxAttempts     int
	BaseBackoff     time.Duration
	BatchTimeout    time.Duration
	GenerateTimeout time.Duration
	NotifyTimeout   time.Duration
	EmailTimeout    time.Duration
}

// Register declares the three queues and binds every task kind to its
// handler. The matching queue stays narrow so a batch run cannot
// starve notification delivery.
func Register(server *taskqueue.Server, pipeline *matching.Pipeline, fanout *notification.Fanout, email notification.EmailSender, cfg RegisterConfig) {
	validate := validator.New()

	server.RegisterQueue(taskqueue.QueueMatching, cfg.MatchingWorkers)
	server.RegisterQueue(taskqueue.QueueNotifications, cfg.NotificationWorkers)
	server.RegisterQueue(taskqueue.QueueEmails, cfg.EmailWorkers)

	server.Register(KindGenerateAll, taskqueue.KindConfig{
		Queue:       taskqueue.QueueMatching,
		Timeout:     cfg.BatchTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		Critical:    true,
	}, func(ctx context.Context, task *taskqueue.Task) error {
		return pipeline.GenerateForAllEligible(ctx)
	})

	server.Register(KindGenerateUser, taskqueue.KindConfig{
		Queue:       taskqueue.QueueMatching,
		Timeout:     cfg.GenerateTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
	}, func(ctx context.Context, task *taskqueue.Task) error {
		var payload GenerateUserPayload
		if err := decode(validate, task, &payload); err != nil {
			return err
		}
		n, err := pipeline.GenerateForUser(ctx, payload.MemberID)
		if err != nil {
			return err
		}
		if n >= 0 {
			log.Printf("tasks: generated %d matches for member %d", n, payload.MemberID)
		}
		return nil
	})

	server.Register(KindFanout, taskqueue.KindConfig{
		Queue:       taskqueue.QueueNotifications,
		Timeout:     cfg.NotifyTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
	}, func(ctx context.Context, task *taskqueue.Task) error {
		var ev notification.Event
		if err := decode(validate, task, &ev); err != nil {
			return err
		}
		return fanout.Deliver(ctx, &ev)
	})

	server.Register(KindEmailSend, taskqueue.KindConfig{
		Queue:       taskqueue.QueueEmails,
		Timeout:     cfg.EmailTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
	}, func(ctx context.Context, task *taskqueue.Task) error {
		var msg notification.EmailMessage
		if err := json.Unmarshal(task.Payload, &msg); err != nil {
			return fmt.Errorf("tasks: decode %s payload: %w", task.Kind, err)
		}
		return email.Send(ctx, &msg)
	})
}

// decode unmarshals and validates a task payload. A payload that fails
// validation can never succeed, so the error is wrapped to read as a
// permanent decode failure in the retry log.
func decode(validate *validator.Validate, task *taskqueue.Task, dst interface{}) error {
	if err := json.Unmarshal(task.Payload, dst); err != nil {
		return fmt.Errorf("tasks: decode %s payload: %w", task.Kind, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("tasks: invalid %s payload: %w", task.Kind, err)
	}
	return nil
}
