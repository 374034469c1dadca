// Package taskqueue is a small named-queue task system: typed task
// envelopes submitted to named queues, executed by worker pools with
// at-least-once delivery, per-kind timeouts and capped exponential
// retry backoff.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue names used by the worker process
const (
	QueueMatching      = "matching"
	QueueNotifications = "notifications"
	QueueEmails        = "emails"
)

// Task is the wire envelope carried through a queue
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler executes one task. A returned error reschedules the task
// until its kind's attempt budget is exhausted.
type Handler func(ctx context.Context, task *Task) error

// KindConfig is the per-task-kind execution policy
type KindConfig struct {
	Queue       string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration

	// Critical escalates permanent failure to an operational alert
	// instead of a plain error log.
	Critical bool
}

// Broker moves raw task bytes through named queues. Delayed tasks are
// held separately until due and promoted onto the ready queue.
type Broker interface {
	Push(ctx context.Context, queue string, data []byte) error
	PushDelayed(ctx context.Context, queue string, data []byte, due time.Time) error

	// Pop blocks up to the given duration; returns (nil, nil) when
	// nothing arrived.
	Pop(ctx context.Context, queue string, block time.Duration) ([]byte, error)
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)
}

// Server owns the handler registry and the worker pools
type Server struct {
	broker   Broker
	mu       sync.RWMutex
	kinds    map[string]KindConfig
	handlers map[string]Handler
	queues   map[string]int
}

func NewServer(broker Broker) *Server {
	return &Server{
		broker:   broker,
		kinds:    make(map[string]KindConfig),
		handlers: make(map[string]Handler),
		queues:   make(map[string]int),
	}
}

// RegisterQueue sets the worker count for a named queue
func (s *Server) RegisterQueue(name string, workers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[name] = workers
}

// Register binds a task kind to its policy and handler
func (s *Server) Register(kind string, cfg KindConfig, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind] = cfg
	s.handlers[kind] = h
}

// Enqueue submits a task for immediate execution
func (s *Server) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	return s.EnqueueIn(ctx, kind, payload, 0)
}

// EnqueueIn submits a task to run after the given delay
func (s *Server) EnqueueIn(ctx context.Context, kind string, payload interface{}, delay time.Duration) error {
	s.mu.RLock()
	cfg, ok := s.kinds[kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("taskqueue: unknown task kind %q", kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal payload for %s: %w", kind, err)
	}

	task := &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    body,
		Attempt:    0,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal task %s: %w", kind, err)
	}

	tasksEnqueued.WithLabelValues(kind).Inc()
	if delay > 0 {
		return s.broker.PushDelayed(ctx, cfg.Queue, data, time.Now().Add(delay))
	}
	return s.broker.Push(ctx, cfg.Queue, data)
}

// Run starts the worker pools and the delayed-task promoters and
// blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup

	s.mu.RLock()
	queues := make(map[string]int, len(s.queues))
	for q, n := range s.queues {
		queues[q] = n
	}
	s.mu.RUnlock()

	for queue, workers := range queues {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			s.promoteLoop(ctx, q)
		}(queue)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(q string) {
				defer wg.Done()
				s.workerLoop(ctx, q)
			}(queue)
		}
		log.Printf("taskqueue: started %d workers on queue %q", workers, queue)
	}

	wg.Wait()
}

func (s *Server) promoteLoop(ctx context.Context, queue string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.broker.PromoteDue(ctx, queue, time.Now()); err != nil && ctx.Err() == nil {
				log.Printf("taskqueue: promote on %q failed: %v", queue, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) workerLoop(ctx context.Context, queue string) {
	for {
		if ctx.Err() != nil {
			return
		}

		data, err := s.broker.Pop(ctx, queue, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("taskqueue: pop on %q failed: %v", queue, err)
			time.Sleep(time.Second)
			continue
		}
		if data == nil {
			continue
		}

		s.execute(ctx, queue, data)
	}
}

func (s *Server) execute(ctx context.Context, queue string, data []byte) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		log.Printf("taskqueue: dropping malformed task on %q: %v", queue, err)
		return
	}

	s.mu.RLock()
	cfg, okCfg := s.kinds[task.Kind]
	handler, okHandler := s.handlers[task.Kind]
	s.mu.RUnlock()
	if !okCfg || !okHandler {
		log.Printf("taskqueue: dropping task %s with unknown kind %q", task.ID, task.Kind)
		return
	}

	task.Attempt++

	runCtx := ctx
	cancel := func() {}
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	err := handler(runCtx, &task)
	cancel()

	if err == nil {
		tasksCompleted.WithLabelValues(task.Kind).Inc()
		return
	}

	if task.Attempt >= cfg.MaxAttempts {
		tasksFailed.WithLabelValues(task.Kind).Inc()
		if cfg.Critical {
			log.Printf("CRITICAL taskqueue: task %s kind=%s permanently failed after %d attempts: %v",
				task.ID, task.Kind, task.Attempt, err)
		} else {
			log.Printf("taskqueue: task %s kind=%s permanently failed after %d attempts: %v",
				task.ID, task.Kind, task.Attempt, err)
		}
		return
	}

	tasksRetried.WithLabelValues(task.Kind).Inc()
	backoff := backoffFor(cfg.BaseBackoff, task.Attempt)
	log.Printf("taskqueue: task %s kind=%s attempt=%d failed, retrying in %v: %v",
		task.ID, task.Kind, task.Attempt, backoff, err)

	retryData, marshalErr := json.Marshal(&task)
	if marshalErr != nil {
		log.Printf("taskqueue: failed to remarshal task %s for retry: %v", task.ID, marshalErr)
		return
	}
	if pushErr := s.broker.PushDelayed(ctx, queue, retryData, time.Now().Add(backoff)); pushErr != nil {
		log.Printf("taskqueue: failed to reschedule task %s: %v", task.ID, pushErr)
	}
}

// backoffFor doubles the base per completed attempt, capped at 10m
func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
