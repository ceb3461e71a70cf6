// Package notify delivers rendered messages after a sale has committed.
// Delivery is best-effort: failures are retried, parked and logged, and never
// reach the caller that enqueued the message.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type Message struct {
	ID      uuid.UUID `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
}

type Channel interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	SendTimeout time.Duration
	// RetrySchedule is a cron expression for re-queueing dead letters; empty
	// disables the sweep.
	RetrySchedule string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

type Dispatcher struct {
	channel Channel
	cfg     Config
	queue   chan Message
	stop    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	deadMu sync.Mutex
	dead   []Message

	scheduler *cron.Cron
}

func NewDispatcher(channel Channel, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		channel: channel,
		cfg:     cfg,
		queue:   make(chan Message, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
}

// Start launches the workers and, when configured, the dead-letter sweep.
func (d *Dispatcher) Start() error {
	if d.cfg.RetrySchedule != "" {
		d.scheduler = cron.New()
		if _, err := d.scheduler.AddFunc(d.cfg.RetrySchedule, func() {
			if n := d.RetryDeadLetters(); n > 0 {
				log.Printf("notify: re-queued %d dead letters", n)
			}
		}); err != nil {
			return fmt.Errorf("schedule dead-letter sweep: %w", err)
		}
		d.scheduler.Start()
	}

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return nil
}

// Enqueue hands msg to the workers without blocking. It reports false when
// the queue is full or the dispatcher is closed; the message is then dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	select {
	case d.queue <- msg:
		return true
	default:
		log.Printf("notify: queue full, dropping message %s to %s", msg.ID, msg.To)
		return false
	}
}

func (d *Dispatcher) DeadLetters() []Message {
	d.deadMu.Lock()
	defer d.deadMu.Unlock()
	out := make([]Message, len(d.dead))
	copy(out, d.dead)
	return out
}

// RetryDeadLetters moves parked messages back onto the queue and returns how
// many were re-queued. Messages that do not fit stay parked.
func (d *Dispatcher) RetryDeadLetters() int {
	d.deadMu.Lock()
	pending := d.dead
	d.dead = nil
	d.deadMu.Unlock()

	requeued := 0
	var keep []Message
	for _, msg := range pending {
		if d.Enqueue(msg) {
			requeued++
			continue
		}
		keep = append(keep, msg)
	}
	if len(keep) > 0 {
		d.deadMu.Lock()
		d.dead = append(keep, d.dead...)
		d.deadMu.Unlock()
	}
	return requeued
}

// Close stops the sweep, lets the workers finish what is queued and waits
// for them. Retries still waiting on backoff are parked instead.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	close(d.queue)
	d.mu.Unlock()

	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		err := d.channel.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		log.Printf("notify: attempt %d/%d for message %s to %s failed: %v", attempt, d.cfg.MaxAttempts, msg.ID, msg.To, err)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
		case <-d.stop:
			attempt = d.cfg.MaxAttempts
		}
	}

	d.deadMu.Lock()
	d.dead = append(d.dead, msg)
	d.deadMu.Unlock()
	log.Printf("notify: message %s to %s parked as dead letter", msg.ID, msg.To)
}
