package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 256
	defaultSendTimeout = 10 * time.Second
)

// Config controls dispatcher buffering and per-send timeout.
type Config struct {
	BufferSize  int
	SendTimeout time.Duration
}

// Dispatcher forwards messages to a Sender from a single background worker.
//
// A nil *Dispatcher drops everything, which keeps call sites unconditional.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	logger    *zap.Logger
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	sent      atomic.Uint64
	closeOnce sync.Once

	// mu serializes the closed check in Enqueue against Close, so every
	// accepted message is in ch before done is closed.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery worker. Zero Config fields take the
// package defaults and a nil sender or logger is replaced by a no-op.
func NewDispatcher(cfg Config, sender Sender, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if sender == nil {
		sender = NoOpSender{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	delivery, err := d.sender.Send(ctx, msg)
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn("mail delivery failed",
			zap.String("kind", msg.Kind),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return
	}
	d.sent.Add(1)
	d.logger.Debug("mail delivered",
		zap.String("kind", msg.Kind),
		zap.String("user_id", msg.UserID),
		zap.String("message_id", delivery.MessageID),
	)
}

// Enqueue never blocks. It reports false when the message was dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	if d == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.ch <- msg:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("mail queue full, message dropped",
			zap.String("kind", msg.Kind),
			zap.String("user_id", msg.UserID),
		)
		return false
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Dropped counts messages rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts messages the sender returned an error for.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

// Sent counts messages the sender accepted.
func (d *Dispatcher) Sent() uint64 {
	if d == nil {
		return 0
	}
	return d.sent.Load()
}
