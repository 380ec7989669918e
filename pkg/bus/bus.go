package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kosmos-research/kosmos/internal/observe"
)

// ErrQueueFull is returned by [Bus.Send] when the inbox is at capacity. It is
// the one transient failure mode the bus itself recognises; senders retry it
// via [Bus.SendWithRetry] (§4.7 "transient message failures are retried by
// the sender").
var ErrQueueFull = errors.New("bus: message queue full")

// ErrClosed is returned by [Bus.Send] once [Bus.Close] has been called.
var ErrClosed = errors.New("bus: closed")

// ErrNoHandler names the condition of a message arriving for a (sender,
// type) pair with no registered handler. The dispatch loop does not return
// it: such a message is logged as a warning and dropped.
var ErrNoHandler = errors.New("bus: no handler registered")

const defaultQueueDepth = 256

// Bus dispatches [Message] values to registered [Handler]s. A single inbox
// channel preserves the send order of every individual sender (a stronger
// guarantee than §4.6 requires — only per-sender FIFO is promised — but one
// that a shared buffered channel gives for free); a single consumer
// goroutine invokes handlers one at a time, matching §5's "each handler
// re-enters the director through the message bus, where handlers run
// serialized."
type Bus struct {
	mu       sync.Mutex
	handlers map[handlerKey]Handler
	cancels  map[string]context.CancelFunc

	inbox  chan Message
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Bus with the given inbox capacity. A capacity of 0 uses
// the default (256).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultQueueDepth
	}
	return &Bus{
		handlers: make(map[handlerKey]Handler),
		cancels:  make(map[string]context.CancelFunc),
		inbox:    make(chan Message, capacity),
		done:     make(chan struct{}),
	}
}

// RegisterHandler registers handler to process every message whose Sender is
// fromAgent and whose Type is responseType, per the (from_agent,
// response_type) keying §4.6 specifies. A later registration for the same
// pair replaces the earlier one.
func (b *Bus) RegisterHandler(fromAgent, responseType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handlerKey{fromAgent: fromAgent, responseType: responseType}] = handler
}

// Send enqueues msg for dispatch. It does not block waiting for a free slot;
// a full inbox returns [ErrQueueFull] immediately so the caller can retry
// (see [Bus.SendWithRetry]).
func (b *Bus) Send(ctx context.Context, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	select {
	case b.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// SendWithRetry sends msg, retrying on [ErrQueueFull] with exponential
// backoff until ctx is cancelled or a non-transient error occurs.
func (b *Bus) SendWithRetry(ctx context.Context, msg Message) error {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := b.Send(ctx, msg)
		if errors.Is(err, ErrQueueFull) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, bo)
}

// Cancel propagates a cancellation signal for every in-flight handler
// invocation tagged with correlationID (§4.6, §5). Handlers observe
// cancellation cooperatively via ctx.Done() at their suspension points; Cancel
// does not forcibly interrupt a running handler.
func (b *Bus) Cancel(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[correlationID]; ok {
		cancel()
	}
}

// Run starts the single dispatch loop and blocks until ctx is cancelled or
// Close is called. Run must be called exactly once; callers typically invoke
// it from a dedicated goroutine.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case msg := <-b.inbox:
			observe.DefaultMetrics().RecordBusMessage(ctx, msg.Sender, msg.Type)
			b.dispatch(ctx, msg)
		}
	}
}

func (b *Bus) dispatch(parent context.Context, msg Message) {
	b.mu.Lock()
	handler, ok := b.handlers[handlerKey{fromAgent: msg.Sender, responseType: msg.Type}]
	var cancel context.CancelFunc
	var ctx context.Context
	if msg.CorrelationID != "" {
		ctx, cancel = context.WithCancel(parent)
		b.cancels[msg.CorrelationID] = cancel
	} else {
		ctx = parent
	}
	b.mu.Unlock()

	if cancel != nil {
		defer func() {
			b.mu.Lock()
			delete(b.cancels, msg.CorrelationID)
			b.mu.Unlock()
			cancel()
		}()
	}

	if !ok {
		slog.Warn("bus: no handler for message", "sender", msg.Sender, "type", msg.Type,
			"correlation_id", msg.CorrelationID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.Error("bus: handler failed", "sender", msg.Sender, "type", msg.Type,
			"correlation_id", msg.CorrelationID, "error", err)
	}
}

// Close stops the dispatch loop and releases any in-flight cancellation
// functions. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = make(map[string]context.CancelFunc)
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
}
