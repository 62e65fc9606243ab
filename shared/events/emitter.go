package events

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
)

var ErrEmitterClosed = errors.New("event emitter closed")

// Emitter hands events to background workers so a command can return as soon as
// its durable write has committed. Events are sharded by TransactionID onto FIFO
// queues; each queue has one worker, so events for a transaction are published
// in the order they were emitted, and a retrying event holds back later events
// for the same shard.
type Emitter struct {
	publisher *Publisher
	shards    []chan Event
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	log       zerolog.Logger
}

// NewEmitter starts shards workers, each with a queue of buffer events.
func NewEmitter(publisher *Publisher, shards, buffer int, log zerolog.Logger) *Emitter {
	if shards <= 0 {
		shards = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	e := &Emitter{
		publisher: publisher,
		shards:    make([]chan Event, shards),
		log:       log,
	}
	for i := range e.shards {
		ch := make(chan Event, buffer)
		e.shards[i] = ch
		e.wg.Add(1)
		go e.run(ch)
	}
	return e
}

// Emit queues event for publishing. It never fails the caller: if ctx ends
// before the event is queued, or the emitter is closed, the event goes straight
// to the dead-letter path.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.publisher.DeadLetter(ctx, event, 0, ErrEmitterClosed)
		return
	}

	select {
	case e.shardFor(event.TransactionID) <- event:
	case <-ctx.Done():
		e.publisher.DeadLetter(ctx, event, 0, ctx.Err())
	}
}

// Close stops accepting events and waits until every queued event has been
// published or dead-lettered.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, ch := range e.shards {
		close(ch)
	}
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Emitter) run(queue <-chan Event) {
	defer e.wg.Done()
	for event := range queue {
		// Publish dead-letters on failure; the error is already logged there.
		if err := e.publisher.Publish(context.Background(), event); err == nil {
			e.log.Debug().
				Str("event_type", event.Type).
				Str("transaction_id", event.TransactionID).
				Msg("event published")
		}
	}
}

func (e *Emitter) shardFor(transactionID string) chan Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(transactionID))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}
