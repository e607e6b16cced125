package kitchen

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"cafe-pos/logger"
)

// Observer receives hub statistics; *metrics.Metrics satisfies it.
type Observer interface {
	EventPublished(action string)
	EventDropped()
	SubscribersChanged(n int)
}

type nopObserver struct{}

func (nopObserver) EventPublished(string)  {}
func (nopObserver) EventDropped()          {}
func (nopObserver) SubscribersChanged(int) {}

// Subscriber is one connected display. C is closed on Unsubscribe.
type Subscriber struct {
	C    <-chan []byte
	send chan []byte
}

// Hub fans events out to every subscriber. Publish never blocks the caller:
// events go through a bounded queue drained by Run, and a subscriber whose
// buffer is full misses the event. There is no replay; a display that
// reconnects must re-query the kitchen queue.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscriber]struct{}
	queue      chan []byte
	subBuffer  int
	observer   Observer
	log        *logger.Logger
	closedOnce sync.Once
	done       chan struct{}
}

type HubOptions struct {
	QueueSize        int
	SubscriberBuffer int
	Observer         Observer
	Logger           *logger.Logger
}

func NewHub(opts HubOptions) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 64
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Hub{
		subs:      make(map[*Subscriber]struct{}),
		queue:     make(chan []byte, opts.QueueSize),
		subBuffer: opts.SubscriberBuffer,
		observer:  opts.Observer,
		log:       opts.Logger,
		done:      make(chan struct{}),
	}
}

// Publish encodes ev and queues it for delivery.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("kitchen.publish", "", "failed to encode kitchen event", err,
			slog.String("event_action", string(ev.Action)))
		return
	}

	select {
	case h.queue <- data:
		h.observer.EventPublished(string(ev.Action))
	default:
		h.observer.EventDropped()
		h.log.Warn("kitchen.publish", "", "kitchen queue full, dropping event",
			slog.String("event_action", string(ev.Action)), slog.Uint64("order_id", uint64(ev.OrderID)))
	}
}

// Run drains the queue until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.queue:
			h.fanOut(data)
		}
	}
}

func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			h.observer.EventDropped()
		}
	}
}

func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan []byte, h.subBuffer)
	sub := &Subscriber{C: ch, send: ch}

	h.mu.Lock()
	select {
	case <-h.done:
		close(ch)
	default:
		h.subs[sub] = struct{}{}
	}
	n := len(h.subs)
	h.mu.Unlock()

	h.observer.SubscribersChanged(n)
	return sub
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	n := len(h.subs)
	h.mu.Unlock()

	h.observer.SubscribersChanged(n)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) shutdown() {
	h.closedOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		for sub := range h.subs {
			delete(h.subs, sub)
			close(sub.send)
		}
		h.mu.Unlock()
		h.observer.SubscribersChanged(0)
	})
}
