package call

import (
	"context"
	"sync"
	"time"
)

// NetworkEvent is a lifecycle milestone of a call.
type NetworkEvent struct {
	CallID string    `json:"callId"`
	Time   time.Time `json:"time"`
	Text   string    `json:"text"`

	// IsEnd marks the terminal event. Nothing follows it.
	IsEnd bool `json:"isEnd,omitempty"`
}

// EventBus fans the events of one call out to its subscribers.
// Publishing never blocks: every subscriber has its own unbounded queue
// drained by a dedicated goroutine.
type EventBus struct {
	callID string

	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	latest  NetworkEvent
	ended   bool
	drained chan struct{}
}

// NewEventBus creates the bus of one call.
func NewEventBus(callID string) *EventBus {
	return &EventBus{
		callID:  callID,
		subs:    make(map[int]*subscriber),
		drained: make(chan struct{}),
	}
}

type subscriber struct {
	mu     sync.Mutex
	queue  []NetworkEvent
	signal chan struct{}
	out    chan NetworkEvent
	quit   chan struct{}
	once   sync.Once
}

func (s *subscriber) push(ev NetworkEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (NetworkEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return NetworkEvent{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Subscribe returns the ordered event stream of the call and a function that
// unsubscribes. The channel is closed right after the terminal event, or
// when ctx is done or the subscription is cancelled. Subscribing after the
// terminal event yields just that event.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan NetworkEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended {
		ch := make(chan NetworkEvent, 1)
		ch <- b.latest
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{
		signal: make(chan struct{}, 1),
		out:    make(chan NetworkEvent),
		quit:   make(chan struct{}),
	}
	b.subs[id] = sub

	go b.pump(ctx, id, sub)

	return sub.out, func() { sub.once.Do(func() { close(sub.quit) }) }
}

func (b *EventBus) pump(ctx context.Context, id int, sub *subscriber) {
	defer b.leave(id)
	defer close(sub.out)

	for {
		ev, ok := sub.pop()
		if !ok {
			select {
			case <-sub.signal:
				continue
			case <-sub.quit:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case sub.out <- ev:
		case <-sub.quit:
			return
		case <-ctx.Done():
			return
		}
		if ev.IsEnd {
			return
		}
	}
}

func (b *EventBus) leave(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	if b.ended && len(b.subs) == 0 {
		b.closeDrained()
	}
}

func (b *EventBus) closeDrained() {
	select {
	case <-b.drained:
	default:
		close(b.drained)
	}
}

// Publish delivers a lifecycle event to every subscriber. Events published
// after End are dropped.
func (b *EventBus) Publish(t time.Time, text string) {
	b.publish(NetworkEvent{CallID: b.callID, Time: t, Text: text})
}

// End publishes the terminal event. Only the first call has an effect.
func (b *EventBus) End(t time.Time, text string) {
	b.publish(NetworkEvent{CallID: b.callID, Time: t, Text: text, IsEnd: true})
}

func (b *EventBus) publish(ev NetworkEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return
	}
	b.latest = ev
	for _, sub := range b.subs {
		sub.push(ev)
	}
	if ev.IsEnd {
		b.ended = true
		if len(b.subs) == 0 {
			b.closeDrained()
		}
	}
}

// Latest returns the most recent event and whether any was published.
func (b *EventBus) Latest() (NetworkEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, !b.latest.Time.IsZero()
}

// Ended reports whether the terminal event was published.
func (b *EventBus) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Drained is closed once the terminal event was published and every
// subscriber has either received it or left.
func (b *EventBus) Drained() <-chan struct{} {
	return b.drained
}
