package pubsub

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgekv/internal/observability"
	"github.com/rs/zerolog/log"
)

const DefaultBuffer = 64

// Message is one payload delivered to a subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Broker fans published payloads out to subscriptions by channel name.
// Publish never blocks; a full subscriber buffer drops the message.
type Broker struct {
	buffer int

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		buffer: buffer,
		subs:   make(map[string]map[uint64]*Subscription),
	}
}

// Subscription receives messages for its channels until Close.
type Subscription struct {
	id       uint64
	broker   *Broker
	channels []string
	ch       chan Message

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// Subscribe registers one subscription for the given channel names. Duplicate
// names are collapsed.
func (b *Broker) Subscribe(channels ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		broker: b,
		ch:     make(chan Message, b.buffer),
	}
	seen := make(map[string]struct{}, len(channels))
	for _, name := range channels {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		sub.channels = append(sub.channels, name)
		set, ok := b.subs[name]
		if !ok {
			set = make(map[uint64]*Subscription)
			b.subs[name] = set
		}
		set[sub.id] = sub
	}
	return sub
}

// Publish delivers payload to every current subscriber of channel and returns
// how many received it.
func (b *Broker) Publish(channel string, payload []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs[channel] {
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			sub.dropped.Add(1)
			observability.RecordPubSubDrop(channel)
			log.Debug().Str("channel", channel).Uint64("subscription", sub.id).Msg("pubsub drop")
		}
	}
	return delivered
}

// Channels lists channel names with at least one subscriber, sorted.
func (b *Broker) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for name := range b.subs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns the subscriber count for channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (s *Subscription) C() <-chan Message { return s.ch }

// Dropped reports how many messages were discarded for a full buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) Channels() []string {
	return append([]string(nil), s.channels...)
}

// Close unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		b := s.broker
		b.mu.Lock()
		for _, name := range s.channels {
			set := b.subs[name]
			delete(set, s.id)
			if len(set) == 0 {
				delete(b.subs, name)
			}
		}
		close(s.ch)
		b.mu.Unlock()
	})
}
