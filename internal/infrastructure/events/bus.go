package events

import (
	"context"
	"path"
	"sync"

	"github.com/google/uuid"
)

// Message is one payload delivered on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Bus is the fan-out transport between the engine and connected
// gateways. Channels are flat strings; Subscribe takes glob patterns so
// a gateway can watch every auction room with one subscription.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, patterns ...string) (Subscription, error)
}

// Subscription streams matching messages until closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// AuctionChannel names the room every watcher of an auction joins.
func AuctionChannel(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// BidderChannel names the private channel for targeted notices.
func BidderChannel(bidderID uuid.UUID) string {
	return "bidder:" + bidderID.String()
}

// MemoryBus is an in-process Bus for tests and single-node runs.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

type memorySub struct {
	bus      *MemoryBus
	patterns []string
	ch       chan Message
	once     sync.Once
}

func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, patterns ...string) (Subscription, error) {
	sub := &memorySub{bus: b, patterns: patterns, ch: make(chan Message, 256)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (s *memorySub) matches(channel string) bool {
	for _, p := range s.patterns {
		if ok, _ := path.Match(p, channel); ok {
			return true
		}
	}
	return false
}

func (s *memorySub) Messages() <-chan Message { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}
