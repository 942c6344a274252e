package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/infrastructure/cache"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// Publisher adapts the bus to the engine's notifier interface. Targeted
// events go to the bidder's private channel, everything else to the
// auction room. Failures are logged and swallowed: the state change is
// already committed, and watchers recover through snapshot reads.
type Publisher struct {
	bus    Bus
	cache  *cache.PriceCache
	logger *zap.Logger
}

// NewPublisher builds a publisher. cache may be nil when no snapshot
// cache is wired.
func NewPublisher(bus Bus, priceCache *cache.PriceCache, logger *zap.Logger) *Publisher {
	return &Publisher{bus: bus, cache: priceCache, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, ev bidding.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	channel := AuctionChannel(ev.AuctionID)
	if ev.TargetBidderID != nil {
		channel = BidderChannel(*ev.TargetBidderID)
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.Error("publish event",
			zap.String("channel", channel),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}

	if p.cache != nil {
		// Snapshots are rebuilt lazily on the next read.
		if err := p.cache.Invalidate(ctx, ev.AuctionID); err != nil {
			p.logger.Warn("invalidate snapshot",
				zap.String("auction_id", ev.AuctionID.String()), zap.Error(err))
		}
	}
}
