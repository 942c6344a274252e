package bidding_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/infrastructure/repository"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// recordingNotifier captures published events in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []bidding.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev bidding.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []bidding.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]bidding.Event, len(n.events))
	copy(out, n.events)
	return out
}

func (n *recordingNotifier) ofType(t bidding.EventType) []bidding.Event {
	var out []bidding.Event
	for _, ev := range n.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func vnd(amount int64) values.Money {
	return values.MustNewMoneyFromInt(amount, "VND")
}

type testRig struct {
	engine *bidding.Engine
	store  *repository.MemoryStore
	events *recordingNotifier
}

func newTestRig() *testRig {
	store := repository.NewMemoryStore()
	events := &recordingNotifier{}
	engine := bidding.NewEngine(store, events, bidding.NopMetrics{}, zap.NewNop(), bidding.DefaultConfig())
	return &testRig{engine: engine, store: store, events: events}
}

// seedAuction creates a one-hour auction starting at 1,000,000 VND with a
// 100,000 VND step, applies tweaks, and stores it.
func (r *testRig) seedAuction(tweaks ...func(*auction.Auction)) *auction.Auction {
	a := auction.New(uuid.New(), uuid.New(), vnd(1_000_000), vnd(100_000), time.Hour)
	for _, tw := range tweaks {
		tw(a)
	}
	r.store.SeedAuction(a)
	return a
}

func endingIn(d time.Duration) func(*auction.Auction) {
	return func(a *auction.Auction) { a.EndTime = time.Now().UTC().Add(d) }
}

func autoExtend(a *auction.Auction) { a.AutoExtend = true }

func withBuyNow(amount int64) func(*auction.Auction) {
	return func(a *auction.Auction) {
		m := vnd(amount)
		a.BuyNowPrice = &m
	}
}

func manualBid(auctionID, bidderID uuid.UUID, amount int64) bidding.SubmitBidRequest {
	return bidding.SubmitBidRequest{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     vnd(amount),
		Origin:    bid.OriginManual,
	}
}
