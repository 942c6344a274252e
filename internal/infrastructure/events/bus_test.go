package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

func TestMemoryBus_PatternRouting(t *testing.T) {
	bus := NewMemoryBus()
	auctionID := uuid.New()

	all, err := bus.Subscribe(context.Background(), "auction:*")
	require.NoError(t, err)
	defer all.Close()

	one, err := bus.Subscribe(context.Background(), AuctionChannel(auctionID))
	require.NoError(t, err)
	defer one.Close()

	private, err := bus.Subscribe(context.Background(), "bidder:*")
	require.NoError(t, err)
	defer private.Close()

	require.NoError(t, bus.Publish(context.Background(), AuctionChannel(auctionID), []byte("a")))
	require.NoError(t, bus.Publish(context.Background(), AuctionChannel(uuid.New()), []byte("b")))
	require.NoError(t, bus.Publish(context.Background(), BidderChannel(uuid.New()), []byte("c")))

	assert.Len(t, drain(all), 2)
	assert.Len(t, drain(one), 1)
	assert.Len(t, drain(private), 1)
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(context.Background(), "auction:*")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, bus.Publish(context.Background(), AuctionChannel(uuid.New()), []byte("x")))
	_, open := <-sub.Messages()
	assert.False(t, open)
}

func TestPublisher_RoutesTargetedEvents(t *testing.T) {
	bus := NewMemoryBus()
	pub := NewPublisher(bus, nil, zap.NewNop())

	auctionID := uuid.New()
	bidderID := uuid.New()

	room, err := bus.Subscribe(context.Background(), AuctionChannel(auctionID))
	require.NoError(t, err)
	defer room.Close()
	inbox, err := bus.Subscribe(context.Background(), BidderChannel(bidderID))
	require.NoError(t, err)
	defer inbox.Close()

	pub.Publish(context.Background(), bidding.Event{
		Type:         bidding.EventNewBid,
		AuctionID:    auctionID,
		CurrentPrice: values.MustNewMoneyFromInt(1_100_000, "VND"),
		TotalBids:    1,
		OccurredAt:   time.Now().UTC(),
	})
	pub.Publish(context.Background(), bidding.Event{
		Type:           bidding.EventOutbid,
		AuctionID:      auctionID,
		TargetBidderID: &bidderID,
		CurrentPrice:   values.MustNewMoneyFromInt(1_100_000, "VND"),
		OccurredAt:     time.Now().UTC(),
	})

	roomMsgs := drain(room)
	require.Len(t, roomMsgs, 1)
	var ev bidding.Event
	require.NoError(t, json.Unmarshal(roomMsgs[0].Payload, &ev))
	assert.Equal(t, bidding.EventNewBid, ev.Type)

	inboxMsgs := drain(inbox)
	require.Len(t, inboxMsgs, 1)
	require.NoError(t, json.Unmarshal(inboxMsgs[0].Payload, &ev))
	assert.Equal(t, bidding.EventOutbid, ev.Type)
}

func drain(sub Subscription) []Message {
	var out []Message
	for {
		select {
		case msg := <-sub.Messages():
			out = append(out, msg)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}
