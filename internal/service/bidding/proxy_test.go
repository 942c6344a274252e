package bidding_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

func TestSetProxyBid_OpensAtStartPrice(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	bidder := uuid.New()

	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, bidder, vnd(2_000_000))
	require.NoError(t, err)
	assert.True(t, res.Leading)
	require.Len(t, res.Bids, 1)
	assert.True(t, res.Bids[0].Price.Equal(vnd(1_000_000)))
	assert.True(t, res.Bids[0].IsProxy())
	assert.True(t, res.Auction.CurrentPrice.Equal(vnd(1_000_000)))
}

func TestSetProxyBid_DefendsAgainstManualBid(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	proxyOwner := uuid.New()
	manual := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, proxyOwner, vnd(2_000_000))
	require.NoError(t, err)

	res, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, manual, 1_200_000))
	require.NoError(t, err)

	// The standing instruction counters one step above the manual bid.
	require.Len(t, res.Cascade, 1)
	counter := res.Cascade[0]
	assert.Equal(t, proxyOwner, counter.BidderID)
	assert.True(t, counter.Price.Equal(vnd(1_300_000)), "got %s", counter.Price)
	require.NotNil(t, res.Auction.WinnerID)
	assert.Equal(t, proxyOwner, *res.Auction.WinnerID)

	// The displaced manual bidder is told, the standing winner is not.
	outbids := rig.events.ofType(bidding.EventOutbid)
	require.Len(t, outbids, 1)
	require.NotNil(t, outbids[0].TargetBidderID)
	assert.Equal(t, manual, *outbids[0].TargetBidderID)
}

func TestSetProxyBid_HigherCeilingTakesOver(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	first := uuid.New()
	second := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(1_500_000))
	require.NoError(t, err)

	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, second, vnd(2_000_000))
	require.NoError(t, err)
	assert.True(t, res.Leading)

	// First defends to its cap, then loses one step above it.
	require.Len(t, res.Bids, 2)
	assert.Equal(t, first, res.Bids[0].BidderID)
	assert.True(t, res.Bids[0].Price.Equal(vnd(1_500_000)))
	assert.Equal(t, second, res.Bids[1].BidderID)
	assert.True(t, res.Bids[1].Price.Equal(vnd(1_600_000)))
	assert.True(t, res.Auction.CurrentPrice.Equal(vnd(1_600_000)))
}

func TestSetProxyBid_TieGoesToEarlierInstruction(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	first := uuid.New()
	second := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(2_000_000))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, second, vnd(2_000_000))
	require.NoError(t, err)
	assert.False(t, res.Leading)

	// Price settles at the tied ceiling with the earlier instruction on top.
	require.NotNil(t, res.Auction.WinnerID)
	assert.Equal(t, first, *res.Auction.WinnerID)
	assert.True(t, res.Auction.CurrentPrice.Equal(vnd(2_000_000)))
}

func TestSetProxyBid_RefreshKeepsPriority(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	first := uuid.New()
	second := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(1_500_000))
	require.NoError(t, err)
	_, err = rig.engine.SetProxyBid(context.Background(), a.ID, second, vnd(2_000_000))
	require.NoError(t, err)

	// First raises its ceiling past the current leader's.
	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(2_500_000))
	require.NoError(t, err)
	assert.True(t, res.Leading)
	assert.True(t, res.Auction.CurrentPrice.Equal(vnd(2_100_000)), "got %s", res.Auction.CurrentPrice)

	configs := rig.store.ConfigsFor(a.ID)
	require.Len(t, configs, 2)
	for _, c := range configs {
		if c.BidderID == first {
			assert.True(t, c.MaxPrice.Equal(vnd(2_500_000)))
		}
	}
}

func TestSetProxyBid_LeaderRaisingCeilingGeneratesNoBids(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	bidder := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, bidder, vnd(1_500_000))
	require.NoError(t, err)

	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, bidder, vnd(3_000_000))
	require.NoError(t, err)
	assert.Empty(t, res.Bids)
	assert.True(t, res.Leading)
	assert.True(t, res.Auction.CurrentPrice.Equal(vnd(1_000_000)))
}

func TestSetProxyBid_CeilingValidation(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	_, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, uuid.New(), 1_000_000))
	require.NoError(t, err)

	_, err = rig.engine.SetProxyBid(context.Background(), a.ID, uuid.New(), vnd(1_000_000))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBidTooLow))
}

func TestSetProxyBid_SellerRejected(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, a.SellerID, vnd(2_000_000))
	assert.True(t, errors.IsCode(err, errors.CodeSelfBid))
}

func TestSetProxyBid_CappedExchangeLandsOffGrid(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	first := uuid.New()
	second := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(1_850_000))
	require.NoError(t, err)

	res, err := rig.engine.SetProxyBid(context.Background(), a.ID, second, vnd(2_400_000))
	require.NoError(t, err)

	// First's cap is off the 100k grid; the takeover lands one step above
	// it, also off-grid. Capped bids are exempt from the increment rule.
	require.Len(t, res.Bids, 2)
	assert.True(t, res.Bids[0].Price.Equal(vnd(1_850_000)))
	assert.True(t, res.Bids[1].Price.Equal(vnd(1_950_000)))
}

func TestCancelProxyBid(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	owner := uuid.New()

	t.Run("not found without an instruction", func(t *testing.T) {
		err := rig.engine.CancelProxyBid(context.Background(), a.ID, owner)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, owner, vnd(2_000_000))
	require.NoError(t, err)

	t.Run("cancellation stops future defence", func(t *testing.T) {
		require.NoError(t, rig.engine.CancelProxyBid(context.Background(), a.ID, owner))

		res, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, uuid.New(), 1_100_000))
		require.NoError(t, err)
		assert.Empty(t, res.Cascade)
		require.NotNil(t, res.Auction.WinnerID)
		assert.NotEqual(t, owner, *res.Auction.WinnerID)
	})

	t.Run("existing bids stand", func(t *testing.T) {
		bids, err := rig.store.ListBids(context.Background(), a.ID)
		require.NoError(t, err)
		require.NotEmpty(t, bids)
		assert.Equal(t, owner, bids[0].BidderID)
		assert.Equal(t, bid.OriginProxy, bids[0].Origin)
	})
}
