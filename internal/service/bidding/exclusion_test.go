package bidding_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

func TestExcludeBidder_RestatesLeader(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	honest := uuid.New()
	shill := uuid.New()

	_, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, honest, 1_000_000))
	require.NoError(t, err)
	_, err = rig.engine.SubmitBid(context.Background(), manualBid(a.ID, shill, 1_100_000))
	require.NoError(t, err)

	restated, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, shill, "suspected shill")
	require.NoError(t, err)

	require.NotNil(t, restated.WinnerID)
	assert.Equal(t, honest, *restated.WinnerID)
	assert.True(t, restated.CurrentPrice.Equal(vnd(1_000_000)))
	assert.Equal(t, 1, restated.TotalBidCount)

	// The ledger itself is untouched.
	bids, err := rig.store.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 2)

	// Watchers converge through a price announcement.
	newBids := rig.events.ofType(bidding.EventNewBid)
	last := newBids[len(newBids)-1]
	assert.True(t, last.CurrentPrice.Equal(vnd(1_000_000)))
	assert.Equal(t, honest, last.BidderID)
}

func TestExcludeBidder_AllBidsExcluded(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	only := uuid.New()

	_, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, only, 1_000_000))
	require.NoError(t, err)

	restated, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, only, "fraud")
	require.NoError(t, err)
	assert.Nil(t, restated.WinnerID)
	assert.True(t, restated.CurrentPrice.Equal(vnd(1_000_000)))
	assert.Equal(t, 0, restated.TotalBidCount)
}

func TestExcludeBidder_EqualPriceFallsToEarlierCounter(t *testing.T) {
	// A capped tie leaves two bids at the same price with the defender's
	// counter later in the ledger. Excluding a third party must not
	// disturb that resolution.
	rig := newTestRig()
	a := rig.seedAuction()
	first := uuid.New()
	second := uuid.New()
	third := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, first, vnd(2_000_000))
	require.NoError(t, err)
	_, err = rig.engine.SetProxyBid(context.Background(), a.ID, second, vnd(2_000_000))
	require.NoError(t, err)

	restated, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, third, "unrelated")
	require.NoError(t, err)
	require.NotNil(t, restated.WinnerID)
	assert.Equal(t, first, *restated.WinnerID)
	assert.True(t, restated.CurrentPrice.Equal(vnd(2_000_000)))
}

func TestExcludeBidder_BlocksFutureBids(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	banned := uuid.New()

	_, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, banned, "policy")
	require.NoError(t, err)

	_, err = rig.engine.SubmitBid(context.Background(), manualBid(a.ID, banned, 1_000_000))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBidderExcluded))

	_, err = rig.engine.SetProxyBid(context.Background(), a.ID, banned, vnd(2_000_000))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBidderExcluded))
}

func TestExcludeBidder_RetiresProxyInstruction(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()
	owner := uuid.New()

	_, err := rig.engine.SetProxyBid(context.Background(), a.ID, owner, vnd(2_000_000))
	require.NoError(t, err)

	_, err = rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, owner, "fraud")
	require.NoError(t, err)

	configs := rig.store.ConfigsFor(a.ID)
	require.Len(t, configs, 1)
	assert.False(t, configs[0].Active)

	// With the instruction retired, a later manual bid sees no defence.
	res, err := rig.engine.SubmitBid(context.Background(), manualBid(a.ID, uuid.New(), 1_100_000))
	require.NoError(t, err)
	assert.Empty(t, res.Cascade)
}

func TestExcludeBidder_Authorization(t *testing.T) {
	rig := newTestRig()
	a := rig.seedAuction()

	t.Run("only the seller may exclude", func(t *testing.T) {
		_, err := rig.engine.ExcludeBidder(context.Background(), a.ID, uuid.New(), uuid.New(), "nope")
		assert.True(t, errors.IsType(err, errors.ErrorTypeForbidden))
	})

	t.Run("seller cannot exclude themselves", func(t *testing.T) {
		_, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, a.SellerID, "self")
		assert.True(t, errors.IsCode(err, errors.CodeSelfBid))
	})

	t.Run("repeat exclusion is a no-op", func(t *testing.T) {
		target := uuid.New()
		_, err := rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, target, "first")
		require.NoError(t, err)
		before := len(rig.events.Events())

		_, err = rig.engine.ExcludeBidder(context.Background(), a.ID, a.SellerID, target, "second")
		require.NoError(t, err)
		assert.Len(t, rig.events.Events(), before)

		excl, err := rig.store.ListExclusions(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Len(t, excl, 1)
	})
}

func TestExclusionSetMembership(t *testing.T) {
	auctionID := uuid.New()
	banned := uuid.New()
	set := bid.NewExclusionSet([]*bid.Exclusion{bid.NewExclusion(auctionID, banned, "x")})
	assert.True(t, set.Contains(banned))
	assert.False(t, set.Contains(uuid.New()))
}
