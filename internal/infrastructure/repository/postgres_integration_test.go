package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/infrastructure/repository"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
	"github.com/nezuni1812/bidhub/internal/testutil"
	"github.com/nezuni1812/bidhub/internal/testutil/fixtures"
)

func vnd(amount int64) values.Money {
	return fixtures.VND(amount)
}

func newAuction(t *testing.T, ctx context.Context, store *repository.PostgresStore) *auction.Auction {
	t.Helper()
	a := fixtures.NewAuctionBuilder().Build()
	require.NoError(t, store.CreateAuction(ctx, a))
	return a
}

func TestPostgresStore_AuctionRoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	a := newAuction(t, ctx, store)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.SellerID, got.SellerID)
	assert.True(t, got.StartPrice.Equal(vnd(1_000_000)))
	assert.True(t, got.BidStep.Equal(vnd(100_000)))
	assert.Equal(t, auction.StatusActive, got.Status)
	assert.Nil(t, got.WinnerID)
	assert.Nil(t, got.BuyNowPrice)

	_, err = store.GetAuction(ctx, uuid.New())
	require.Error(t, err)
}

func TestPostgresStore_CommitCascade(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	a := newAuction(t, ctx, store)
	bidder := uuid.New()

	b := bid.New(a.ID, bidder, vnd(1_000_000), bid.OriginManual)
	a.ApplyLeadingBid(bidder, b.Price)

	cfg := bid.NewProxyBidConfig(a.ID, bidder, vnd(2_000_000))

	err := store.CommitCascade(ctx, &bidding.CascadeCommit{
		Auction:      a,
		Bids:         []*bid.Bid{b},
		UpsertConfig: cfg,
	})
	require.NoError(t, err)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(vnd(1_000_000)))
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, bidder, *got.WinnerID)
	assert.Equal(t, 1, got.TotalBidCount)

	bids, err := store.ListBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, b.ID, bids[0].ID)
	assert.Equal(t, bid.OriginManual, bids[0].Origin)

	configs, err := store.ListActiveProxyConfigs(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].MaxPrice.Equal(vnd(2_000_000)))

	// Upserting the same bidder's config replaces rather than duplicates.
	refreshed := bid.NewProxyBidConfig(a.ID, bidder, vnd(3_000_000))
	err = store.CommitCascade(ctx, &bidding.CascadeCommit{Auction: a, UpsertConfig: refreshed})
	require.NoError(t, err)

	configs, err = store.ListActiveProxyConfigs(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].MaxPrice.Equal(vnd(3_000_000)))
}

func TestPostgresStore_CommitCascadeDeactivatesConfig(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	a := newAuction(t, ctx, store)
	cfg := bid.NewProxyBidConfig(a.ID, uuid.New(), vnd(2_000_000))
	require.NoError(t, store.CommitCascade(ctx, &bidding.CascadeCommit{Auction: a, UpsertConfig: cfg}))

	require.NoError(t, store.CommitCascade(ctx, &bidding.CascadeCommit{
		Auction:            a,
		DeactivateConfigID: &cfg.ID,
	}))

	configs, err := store.ListActiveProxyConfigs(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestPostgresStore_CommitExclusion(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	a := newAuction(t, ctx, store)
	bidder := uuid.New()

	cfg := bid.NewProxyBidConfig(a.ID, bidder, vnd(2_000_000))
	require.NoError(t, store.CommitCascade(ctx, &bidding.CascadeCommit{Auction: a, UpsertConfig: cfg}))

	excl := bid.NewExclusion(a.ID, bidder, "shill bidding")
	require.NoError(t, store.CommitExclusion(ctx, &bidding.ExclusionCommit{Auction: a, Exclusion: excl}))

	exclusions, err := store.ListExclusions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	assert.Equal(t, bidder, exclusions[0].BidderID)
	assert.Equal(t, "shill bidding", exclusions[0].Reason)

	// Exclusion retires the bidder's proxy instruction.
	configs, err := store.ListActiveProxyConfigs(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestPostgresStore_CommitClosureExactlyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	a := newAuction(t, ctx, store)
	winner := uuid.New()

	b := bid.New(a.ID, winner, vnd(1_000_000), bid.OriginManual)
	a.ApplyLeadingBid(winner, b.Price)
	require.NoError(t, store.CommitCascade(ctx, &bidding.CascadeCommit{Auction: a, Bids: []*bid.Bid{b}}))

	a.Complete()
	order := bid.NewOrder(a.ID, winner, a.CurrentPrice)

	created, err := store.CommitClosure(ctx, &bidding.ClosureCommit{Auction: a, Order: order})
	require.NoError(t, err)
	assert.True(t, created)

	// A second closure attempt must not create a second order.
	dup := bid.NewOrder(a.ID, winner, a.CurrentPrice)
	created, err = store.CommitClosure(ctx, &bidding.ClosureCommit{Auction: a, Order: dup})
	require.NoError(t, err)
	assert.False(t, created)

	var count int
	require.NoError(t, db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE auction_id = $1`, a.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresStore_ListExpiredActiveAuctions(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewPostgresStore(db.Pool)
	ctx := context.Background()

	live := newAuction(t, ctx, store)

	expired := auction.New(uuid.New(), uuid.New(), vnd(1_000_000), vnd(100_000), time.Hour)
	require.NoError(t, store.CreateAuction(ctx, expired))
	_, err := db.Pool.Exec(ctx,
		`UPDATE auctions SET end_time = now() - interval '1 minute' WHERE id = $1`, expired.ID)
	require.NoError(t, err)

	ids, err := store.ListExpiredActiveAuctions(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, expired.ID, ids[0])
	assert.NotEqual(t, live.ID, ids[0])
}
