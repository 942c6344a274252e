package bidding

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// ExcludeBidder bars a bidder from an auction at the seller's request and
// restates price, winner, and bid count from the surviving ledger. The
// excluded bidder's bids stay on the ledger but stop counting; their proxy
// instruction is retired in the same commit.
func (e *Engine) ExcludeBidder(ctx context.Context, auctionID, sellerID, bidderID uuid.UUID, reason string) (*auction.Auction, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, auctionID)
	if err != nil {
		return nil, errors.NewConcurrencyError(errors.CodeStalePrice,
			"auction is busy, please retry").WithCause(err)
	}
	defer release()

	now := e.now()
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	a = a.Clone()

	if a.SellerID != sellerID {
		return nil, errors.NewForbiddenError("", "only the seller can exclude bidders")
	}
	if a.Status != auction.StatusActive {
		return nil, errors.NewBusinessError(errors.CodeAuctionInactive, "auction is no longer active")
	}
	if a.HasEnded(now) {
		return nil, errors.NewBusinessError(errors.CodeAuctionEnded, "auction has ended")
	}
	if bidderID == sellerID {
		return nil, errors.NewValidationError(errors.CodeSelfBid, "sellers cannot exclude themselves")
	}

	existing, err := e.store.ListExclusions(ctx, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "load exclusions")
	}
	set := bid.NewExclusionSet(existing)
	if set.Contains(bidderID) {
		// Idempotent: a repeat exclusion changes nothing and emits nothing.
		return a, nil
	}
	set[bidderID] = struct{}{}

	bids, err := e.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "load bids")
	}

	winner, price, eligible := restate(a, bids, set)
	a.Restate(winner, price, eligible)

	commit := &ExclusionCommit{
		Auction:   a,
		Exclusion: bid.NewExclusion(auctionID, bidderID, reason),
	}
	if err := e.store.CommitExclusion(ctx, commit); err != nil {
		return nil, errors.Wrap(err, "commit exclusion")
	}

	// Restatement reaches watchers as a fresh price announcement so every
	// client converges on the corrected state without a dedicated event.
	ev := Event{
		Type:         EventNewBid,
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		TotalBids:    a.TotalBidCount,
		OccurredAt:   now,
	}
	if a.WinnerID != nil {
		ev.BidderID = *a.WinnerID
	}
	e.notify.Publish(ctx, ev)

	e.logger.Info("bidder excluded",
		zap.String("auction_id", auctionID.String()),
		zap.String("bidder_id", bidderID.String()),
		zap.String("restated_price", a.CurrentPrice.String()),
		zap.Int("eligible_bids", a.TotalBidCount))

	return a, nil
}

// restate derives the leader from the ledger with the exclusion set
// applied. The ledger is scanned in order; on equal prices the later bid
// wins, which is how a proxy holder's matching counter beats the capped
// challenge it answered.
func restate(a *auction.Auction, bids []*bid.Bid, excl bid.ExclusionSet) (*uuid.UUID, values.Money, int) {
	price := a.StartPrice
	var winner *uuid.UUID
	eligible := 0
	for _, b := range bids {
		if excl.Contains(b.BidderID) {
			continue
		}
		eligible++
		if winner == nil || !b.Price.LessThan(price) {
			id := b.BidderID
			winner = &id
			price = b.Price
		}
	}
	return winner, price, eligible
}
