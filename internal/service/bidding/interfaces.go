package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// Store is the persistence boundary for the engine. Reads return committed
// state; Commit* calls apply a whole operation atomically so a failed
// cascade, exclusion, or closure is never partially visible.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)
	ListActiveProxyConfigs(ctx context.Context, auctionID uuid.UUID) ([]*bid.ProxyBidConfig, error)
	ListExclusions(ctx context.Context, auctionID uuid.UUID) ([]*bid.Exclusion, error)

	// ListExpiredActiveAuctions feeds the closure sweeper: active auctions
	// whose end_time has passed, oldest first.
	ListExpiredActiveAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	CommitCascade(ctx context.Context, commit *CascadeCommit) error
	CommitExclusion(ctx context.Context, commit *ExclusionCommit) error

	// CommitClosure finalizes the auction and, when commit.Order is set,
	// inserts the downstream order guarded by its unique auction_id
	// constraint. The bool reports whether this call created the order;
	// losing the insert race is not an error.
	CommitClosure(ctx context.Context, commit *ClosureCommit) (bool, error)
}

// CascadeCommit is the atomic outcome of one admission (manual bid or proxy
// config change) including every proxy counter-bid it triggered.
type CascadeCommit struct {
	Auction *auction.Auction
	Bids    []*bid.Bid

	// UpsertConfig carries a created/refreshed proxy instruction.
	UpsertConfig *bid.ProxyBidConfig
	// DeactivateConfigID retires a cancelled proxy instruction.
	DeactivateConfigID *uuid.UUID
	// Order is set when the admission closed the auction (buy-now). The
	// store writes it in the same unit as the bids, guarded by the order's
	// unique auction_id constraint, and retires every proxy config.
	Order *bid.Order
}

// ExclusionCommit bars a bidder and restates the auction in one unit. The
// store also deactivates the excluded bidder's proxy config.
type ExclusionCommit struct {
	Auction   *auction.Auction
	Exclusion *bid.Exclusion
}

// ClosureCommit moves an auction to a terminal state. The store deactivates
// every proxy config for the auction as part of the same unit.
type ClosureCommit struct {
	Auction *auction.Auction
	Order   *bid.Order
}

// Notifier is the broadcast gateway the engine publishes committed state
// changes through, in commit order.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// MetricsCollector records engine-level measurements.
type MetricsCollector interface {
	RecordBidAccepted(origin bid.Origin)
	RecordBidRejected(code string)
	RecordCascadeDepth(depth int)
	RecordExtension()
	RecordAuctionClosed(withWinner bool)
}

// SubmitBidRequest is a manual (or internally generated) bid attempt.
type SubmitBidRequest struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Price     values.Money
	Origin    bid.Origin

	// ObservedPrice is the current price the caller based the bid on. When
	// it no longer matches, the engine treats misalignment as a concurrency
	// conflict and retries against the latest price instead of rejecting.
	ObservedPrice *values.Money
}

// SubmitResult is the post-cascade view returned to the caller: the
// admitted bid, every proxy counter-bid it triggered, and the settled
// auction state.
type SubmitResult struct {
	Bid      *bid.Bid
	Cascade  []*bid.Bid
	Auction  *auction.Auction
	Extended bool
	Closed   bool
}
