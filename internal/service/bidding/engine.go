package bidding

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// Config carries the engine's timing and limit knobs.
type Config struct {
	// ExtensionWindow is how close to EndTime a bid must land to trigger
	// an extension on auto-extend auctions.
	ExtensionWindow time.Duration
	// ExtensionIncrement is how far EndTime moves per extension.
	ExtensionIncrement time.Duration
	// MaxExtensions bounds how many times a single auction can extend.
	MaxExtensions int
	// SubmitTimeout bounds how long a submission waits on the per-auction
	// critical section before giving up.
	SubmitTimeout time.Duration
	// SweepInterval is how often the closure sweeper scans for expired
	// auctions.
	SweepInterval time.Duration
	// SweepBatchSize caps auctions closed per sweep pass.
	SweepBatchSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ExtensionWindow:    5 * time.Minute,
		ExtensionIncrement: 10 * time.Minute,
		MaxExtensions:      30,
		SubmitTimeout:      10 * time.Second,
		SweepInterval:      15 * time.Second,
		SweepBatchSize:     100,
	}
}

// Engine is the live bidding core. All auction mutation funnels through
// it; per-auction serialization is the engine's job, not the caller's.
type Engine struct {
	store   Store
	notify  Notifier
	metrics MetricsCollector
	logger  *zap.Logger
	cfg     Config
	locks   *lockRegistry

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewEngine wires the engine. notify and metrics may be the no-op
// implementations but never nil.
func NewEngine(store Store, notify Notifier, metrics MetricsCollector, logger *zap.Logger, cfg Config) *Engine {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	return &Engine{
		store:   store,
		notify:  notify,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		locks:   newLockRegistry(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitBid validates and admits a manual bid, resolves any proxy
// defence it provokes, extends the auction when the bid lands inside the
// closing window, and closes immediately when the bid reaches a buy-now
// price. Everything commits atomically; events go out only after commit.
func (e *Engine) SubmitBid(ctx context.Context, req SubmitBidRequest) (*SubmitResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, req.AuctionID)
	if err != nil {
		e.metrics.RecordBidRejected(errors.CodeStalePrice)
		return nil, errors.NewConcurrencyError(errors.CodeStalePrice,
			"auction is busy, please retry").WithCause(err)
	}
	defer release()

	now := e.now()
	a, err := e.store.GetAuction(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}
	a = a.Clone()

	if err := e.admit(ctx, a, req.BidderID, now); err != nil {
		e.metrics.RecordBidRejected(rejectionCode(err))
		return nil, err
	}
	if req.Price.Currency() != a.CurrentPrice.Currency() {
		err := errors.NewValidationError(errors.CodeBidTooLow,
			fmt.Sprintf("bid must be in %s", a.CurrentPrice.Currency()))
		e.metrics.RecordBidRejected(rejectionCode(err))
		return nil, err
	}

	price, err := e.checkPrice(a, req)
	if err != nil {
		e.metrics.RecordBidRejected(rejectionCode(err))
		return nil, err
	}

	prevLeader := cloneID(a.WinnerID)

	accepted := bid.New(a.ID, req.BidderID, price, req.Origin)
	a.ApplyLeadingBid(req.BidderID, price)
	allBids := []*bid.Bid{accepted}

	buyNow := a.MeetsBuyNow(price)
	var cascade []*bid.Bid
	if !buyNow {
		cascade, err = e.runCascade(ctx, a, now)
		if err != nil {
			return nil, err
		}
		allBids = append(allBids, cascade...)
	}

	extended := false
	if !buyNow && e.shouldExtend(a, now) {
		a.Extend(e.cfg.ExtensionIncrement)
		extended = true
	}
	if buyNow {
		a.Complete()
	}

	commit := &CascadeCommit{Auction: a, Bids: allBids}
	if buyNow {
		// The order rides in the same commit; a completed auction without
		// its order must never be observable.
		commit.Order = bid.NewOrder(a.ID, req.BidderID, price)
	}
	if err := e.store.CommitCascade(ctx, commit); err != nil {
		return nil, errors.Wrap(err, "commit bid")
	}

	e.publishBidEvents(ctx, a, allBids, prevLeader, now)
	if extended {
		e.metrics.RecordExtension()
		e.notify.Publish(ctx, Event{
			Type:            EventAuctionExtended,
			AuctionID:       a.ID,
			NewEndTime:      a.EndTime,
			ExtendedMinutes: int(e.cfg.ExtensionIncrement / time.Minute),
			OccurredAt:      now,
		})
	}
	if buyNow {
		e.metrics.RecordAuctionClosed(true)
		e.notify.Publish(ctx, Event{
			Type:       EventAuctionEnded,
			AuctionID:  a.ID,
			FinalPrice: a.CurrentPrice,
			WinnerID:   a.WinnerID,
			OccurredAt: now,
		})
	}

	e.metrics.RecordBidAccepted(req.Origin)
	e.metrics.RecordCascadeDepth(len(cascade))
	e.logger.Info("bid accepted",
		zap.String("auction_id", a.ID.String()),
		zap.String("bidder_id", req.BidderID.String()),
		zap.String("price", price.String()),
		zap.Int("cascade_depth", len(cascade)),
		zap.Bool("extended", extended),
		zap.Bool("buy_now", buyNow))

	return &SubmitResult{
		Bid:      accepted,
		Cascade:  cascade,
		Auction:  a,
		Extended: extended,
		Closed:   buyNow,
	}, nil
}

// admit runs the gate checks that apply to any bid: auction exists and is
// open, bidder is not the seller, bidder is not excluded.
func (e *Engine) admit(ctx context.Context, a *auction.Auction, bidderID uuid.UUID, now time.Time) error {
	switch a.Status {
	case auction.StatusCompleted:
		return errors.NewBusinessError(errors.CodeAuctionEnded, "auction has ended")
	case auction.StatusCancelled:
		return errors.NewBusinessError(errors.CodeAuctionInactive, "auction is cancelled")
	}
	if a.HasEnded(now) {
		return errors.NewBusinessError(errors.CodeAuctionEnded, "auction has ended")
	}
	if bidderID == a.SellerID {
		return errors.NewBusinessError(errors.CodeSelfBid, "sellers cannot bid on their own auctions")
	}
	excl, err := e.store.ListExclusions(ctx, a.ID)
	if err != nil {
		return errors.Wrap(err, "load exclusions")
	}
	if bid.NewExclusionSet(excl).Contains(bidderID) {
		return errors.NewForbiddenError(errors.CodeBidderExcluded, "bidder is excluded from this auction")
	}
	return nil
}

// checkPrice enforces the increment rule and resolves concurrency
// conflicts reported through ObservedPrice. A bid placed against a price
// that moved underneath it is floored onto the new grid when it still
// clears, and rejected as stale when it no longer does.
func (e *Engine) checkPrice(a *auction.Auction, req SubmitBidRequest) (values.Money, error) {
	price := req.Price
	floor := e.minimumBid(a)

	raced := req.ObservedPrice != nil && !req.ObservedPrice.Equal(a.CurrentPrice)

	if price.LessThan(floor) {
		if raced {
			return values.Money{}, errors.NewConcurrencyError(errors.CodeStalePrice,
				fmt.Sprintf("price moved to %s while you were bidding", a.CurrentPrice)).
				WithDetails(map[string]interface{}{
					"current_price": a.CurrentPrice.String(),
					"minimum_bid":   floor.String(),
				})
		}
		return values.Money{}, errors.NewBusinessError(errors.CodeBidTooLow,
			fmt.Sprintf("bid must be at least %s", floor)).
			WithDetails(map[string]interface{}{"minimum_bid": floor.String()})
	}

	offset := price.MustSub(a.CurrentPrice)
	if a.HasBids() {
		if offset.IsMultipleOf(a.BidStep) {
			return price, nil
		}
	} else {
		// First bid aligns against the start price, start price itself
		// included.
		if price.MustSub(a.StartPrice).IsMultipleOf(a.BidStep) {
			return price, nil
		}
	}

	if raced {
		// The misalignment came from a price that moved after the bidder
		// composed the bid. Snap down to the grid instead of bouncing the
		// request back.
		base := a.CurrentPrice
		if !a.HasBids() {
			base = a.StartPrice
		}
		snapped := price.FloorToStep(base, a.BidStep)
		if !snapped.LessThan(floor) {
			return snapped, nil
		}
		return values.Money{}, errors.NewConcurrencyError(errors.CodeStalePrice,
			fmt.Sprintf("price moved to %s while you were bidding", a.CurrentPrice)).
			WithDetails(map[string]interface{}{
				"current_price": a.CurrentPrice.String(),
				"minimum_bid":   floor.String(),
			})
	}

	lower, upper := e.suggestPrices(a, price)
	return values.Money{}, errors.NewValidationError(errors.CodeInvalidIncrement,
		fmt.Sprintf("bid must be a multiple of %s above the current price", a.BidStep)).
		WithDetails(map[string]interface{}{
			"bid_step":         a.BidStep.String(),
			"current_price":    a.CurrentPrice.String(),
			"suggested_prices": []string{lower.String(), upper.String()},
		})
}

// minimumBid is the lowest admissible manual bid right now.
func (e *Engine) minimumBid(a *auction.Auction) values.Money {
	if a.HasBids() {
		return a.CurrentPrice.MustAdd(a.BidStep)
	}
	return a.StartPrice
}

// suggestPrices returns the two grid prices bracketing a misaligned bid.
func (e *Engine) suggestPrices(a *auction.Auction, price values.Money) (values.Money, values.Money) {
	base := a.CurrentPrice
	if !a.HasBids() {
		base = a.StartPrice
	}
	lower := price.FloorToStep(base, a.BidStep)
	if lower.LessThan(e.minimumBid(a)) {
		lower = e.minimumBid(a)
	}
	return lower, lower.MustAdd(a.BidStep)
}

func (e *Engine) shouldExtend(a *auction.Auction, now time.Time) bool {
	if !a.AutoExtend || a.ExtensionCount >= e.cfg.MaxExtensions {
		return false
	}
	return a.EndTime.Sub(now) <= e.cfg.ExtensionWindow
}

// publishBidEvents emits one new-bid per committed bid, in ledger order,
// plus an outbid notice to every bidder the sequence displaced from the
// lead. A cascade can hand the lead back and forth, so displacement is
// tracked per transition, not just start-to-end; whoever holds the final
// lead is never told they lost it.
func (e *Engine) publishBidEvents(ctx context.Context, a *auction.Auction, bids []*bid.Bid, prevLeader *uuid.UUID, now time.Time) {
	total := a.TotalBidCount - len(bids)
	leader := cloneID(prevLeader)
	displaced := make(map[uuid.UUID]bool)
	for _, b := range bids {
		total++
		e.notify.Publish(ctx, Event{
			Type:         EventNewBid,
			AuctionID:    a.ID,
			CurrentPrice: b.Price,
			TotalBids:    total,
			BidderID:     b.BidderID,
			IsProxy:      b.IsProxy(),
			OccurredAt:   now,
		})
		if leader != nil && *leader != b.BidderID {
			displaced[*leader] = true
		}
		leader = cloneID(&b.BidderID)
	}
	for id := range displaced {
		if a.WinnerID != nil && id == *a.WinnerID {
			continue
		}
		e.notify.Publish(ctx, Event{
			Type:           EventOutbid,
			AuctionID:      a.ID,
			TargetBidderID: cloneID(&id),
			CurrentPrice:   a.CurrentPrice,
			OccurredAt:     now,
		})
	}
}

// runCascade loads the active proxy configurations and lets them contest
// the new leading bid.
func (e *Engine) runCascade(ctx context.Context, a *auction.Auction, now time.Time) ([]*bid.Bid, error) {
	configs, err := e.store.ListActiveProxyConfigs(ctx, a.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load proxy configs")
	}
	if len(configs) == 0 {
		return nil, nil
	}
	excl, err := e.store.ListExclusions(ctx, a.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load exclusions")
	}
	return e.resolveCascade(a, configs, bid.NewExclusionSet(excl)), nil
}

func rejectionCode(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return "INTERNAL"
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
