package bidding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// ProxyResult reports what a standing-instruction change did.
type ProxyResult struct {
	Config   *bid.ProxyBidConfig
	Bids     []*bid.Bid
	Auction  *auction.Auction
	Extended bool
	Leading  bool
}

// SetProxyBid creates or refreshes the caller's standing instruction and
// immediately plays it against the auction state. On a bidless auction
// the instruction opens at the start price; otherwise it contests the
// current leader up to its ceiling.
func (e *Engine) SetProxyBid(ctx context.Context, auctionID, bidderID uuid.UUID, maxPrice values.Money) (*ProxyResult, error) {
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

	if err := e.admit(ctx, a, bidderID, now); err != nil {
		e.metrics.RecordBidRejected(rejectionCode(err))
		return nil, err
	}
	if maxPrice.Currency() != a.CurrentPrice.Currency() {
		return nil, errors.NewValidationError(errors.CodeBidTooLow,
			fmt.Sprintf("max price must be in %s", a.CurrentPrice.Currency()))
	}

	leading := a.WinnerID != nil && *a.WinnerID == bidderID
	if err := e.checkProxyCeiling(a, maxPrice, leading); err != nil {
		e.metrics.RecordBidRejected(rejectionCode(err))
		return nil, err
	}

	configs, err := e.store.ListActiveProxyConfigs(ctx, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "load proxy configs")
	}
	excl, err := e.store.ListExclusions(ctx, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "load exclusions")
	}

	cfg := configFor(configs, bidderID)
	if cfg != nil {
		cfg = cfg.Clone()
		cfg.Refresh(maxPrice)
	} else {
		cfg = bid.NewProxyBidConfig(auctionID, bidderID, maxPrice)
	}
	configs = replaceConfig(configs, cfg)

	prevLeader := cloneID(a.WinnerID)

	var bids []*bid.Bid
	if a.WinnerID == nil {
		// Opening move: the instruction registers presence at the start
		// price, then any rival instructions contest it.
		bids = append(bids, e.applyProxyBid(a, bidderID, a.StartPrice))
	}
	bids = append(bids, e.resolveCascade(a, configs, bid.NewExclusionSet(excl))...)

	extended := false
	if len(bids) > 0 && e.shouldExtend(a, now) {
		a.Extend(e.cfg.ExtensionIncrement)
		extended = true
	}

	commit := &CascadeCommit{Auction: a, Bids: bids, UpsertConfig: cfg}
	if err := e.store.CommitCascade(ctx, commit); err != nil {
		return nil, errors.Wrap(err, "commit proxy bid")
	}

	e.publishBidEvents(ctx, a, bids, prevLeader, now)
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
	for range bids {
		e.metrics.RecordBidAccepted(bid.OriginProxy)
	}

	nowLeading := a.WinnerID != nil && *a.WinnerID == bidderID
	e.logger.Info("proxy bid set",
		zap.String("auction_id", auctionID.String()),
		zap.String("bidder_id", bidderID.String()),
		zap.String("max_price", maxPrice.String()),
		zap.Int("bids_generated", len(bids)),
		zap.Bool("leading", nowLeading))

	return &ProxyResult{
		Config:   cfg,
		Bids:     bids,
		Auction:  a,
		Extended: extended,
		Leading:  nowLeading,
	}, nil
}

// CancelProxyBid retires the caller's standing instruction. Bids already
// on the ledger stand; only future defence stops.
func (e *Engine) CancelProxyBid(ctx context.Context, auctionID, bidderID uuid.UUID) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()
	release, err := e.locks.Acquire(lockCtx, auctionID)
	if err != nil {
		return errors.NewConcurrencyError(errors.CodeStalePrice,
			"auction is busy, please retry").WithCause(err)
	}
	defer release()

	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	configs, err := e.store.ListActiveProxyConfigs(ctx, auctionID)
	if err != nil {
		return errors.Wrap(err, "load proxy configs")
	}
	cfg := configFor(configs, bidderID)
	if cfg == nil {
		return errors.NewNotFoundError("proxy bid")
	}

	commit := &CascadeCommit{Auction: a, DeactivateConfigID: &cfg.ID}
	if err := e.store.CommitCascade(ctx, commit); err != nil {
		return errors.Wrap(err, "commit proxy cancellation")
	}

	e.logger.Info("proxy bid cancelled",
		zap.String("auction_id", auctionID.String()),
		zap.String("bidder_id", bidderID.String()))
	return nil
}

// checkProxyCeiling validates the instruction's ceiling against the
// current price. A leader may lower its ceiling down to the price it
// already holds; anyone else must be able to place at least one bid.
func (e *Engine) checkProxyCeiling(a *auction.Auction, maxPrice values.Money, leading bool) error {
	floor := e.minimumBid(a)
	if leading {
		floor = a.CurrentPrice
	}
	if maxPrice.LessThan(floor) {
		return errors.NewBusinessError(errors.CodeBidTooLow,
			fmt.Sprintf("max price must be at least %s", floor)).
			WithDetails(map[string]interface{}{"minimum_bid": floor.String()})
	}
	return nil
}

// resolveCascade plays the active standing instructions against the
// current leader until nobody can improve their position. The holder
// defends up to its own ceiling; a challenger must clear that ceiling
// outright to take the lead, so a tied ceiling leaves the lead with the
// earlier instruction. Bids generated at an owner's exact ceiling are
// capped bids and land off the increment grid.
func (e *Engine) resolveCascade(a *auction.Auction, configs []*bid.ProxyBidConfig, excl bid.ExclusionSet) []*bid.Bid {
	if a.WinnerID == nil {
		return nil
	}
	eligible := make([]*bid.ProxyBidConfig, 0, len(configs))
	for _, c := range configs {
		if !c.Active || c.BidderID == a.SellerID || excl.Contains(c.BidderID) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].MaxPrice.Equal(eligible[j].MaxPrice) {
			return eligible[i].MaxPrice.GreaterThan(eligible[j].MaxPrice)
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	holderID := *a.WinnerID
	holderCfg := configFor(eligible, holderID)

	var generated []*bid.Bid
	spent := make(map[uuid.UUID]bool, len(eligible))

	// Each pass either retires an instruction or hands it the lead for
	// the first time, so the loop is bounded.
	for iter := 0; iter < 2*len(eligible)+2; iter++ {
		var ch *bid.ProxyBidConfig
		for _, c := range eligible {
			if spent[c.ID] || c.BidderID == holderID {
				continue
			}
			if c.MaxPrice.GreaterThan(a.CurrentPrice) {
				ch = c
				break
			}
			spent[c.ID] = true
		}
		if ch == nil {
			break
		}

		ceiling := a.CurrentPrice
		if holderCfg != nil && holderCfg.MaxPrice.GreaterThan(ceiling) {
			ceiling = holderCfg.MaxPrice
		}

		if ch.MaxPrice.GreaterThan(ceiling) {
			// Challenger clears the holder and takes over one step above
			// the holder's best, or at its own cap when that is nearer.
			if ceiling.GreaterThan(a.CurrentPrice) {
				generated = append(generated, e.applyProxyBid(a, holderID, ceiling))
			}
			price := ch.MaxPrice.Min(ceiling.MustAdd(a.BidStep))
			generated = append(generated, e.applyProxyBid(a, ch.BidderID, price))
			if holderCfg != nil {
				spent[holderCfg.ID] = true
			}
			holderID = ch.BidderID
			holderCfg = ch
		} else {
			// Holder's ceiling covers the challenge: challenger tops out
			// at its cap, holder counters just above it, or matches it on
			// a tie and keeps the lead.
			generated = append(generated, e.applyProxyBid(a, ch.BidderID, ch.MaxPrice))
			counter := ceiling.Min(ch.MaxPrice.MustAdd(a.BidStep))
			generated = append(generated, e.applyProxyBid(a, holderID, counter))
			spent[ch.ID] = true
		}
	}
	return generated
}

func (e *Engine) applyProxyBid(a *auction.Auction, bidderID uuid.UUID, price values.Money) *bid.Bid {
	b := bid.New(a.ID, bidderID, price, bid.OriginProxy)
	a.ApplyLeadingBid(bidderID, price)
	return b
}

func configFor(configs []*bid.ProxyBidConfig, bidderID uuid.UUID) *bid.ProxyBidConfig {
	for _, c := range configs {
		if c.BidderID == bidderID {
			return c
		}
	}
	return nil
}

func replaceConfig(configs []*bid.ProxyBidConfig, cfg *bid.ProxyBidConfig) []*bid.ProxyBidConfig {
	for i, c := range configs {
		if c.ID == cfg.ID {
			configs[i] = cfg
			return configs
		}
	}
	return append(configs, cfg)
}
