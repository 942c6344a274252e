package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
)

// CloseAuction finalizes an expired auction: completed status, order for
// the winner when one exists, every proxy instruction retired. Safe to
// call any number of times from any process; the order's unique auction
// constraint makes exactly one caller the creator and the rest no-ops.
func (e *Engine) CloseAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
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

	switch a.Status {
	case auction.StatusCompleted, auction.StatusCancelled:
		// Already terminal; a second closer has nothing to do.
		return a, nil
	}
	if !a.HasEnded(now) {
		return nil, errors.NewBusinessError(errors.CodeAuctionInactive, "auction has not ended yet")
	}

	a.Complete()

	var order *bid.Order
	if a.WinnerID != nil {
		order = bid.NewOrder(a.ID, *a.WinnerID, a.CurrentPrice)
	}
	created, err := e.store.CommitClosure(ctx, &ClosureCommit{Auction: a, Order: order})
	if err != nil {
		return nil, errors.Wrap(err, "commit closure")
	}
	if !created && order != nil {
		// Another closer beat us to the order. State still converged.
		e.logger.Debug("closure order already existed",
			zap.String("auction_id", auctionID.String()))
	}

	e.metrics.RecordAuctionClosed(a.WinnerID != nil)
	e.notify.Publish(ctx, Event{
		Type:       EventAuctionEnded,
		AuctionID:  a.ID,
		FinalPrice: a.CurrentPrice,
		WinnerID:   a.WinnerID,
		OccurredAt: now,
	})

	e.logger.Info("auction closed",
		zap.String("auction_id", auctionID.String()),
		zap.Bool("with_winner", a.WinnerID != nil),
		zap.String("final_price", a.CurrentPrice.String()))
	return a, nil
}

// CancelAuction withdraws a listing. Only the seller may cancel, and only
// while nobody has bid.
func (e *Engine) CancelAuction(ctx context.Context, auctionID, sellerID uuid.UUID) (*auction.Auction, error) {
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
		return nil, errors.NewForbiddenError("", "only the seller can cancel an auction")
	}
	if a.Status != auction.StatusActive {
		return nil, errors.NewBusinessError(errors.CodeAuctionInactive, "auction is no longer active")
	}
	if a.HasEnded(now) {
		// Past end_time the auction belongs to the closer, even when the
		// sweeper has not reached it yet.
		return nil, errors.NewBusinessError(errors.CodeAuctionEnded, "auction has ended and cannot be cancelled")
	}
	if a.HasBids() {
		return nil, errors.NewBusinessError(errors.CodeAuctionHasBids, "auctions with bids cannot be cancelled")
	}

	a.Cancel()
	if _, err := e.store.CommitClosure(ctx, &ClosureCommit{Auction: a}); err != nil {
		return nil, errors.Wrap(err, "commit cancellation")
	}

	e.notify.Publish(ctx, Event{
		Type:       EventAuctionEnded,
		AuctionID:  a.ID,
		FinalPrice: a.CurrentPrice,
		OccurredAt: now,
	})
	e.logger.Info("auction cancelled", zap.String("auction_id", auctionID.String()))
	return a, nil
}

// Sweeper periodically closes expired auctions. It keeps no in-memory
// timers, so a restart loses nothing: whatever expired while the process
// was down is picked up on the first pass.
type Sweeper struct {
	engine *Engine
	logger *zap.Logger
}

// NewSweeper builds a sweeper over the engine's store and config.
func NewSweeper(engine *Engine, logger *zap.Logger) *Sweeper {
	return &Sweeper{engine: engine, logger: logger}
}

// Run blocks until ctx is done, sweeping at the configured interval.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.engine.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce closes one batch of expired auctions. Failures on individual
// auctions are logged and skipped; the next pass retries them.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	e := s.engine
	batch := e.cfg.SweepBatchSize
	if batch <= 0 {
		batch = DefaultConfig().SweepBatchSize
	}
	ids, err := e.store.ListExpiredActiveAuctions(ctx, e.now(), batch)
	if err != nil {
		s.logger.Error("sweep scan failed", zap.Error(err))
		return 0
	}
	closed := 0
	for _, id := range ids {
		if _, err := e.CloseAuction(ctx, id); err != nil {
			s.logger.Warn("sweep close failed",
				zap.String("auction_id", id.String()), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		s.logger.Info("sweep pass", zap.Int("closed", closed))
	}
	return closed
}
