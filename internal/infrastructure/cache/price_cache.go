package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// PriceSnapshot is the hot read-path view of an auction, refreshed on
// every committed state change so listing pages never touch postgres.
type PriceSnapshot struct {
	AuctionID    uuid.UUID    `json:"auction_id"`
	CurrentPrice values.Money `json:"current_price"`
	TotalBids    int          `json:"total_bids"`
	WinnerID     *uuid.UUID   `json:"winner_id,omitempty"`
	EndTime      time.Time    `json:"end_time"`
	Status       string       `json:"status"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// PriceCache stores snapshots with a TTL as a stale-entry backstop; the
// engine overwrites entries long before the TTL fires in practice.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache wraps a redis client. ttl <= 0 falls back to an hour.
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PriceCache{client: client, ttl: ttl}
}

func snapshotKey(auctionID uuid.UUID) string {
	return "auction:snapshot:" + auctionID.String()
}

// Store writes the snapshot for an auction.
func (c *PriceCache) Store(ctx context.Context, a *auction.Auction) error {
	snap := PriceSnapshot{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		TotalBids:    a.TotalBidCount,
		WinnerID:     a.WinnerID,
		EndTime:      a.EndTime,
		Status:       a.Status.String(),
		UpdatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(a.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns the snapshot, or (nil, nil) on a cache miss.
func (c *PriceCache) Get(ctx context.Context, auctionID uuid.UUID) (*PriceSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(auctionID)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap PriceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Invalidate drops the snapshot, forcing the next read through to the
// database.
func (c *PriceCache) Invalidate(ctx context.Context, auctionID uuid.UUID) error {
	return c.client.Del(ctx, snapshotKey(auctionID)).Err()
}
