package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// MemoryStore is an in-process bidding.Store for tests and local runs.
// Commits swap whole snapshots under one mutex, which gives the same
// all-or-nothing visibility the postgres store gets from transactions.
type MemoryStore struct {
	mu         sync.RWMutex
	auctions   map[uuid.UUID]*auction.Auction
	bids       map[uuid.UUID][]*bid.Bid
	configs    map[uuid.UUID][]*bid.ProxyBidConfig
	exclusions map[uuid.UUID][]*bid.Exclusion
	orders     map[uuid.UUID]*bid.Order
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:   make(map[uuid.UUID]*auction.Auction),
		bids:       make(map[uuid.UUID][]*bid.Bid),
		configs:    make(map[uuid.UUID][]*bid.ProxyBidConfig),
		exclusions: make(map[uuid.UUID][]*bid.Exclusion),
		orders:     make(map[uuid.UUID]*bid.Order),
	}
}

// SeedAuction inserts an auction directly, bypassing the engine.
func (s *MemoryStore) SeedAuction(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a.Clone()
}

// CreateAuction inserts a new listing, mirroring the postgres store.
func (s *MemoryStore) CreateAuction(_ context.Context, a *auction.Auction) error {
	s.SeedAuction(a)
	return nil
}

func (s *MemoryStore) GetAuction(_ context.Context, id uuid.UUID) (*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, errors.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListBids(_ context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.bids[auctionID]
	out := make([]*bid.Bid, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) ListActiveProxyConfigs(_ context.Context, auctionID uuid.UUID) ([]*bid.ProxyBidConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*bid.ProxyBidConfig
	for _, c := range s.configs[auctionID] {
		if c.Active {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExclusions(_ context.Context, auctionID uuid.UUID) ([]*bid.Exclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.exclusions[auctionID]
	out := make([]*bid.Exclusion, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) ListExpiredActiveAuctions(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*auction.Auction
	for _, a := range s.auctions {
		if a.Status == auction.StatusActive && a.HasEnded(now) {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndTime.Before(expired[j].EndTime)
	})
	ids := make([]uuid.UUID, 0, len(expired))
	for _, a := range expired {
		if len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *MemoryStore) CommitCascade(_ context.Context, commit *bidding.CascadeCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := commit.Auction
	if _, ok := s.auctions[a.ID]; !ok {
		return errors.ErrAuctionNotFound
	}
	s.auctions[a.ID] = a.Clone()
	for _, b := range commit.Bids {
		cp := *b
		s.bids[a.ID] = append(s.bids[a.ID], &cp)
	}
	if commit.UpsertConfig != nil {
		s.upsertConfig(a.ID, commit.UpsertConfig)
	}
	if commit.DeactivateConfigID != nil {
		for _, c := range s.configs[a.ID] {
			if c.ID == *commit.DeactivateConfigID {
				c.Deactivate()
			}
		}
	}
	if commit.Order != nil {
		for _, c := range s.configs[a.ID] {
			c.Deactivate()
		}
		if _, exists := s.orders[a.ID]; !exists {
			o := *commit.Order
			s.orders[a.ID] = &o
		}
	}
	return nil
}

func (s *MemoryStore) CommitExclusion(_ context.Context, commit *bidding.ExclusionCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := commit.Auction
	if _, ok := s.auctions[a.ID]; !ok {
		return errors.ErrAuctionNotFound
	}
	s.auctions[a.ID] = a.Clone()
	ex := *commit.Exclusion
	s.exclusions[a.ID] = append(s.exclusions[a.ID], &ex)
	for _, c := range s.configs[a.ID] {
		if c.BidderID == ex.BidderID {
			c.Deactivate()
		}
	}
	return nil
}

func (s *MemoryStore) CommitClosure(_ context.Context, commit *bidding.ClosureCommit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := commit.Auction
	if _, ok := s.auctions[a.ID]; !ok {
		return false, errors.ErrAuctionNotFound
	}
	s.auctions[a.ID] = a.Clone()
	for _, c := range s.configs[a.ID] {
		c.Deactivate()
	}
	if commit.Order == nil {
		return false, nil
	}
	if _, exists := s.orders[a.ID]; exists {
		return false, nil
	}
	o := *commit.Order
	s.orders[a.ID] = &o
	return true, nil
}

// OrderFor returns the order created for an auction, if any.
func (s *MemoryStore) OrderFor(auctionID uuid.UUID) *bid.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[auctionID]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// ConfigsFor returns every proxy config for an auction, active or not.
func (s *MemoryStore) ConfigsFor(auctionID uuid.UUID) []*bid.ProxyBidConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*bid.ProxyBidConfig, 0, len(s.configs[auctionID]))
	for _, c := range s.configs[auctionID] {
		out = append(out, c.Clone())
	}
	return out
}

func (s *MemoryStore) upsertConfig(auctionID uuid.UUID, cfg *bid.ProxyBidConfig) {
	for i, c := range s.configs[auctionID] {
		if c.ID == cfg.ID || c.BidderID == cfg.BidderID {
			s.configs[auctionID][i] = cfg.Clone()
			return
		}
	}
	s.configs[auctionID] = append(s.configs[auctionID], cfg.Clone())
}
