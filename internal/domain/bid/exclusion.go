package bid

import (
	"time"

	"github.com/google/uuid"
)

// Exclusion permanently bars a bidder from one auction. Bids from excluded
// bidders are ignored in all price/winner computations from the moment the
// exclusion commits.
type Exclusion struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// NewExclusion records a seller-initiated exclusion.
func NewExclusion(auctionID, bidderID uuid.UUID, reason string) *Exclusion {
	return &Exclusion{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// ExclusionSet answers membership queries over a slice of exclusions.
type ExclusionSet map[uuid.UUID]struct{}

// NewExclusionSet indexes exclusions by bidder.
func NewExclusionSet(exclusions []*Exclusion) ExclusionSet {
	set := make(ExclusionSet, len(exclusions))
	for _, e := range exclusions {
		set[e.BidderID] = struct{}{}
	}
	return set
}

// Contains reports whether the bidder is excluded.
func (s ExclusionSet) Contains(bidderID uuid.UUID) bool {
	_, ok := s[bidderID]
	return ok
}
