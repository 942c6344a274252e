package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/values"
)

// AuctionBuilder builds test Auction entities with sensible defaults.
type AuctionBuilder struct {
	sellerID   uuid.UUID
	categoryID uuid.UUID
	startPrice values.Money
	bidStep    values.Money
	buyNow     *values.Money
	duration   time.Duration
	autoExtend bool
}

func NewAuctionBuilder() *AuctionBuilder {
	return &AuctionBuilder{
		sellerID:   uuid.New(),
		categoryID: uuid.New(),
		startPrice: VND(1_000_000),
		bidStep:    VND(100_000),
		duration:   time.Hour,
	}
}

func (b *AuctionBuilder) WithSeller(id uuid.UUID) *AuctionBuilder {
	b.sellerID = id
	return b
}

func (b *AuctionBuilder) WithStartPrice(m values.Money) *AuctionBuilder {
	b.startPrice = m
	return b
}

func (b *AuctionBuilder) WithBidStep(m values.Money) *AuctionBuilder {
	b.bidStep = m
	return b
}

func (b *AuctionBuilder) WithBuyNow(m values.Money) *AuctionBuilder {
	b.buyNow = &m
	return b
}

func (b *AuctionBuilder) WithDuration(d time.Duration) *AuctionBuilder {
	b.duration = d
	return b
}

func (b *AuctionBuilder) WithAutoExtend() *AuctionBuilder {
	b.autoExtend = true
	return b
}

func (b *AuctionBuilder) Build() *auction.Auction {
	a := auction.New(b.sellerID, b.categoryID, b.startPrice, b.bidStep, b.duration)
	a.AutoExtend = b.autoExtend
	a.BuyNowPrice = b.buyNow
	return a
}

// ManualBid returns an admitted-shape manual bid for the auction.
func ManualBid(a *auction.Auction, bidderID uuid.UUID, price values.Money) *bid.Bid {
	return bid.New(a.ID, bidderID, price, bid.OriginManual)
}

// VND is shorthand for integer amounts in the default currency.
func VND(amount int64) values.Money {
	return values.MustNewMoneyFromInt(amount, "VND")
}
