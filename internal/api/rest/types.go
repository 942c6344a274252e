package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
)

type createAuctionRequest struct {
	CategoryID  string `json:"category_id" validate:"required,uuid4"`
	StartPrice  string `json:"start_price" validate:"required"`
	BidStep     string `json:"bid_step" validate:"required"`
	BuyNowPrice string `json:"buy_now_price,omitempty"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3"`
	Duration    string `json:"duration" validate:"required"`
	AutoExtend  bool   `json:"auto_extend"`
}

type placeBidRequest struct {
	Price         string `json:"price" validate:"required"`
	ObservedPrice string `json:"observed_price,omitempty"`
	Currency      string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type proxyBidRequest struct {
	MaxPrice string `json:"max_price" validate:"required"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type excludeBidderRequest struct {
	BidderID string `json:"bidder_id" validate:"required,uuid4"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type auctionResponse struct {
	ID             uuid.UUID  `json:"id"`
	SellerID       uuid.UUID  `json:"seller_id"`
	CategoryID     uuid.UUID  `json:"category_id"`
	StartPrice     string     `json:"start_price"`
	CurrentPrice   string     `json:"current_price"`
	BidStep        string     `json:"bid_step"`
	BuyNowPrice    *string    `json:"buy_now_price,omitempty"`
	Currency       string     `json:"currency"`
	EndTime        time.Time  `json:"end_time"`
	AutoExtend     bool       `json:"auto_extend"`
	ExtensionCount int        `json:"extension_count"`
	Status         string     `json:"status"`
	WinnerID       *uuid.UUID `json:"winner_id,omitempty"`
	TotalBidCount  int        `json:"total_bid_count"`
}

type bidResponse struct {
	ID        uuid.UUID `json:"id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Price     string    `json:"price"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

type submitBidResponse struct {
	Bid      bidResponse     `json:"bid"`
	Cascade  []bidResponse   `json:"cascade,omitempty"`
	Auction  auctionResponse `json:"auction"`
	Extended bool            `json:"extended"`
	Closed   bool            `json:"closed"`
}

type proxyBidResponse struct {
	MaxPrice string          `json:"max_price"`
	Leading  bool            `json:"leading"`
	Auction  auctionResponse `json:"auction"`
}

type errorResponse struct {
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details,omitempty"`
		Retryable bool           `json:"retryable"`
	} `json:"error"`
}

func toAuctionResponse(a *auction.Auction) auctionResponse {
	resp := auctionResponse{
		ID:             a.ID,
		SellerID:       a.SellerID,
		CategoryID:     a.CategoryID,
		StartPrice:     a.StartPrice.Amount().String(),
		CurrentPrice:   a.CurrentPrice.Amount().String(),
		BidStep:        a.BidStep.Amount().String(),
		Currency:       a.CurrentPrice.Currency(),
		EndTime:        a.EndTime,
		AutoExtend:     a.AutoExtend,
		ExtensionCount: a.ExtensionCount,
		Status:         a.Status.String(),
		WinnerID:       a.WinnerID,
		TotalBidCount:  a.TotalBidCount,
	}
	if a.BuyNowPrice != nil {
		s := a.BuyNowPrice.Amount().String()
		resp.BuyNowPrice = &s
	}
	return resp
}

func toBidResponse(b *bid.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		BidderID:  b.BidderID,
		Price:     b.Price.Amount().String(),
		Origin:    b.Origin.String(),
		CreatedAt: b.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var resp errorResponse
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Error.Code = appErr.Code
		resp.Error.Message = appErr.Message
		resp.Error.Details = appErr.Details
		resp.Error.Retryable = appErr.Retryable
		writeJSON(w, appErr.StatusCode, resp)
		return
	}
	logger.Error("unhandled error", zap.Error(err))
	resp.Error.Code = "INTERNAL_ERROR"
	resp.Error.Message = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}
