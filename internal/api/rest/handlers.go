package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/infrastructure/cache"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// Store is the read/create surface the handlers need beyond the engine.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)
	CreateAuction(ctx context.Context, a *auction.Auction) error
}

// RateLimiter throttles bid submissions per bidder.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Handler carries the HTTP endpoints.
type Handler struct {
	engine    *bidding.Engine
	store     Store
	snapshots *cache.PriceCache
	limiter   RateLimiter
	validate  *validator.Validate
	logger    *zap.Logger
	currency  string
}

// NewHandler wires the endpoints. snapshots and limiter may be nil.
func NewHandler(engine *bidding.Engine, store Store, snapshots *cache.PriceCache, limiter RateLimiter, logger *zap.Logger, currency string) *Handler {
	if currency == "" {
		currency = "VND"
	}
	return &Handler{
		engine:    engine,
		store:     store,
		snapshots: snapshots,
		limiter:   limiter,
		validate:  validator.New(),
		logger:    logger,
		currency:  currency,
	}
}

// Register mounts the routes. auth wraps everything under /api/v1.
func (h *Handler) Register(mux *http.ServeMux, auth Middleware) {
	mux.HandleFunc("GET /healthz", h.health)

	protected := func(fn http.HandlerFunc) http.Handler {
		return auth(fn)
	}
	mux.Handle("POST /api/v1/auctions", protected(h.createAuction))
	mux.Handle("GET /api/v1/auctions/{id}", protected(h.getAuction))
	mux.Handle("DELETE /api/v1/auctions/{id}", protected(h.cancelAuction))
	mux.Handle("GET /api/v1/auctions/{id}/price", protected(h.getPrice))
	mux.Handle("GET /api/v1/auctions/{id}/bids", protected(h.listBids))
	mux.Handle("POST /api/v1/auctions/{id}/bids", protected(h.placeBid))
	mux.Handle("PUT /api/v1/auctions/{id}/proxy-bid", protected(h.setProxyBid))
	mux.Handle("DELETE /api/v1/auctions/{id}/proxy-bid", protected(h.cancelProxyBid))
	mux.Handle("POST /api/v1/auctions/{id}/exclusions", protected(h.excludeBidder))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	var req createAuctionRequest
	if !h.decode(w, r, &req) {
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	startPrice, err := values.NewMoneyFromString(req.StartPrice, currency)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
		return
	}
	bidStep, err := values.NewMoneyFromString(req.BidStep, currency)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
		return
	}
	if !bidStep.IsPositive() {
		writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", "bid step must be positive"))
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		writeError(w, h.logger, errors.NewValidationError("INVALID_DURATION", "duration must be a positive Go duration"))
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_CATEGORY", "category_id must be a uuid"))
		return
	}

	a := auction.New(sellerID, categoryID, startPrice, bidStep, duration)
	a.AutoExtend = req.AutoExtend
	if req.BuyNowPrice != "" {
		buyNow, err := values.NewMoneyFromString(req.BuyNowPrice, currency)
		if err != nil {
			writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
			return
		}
		if !buyNow.GreaterThan(startPrice) {
			writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", "buy-now price must exceed the start price"))
			return
		}
		a.BuyNowPrice = &buyNow
	}

	if err := h.store.CreateAuction(r.Context(), a); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.store.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if h.snapshots != nil {
		if err := h.snapshots.Store(r.Context(), a); err != nil {
			h.logger.Warn("warm snapshot", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// getPrice serves the hot polling path from the snapshot cache, falling
// back to the database on a miss.
func (h *Handler) getPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if h.snapshots != nil {
		snap, err := h.snapshots.Get(r.Context(), id)
		if err != nil {
			h.logger.Warn("snapshot read", zap.Error(err))
		} else if snap != nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	a, err := h.store.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if h.snapshots != nil {
		if err := h.snapshots.Store(r.Context(), a); err != nil {
			h.logger.Warn("warm snapshot", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, cache.PriceSnapshot{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		TotalBids:    a.TotalBidCount,
		WinnerID:     a.WinnerID,
		EndTime:      a.EndTime,
		Status:       a.Status.String(),
		UpdatedAt:    time.Now().UTC(),
	})
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.GetAuction(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	bids, err := h.store.ListBids(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bidderID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	if !h.allowBid(w, r, bidderID) {
		return
	}

	var req placeBidRequest
	if !h.decode(w, r, &req) {
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	price, err := values.NewMoneyFromString(req.Price, currency)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
		return
	}

	submit := bidding.SubmitBidRequest{
		AuctionID: id,
		BidderID:  bidderID,
		Price:     price,
		Origin:    bid.OriginManual,
	}
	if req.ObservedPrice != "" {
		observed, err := values.NewMoneyFromString(req.ObservedPrice, currency)
		if err != nil {
			writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
			return
		}
		submit.ObservedPrice = &observed
	}

	res, err := h.engine.SubmitBid(r.Context(), submit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := submitBidResponse{
		Bid:      toBidResponse(res.Bid),
		Auction:  toAuctionResponse(res.Auction),
		Extended: res.Extended,
		Closed:   res.Closed,
	}
	for _, b := range res.Cascade {
		resp.Cascade = append(resp.Cascade, toBidResponse(b))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) setProxyBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bidderID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	if !h.allowBid(w, r, bidderID) {
		return
	}

	var req proxyBidRequest
	if !h.decode(w, r, &req) {
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	maxPrice, err := values.NewMoneyFromString(req.MaxPrice, currency)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_PRICE", err.Error()))
		return
	}

	res, err := h.engine.SetProxyBid(r.Context(), id, bidderID, maxPrice)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, proxyBidResponse{
		MaxPrice: res.Config.MaxPrice.Amount().String(),
		Leading:  res.Leading,
		Auction:  toAuctionResponse(res.Auction),
	})
}

func (h *Handler) cancelProxyBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bidderID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	if err := h.engine.CancelProxyBid(r.Context(), id, bidderID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) excludeBidder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sellerID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	var req excludeBidderRequest
	if !h.decode(w, r, &req) {
		return
	}
	bidderID, err := uuid.Parse(req.BidderID)
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_BIDDER", "bidder_id must be a uuid"))
		return
	}

	a, err := h.engine.ExcludeBidder(r.Context(), id, sellerID, bidderID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sellerID, ok := UserID(r.Context())
	if !ok {
		writeError(w, h.logger, unauthorized("missing identity"))
		return
	}
	a, err := h.engine.CancelAuction(r.Context(), id, sellerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_ID", "auction id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_BODY", "malformed json body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_BODY", err.Error()))
		return false
	}
	return true
}

func (h *Handler) allowBid(w http.ResponseWriter, r *http.Request, bidderID uuid.UUID) bool {
	if h.limiter == nil {
		return true
	}
	allowed, err := h.limiter.Allow(r.Context(), bidderID.String())
	if err != nil {
		// Rate limiting is best effort; a broken limiter must not take
		// bidding down with it.
		h.logger.Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	if !allowed {
		writeError(w, h.logger, errors.NewRateLimitError("too many bids, slow down"))
		return false
	}
	return true
}
