package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nezuni1812/bidhub/internal/domain/auction"
	"github.com/nezuni1812/bidhub/internal/domain/bid"
	"github.com/nezuni1812/bidhub/internal/domain/errors"
	"github.com/nezuni1812/bidhub/internal/domain/values"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

// PostgresStore implements bidding.Store on pgx. Every Commit* runs in a
// single transaction; order creation rides the unique auction_id index so
// concurrent closers cannot double-create.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const auctionColumns = `id, seller_id, category_id, start_price, current_price, bid_step,
	buy_now_price, currency, end_time, auto_extend, extension_count, status,
	winner_id, total_bid_count, created_at, updated_at`

func (s *PostgresStore) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	return scanAuction(row)
}

// CreateAuction inserts a new listing. Not part of bidding.Store; the
// record-store handlers use it directly.
func (s *PostgresStore) CreateAuction(ctx context.Context, a *auction.Auction) error {
	var buyNow interface{}
	if a.BuyNowPrice != nil {
		buyNow = a.BuyNowPrice.Amount()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.SellerID, a.CategoryID,
		a.StartPrice.Amount(), a.CurrentPrice.Amount(), a.BidStep.Amount(),
		buyNow, a.StartPrice.Currency(),
		a.EndTime, a.AutoExtend, a.ExtensionCount, a.Status.String(),
		a.WinnerID, a.TotalBidCount, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert auction")
	}
	return nil
}

func (s *PostgresStore) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, price, currency, origin, created_at
		FROM bids WHERE auction_id = $1 ORDER BY created_at, id`, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "query bids")
	}
	defer rows.Close()

	var out []*bid.Bid
	for rows.Next() {
		b := &bid.Bid{}
		var currency, origin string
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Price, &currency, &origin, &b.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan bid")
		}
		b.Price = b.Price.WithCurrency(currency)
		b.Origin = bid.ParseOrigin(origin)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveProxyConfigs(ctx context.Context, auctionID uuid.UUID) ([]*bid.ProxyBidConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, max_price, currency, active, created_at, updated_at
		FROM proxy_bid_configs WHERE auction_id = $1 AND active ORDER BY created_at`, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "query proxy configs")
	}
	defer rows.Close()

	var out []*bid.ProxyBidConfig
	for rows.Next() {
		c := &bid.ProxyBidConfig{}
		var currency string
		if err := rows.Scan(&c.ID, &c.AuctionID, &c.BidderID, &c.MaxPrice, &currency, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan proxy config")
		}
		c.MaxPrice = c.MaxPrice.WithCurrency(currency)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExclusions(ctx context.Context, auctionID uuid.UUID) ([]*bid.Exclusion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT auction_id, bidder_id, reason, created_at
		FROM auction_exclusions WHERE auction_id = $1`, auctionID)
	if err != nil {
		return nil, errors.Wrap(err, "query exclusions")
	}
	defer rows.Close()

	var out []*bid.Exclusion
	for rows.Next() {
		e := &bid.Exclusion{}
		if err := rows.Scan(&e.AuctionID, &e.BidderID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan exclusion")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExpiredActiveAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM auctions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time LIMIT $2`, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query expired auctions")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan auction id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CommitCascade(ctx context.Context, commit *bidding.CascadeCommit) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := updateAuction(ctx, tx, commit.Auction); err != nil {
			return err
		}
		for _, b := range commit.Bids {
			_, err := tx.Exec(ctx, `
				INSERT INTO bids (id, auction_id, bidder_id, price, currency, origin, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				b.ID, b.AuctionID, b.BidderID, b.Price.Amount(), b.Price.Currency(),
				b.Origin.String(), b.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "insert bid")
			}
		}
		if c := commit.UpsertConfig; c != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO proxy_bid_configs (id, auction_id, bidder_id, max_price, currency, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (auction_id, bidder_id) DO UPDATE
				SET max_price = EXCLUDED.max_price,
				    currency = EXCLUDED.currency,
				    active = EXCLUDED.active,
				    updated_at = EXCLUDED.updated_at`,
				c.ID, c.AuctionID, c.BidderID, c.MaxPrice.Amount(), c.MaxPrice.Currency(),
				c.Active, c.CreatedAt, c.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, "upsert proxy config")
			}
		}
		if id := commit.DeactivateConfigID; id != nil {
			_, err := tx.Exec(ctx, `
				UPDATE proxy_bid_configs SET active = false, updated_at = now() WHERE id = $1`, *id)
			if err != nil {
				return errors.Wrap(err, "deactivate proxy config")
			}
		}
		if o := commit.Order; o != nil {
			_, err := tx.Exec(ctx, `
				UPDATE proxy_bid_configs SET active = false, updated_at = now()
				WHERE auction_id = $1 AND active`, o.AuctionID)
			if err != nil {
				return errors.Wrap(err, "deactivate proxy configs")
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO orders (id, auction_id, winner_id, final_price, currency, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (auction_id) DO NOTHING`,
				o.ID, o.AuctionID, o.WinnerID, o.FinalPrice.Amount(), o.FinalPrice.Currency(), o.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "insert order")
			}
		}
		return nil
	})
}

func (s *PostgresStore) CommitExclusion(ctx context.Context, commit *bidding.ExclusionCommit) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := updateAuction(ctx, tx, commit.Auction); err != nil {
			return err
		}
		ex := commit.Exclusion
		_, err := tx.Exec(ctx, `
			INSERT INTO auction_exclusions (auction_id, bidder_id, reason, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (auction_id, bidder_id) DO NOTHING`,
			ex.AuctionID, ex.BidderID, ex.Reason, ex.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert exclusion")
		}
		_, err = tx.Exec(ctx, `
			UPDATE proxy_bid_configs SET active = false, updated_at = now()
			WHERE auction_id = $1 AND bidder_id = $2`,
			ex.AuctionID, ex.BidderID)
		if err != nil {
			return errors.Wrap(err, "deactivate excluded config")
		}
		return nil
	})
}

func (s *PostgresStore) CommitClosure(ctx context.Context, commit *bidding.ClosureCommit) (bool, error) {
	created := false
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := updateAuction(ctx, tx, commit.Auction); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE proxy_bid_configs SET active = false, updated_at = now()
			WHERE auction_id = $1 AND active`, commit.Auction.ID)
		if err != nil {
			return errors.Wrap(err, "deactivate proxy configs")
		}
		if o := commit.Order; o != nil {
			tag, err := tx.Exec(ctx, `
				INSERT INTO orders (id, auction_id, winner_id, final_price, currency, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (auction_id) DO NOTHING`,
				o.ID, o.AuctionID, o.WinnerID, o.FinalPrice.Amount(), o.FinalPrice.Currency(), o.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "insert order")
			}
			created = tag.RowsAffected() == 1
		}
		return nil
	})
	return created, err
}

func updateAuction(ctx context.Context, tx pgx.Tx, a *auction.Auction) error {
	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET
			current_price = $2, end_time = $3, auto_extend = $4,
			extension_count = $5, status = $6, winner_id = $7,
			total_bid_count = $8, updated_at = $9
		WHERE id = $1`,
		a.ID, a.CurrentPrice.Amount(), a.EndTime, a.AutoExtend,
		a.ExtensionCount, a.Status.String(), a.WinnerID,
		a.TotalBidCount, a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update auction")
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrAuctionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// nullMoney scans a nullable numeric column.
type nullMoney struct {
	money values.Money
	valid bool
}

func (n *nullMoney) Scan(v any) error {
	if v == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.money.Scan(v)
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	a := &auction.Auction{}
	var currency, status string
	var buyNow nullMoney
	err := row.Scan(&a.ID, &a.SellerID, &a.CategoryID,
		&a.StartPrice, &a.CurrentPrice, &a.BidStep,
		&buyNow, &currency, &a.EndTime, &a.AutoExtend, &a.ExtensionCount,
		&status, &a.WinnerID, &a.TotalBidCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrAuctionNotFound
		}
		return nil, errors.Wrap(err, "scan auction")
	}
	a.StartPrice = a.StartPrice.WithCurrency(currency)
	a.CurrentPrice = a.CurrentPrice.WithCurrency(currency)
	a.BidStep = a.BidStep.WithCurrency(currency)
	if buyNow.valid {
		m := buyNow.money.WithCurrency(currency)
		a.BuyNowPrice = &m
	}
	a.Status = auction.ParseStatus(status)
	return a, nil
}
