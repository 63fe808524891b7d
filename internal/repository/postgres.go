package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

const auctionColumns = `id, product_id, start_price, current_bid, leader_id, leading_bid_id, bid_count,
	start_time, end_time, status, version, notified, created_at, updated_at`

// PostgresRepo implements AuctionDB on PostgreSQL. Every mutation is a single
// conditional UPDATE keyed on the row version, so concurrent writers are
// serialized by the database row lock.
type PostgresRepo struct {
	db *sql.DB
}

var _ AuctionDB = (*PostgresRepo)(nil)

// OpenPostgres opens a pooled connection using the pgx driver
func OpenPostgres(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPostgresRepo(db), nil
}

// NewPostgresRepo wraps an existing connection pool
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

// Migrate creates the auction tables when missing
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate auction schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a          model.Auction
		leader     sql.NullString
		leadingBid sql.NullString
		status     string
	)
	err := row.Scan(&a.AuctionID, &a.ProductID, &a.StartPrice, &a.CurrentBid, &leader, &leadingBid, &a.BidCount,
		&a.StartTime, &a.EndTime, &status, &a.Version, &a.Notified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.LeaderID = leader.String
	a.LeadingBidID = leadingBid.String
	a.Status = model.AuctionStatus(status)
	return a, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	_, err := r.db.ExecContext(ctx, `
		insert into auctions(`+auctionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, a.AuctionID, a.ProductID, a.StartPrice, a.CurrentBid, nullable(a.LeaderID), nullable(a.LeadingBidID), a.BidCount,
		a.StartTime, a.EndTime, string(a.Status), a.Version, a.Notified, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create auction for product %s: %w", a.ProductID, biddingerrors.ErrAuctionExists)
		}
		return fmt.Errorf("create auction %s: %w", a.AuctionID, err)
	}
	return nil
}

// ReadState returns the current row of an auction
func (r *PostgresRepo) ReadState(ctx context.Context, auctionID string) (model.Auction, error) {
	a, err := scanAuction(r.db.QueryRowContext(ctx, `select `+auctionColumns+` from auctions where id=$1`, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("read state for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("read state for auction %s: %w", auctionID, err)
	}
	return a, nil
}

// CompareAndSwapBid advances the auction row and inserts the ledger entry in
// one transaction. The update only matches when version and current bid are
// unchanged and the commit time lies inside the open window. The commit time
// is the later of bid.PlacedAt and the row's updated_at.
func (r *PostgresRepo) CompareAndSwapBid(ctx context.Context, expected model.Auction, bid model.Bid) (model.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, fmt.Errorf("swap bid: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := scanAuction(tx.QueryRowContext(ctx, `
		update auctions
		set current_bid=$1, leader_id=$2, leading_bid_id=$3, bid_count=bid_count+1, version=version+1,
		    updated_at=greatest($4, updated_at)
		where id=$5 and version=$6 and current_bid=$7
		  and status='ACTIVE' and start_time <= $4 and end_time > greatest($4, updated_at)
		returning `+auctionColumns,
		bid.Amount, bid.UserID, bid.BidID, bid.PlacedAt, expected.AuctionID, expected.Version, expected.CurrentBid))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return r.classifySwapMiss(ctx, expected, bid)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("swap bid for auction %s: %w", expected.AuctionID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into bids(id, auction_id, user_id, amount, sequence, placed_at)
		values ($1,$2,$3,$4,$5,$6)
	`, bid.BidID, bid.AuctionID, bid.UserID, bid.Amount, updated.BidCount, updated.UpdatedAt); err != nil {
		return model.Auction{}, fmt.Errorf("append bid %s to ledger: %w", bid.BidID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, fmt.Errorf("swap bid: commit: %w", err)
	}
	return updated, nil
}

// classifySwapMiss explains why the conditional update matched no row
func (r *PostgresRepo) classifySwapMiss(ctx context.Context, expected model.Auction, bid model.Bid) (model.Auction, error) {
	current, err := r.ReadState(ctx, expected.AuctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("swap bid: %w", err)
	}
	if current.Version != expected.Version || current.CurrentBid != expected.CurrentBid {
		return current, fmt.Errorf("swap bid for auction %s at version %d: %w", expected.AuctionID, expected.Version, biddingerrors.ErrConcurrencyConflict)
	}
	if !current.Open(bid.PlacedAt) || !current.Open(latest(bid.PlacedAt, current.UpdatedAt)) {
		return current, fmt.Errorf("swap bid for auction %s: %w", expected.AuctionID, biddingerrors.ErrAuctionClosed)
	}
	// the row changed and changed back between the update and this read
	return current, fmt.Errorf("swap bid for auction %s: %w", expected.AuctionID, biddingerrors.ErrConcurrencyConflict)
}

// TransitionStatus performs a status-only compare-and-swap stamped at at
func (r *PostgresRepo) TransitionStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus, at time.Time) (model.Auction, bool, error) {
	updated, err := scanAuction(r.db.QueryRowContext(ctx, `
		update auctions set status=$1, version=version+1, updated_at=greatest($2, updated_at)
		where id=$3 and status=$4
		returning `+auctionColumns,
		string(to), at.UTC(), auctionID, string(from)))
	if errors.Is(err, sql.ErrNoRows) {
		current, readErr := r.ReadState(ctx, auctionID)
		if readErr != nil {
			return model.Auction{}, false, fmt.Errorf("transition auction: %w", readErr)
		}
		return current, false, nil
	}
	if err != nil {
		return model.Auction{}, false, fmt.Errorf("transition auction %s to %s: %w", auctionID, to, err)
	}
	return updated, true, nil
}

// MarkNotified flags the end notification as delivered
func (r *PostgresRepo) MarkNotified(ctx context.Context, auctionID string) error {
	res, err := r.db.ExecContext(ctx, `update auctions set notified=true where id=$1`, auctionID)
	if err != nil {
		return fmt.Errorf("mark auction %s notified: %w", auctionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark auction %s notified: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

// GetBidsByAuction returns the ledger ordered by sequence
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := r.ReadState(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("get bids: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		select id, auction_id, user_id, amount, sequence, placed_at
		from bids where auction_id=$1 order by sequence asc
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.Sequence, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		b.Status = model.BidAccepted
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// ListDue returns auctions that need a lifecycle action at now
func (r *PostgresRepo) ListDue(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return r.queryAuctions(ctx, `
		select `+auctionColumns+` from auctions
		where (status='PENDING' and start_time <= $1)
		   or (status='ACTIVE' and end_time <= $1)
		   or (status='ENDED' and not notified)
		order by end_time asc, id asc
	`, now)
}

// GetAuctionsByUser returns every auction the user has bid on
func (r *PostgresRepo) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	auctions, err := r.queryAuctions(ctx, `
		select `+auctionColumns+` from auctions
		where id in (select distinct auction_id from bids where user_id=$1)
		order by created_at asc
	`, userID)
	if err != nil {
		return nil, err
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return auctions, nil
}

func (r *PostgresRepo) queryAuctions(ctx context.Context, query string, args ...any) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}
