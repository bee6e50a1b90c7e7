package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type AuctionRepo struct {
	db *DB
}

func NewAuctionRepo(db *DB) *AuctionRepo {
	return &AuctionRepo{db: db}
}

const auctionColumns = `
	auction_id, loan_id, domain_token_id, domain_name, borrower_address, ai_score,
	starting_price::text, current_price::text, reserve_price::text, final_price::text,
	current_bidder_address, winner_address, status, recovery_rate,
	start_timestamp, end_timestamp, created_at, updated_at`

func scanAuction(row interface{ Scan(...any) error }) (*model.Auction, error) {
	var a model.Auction
	err := row.Scan(
		&a.AuctionID, &a.LoanID, &a.DomainTokenID, &a.DomainName, &a.BorrowerAddress, &a.AiScore,
		&a.StartingPrice, &a.CurrentPrice, &a.ReservePrice, &a.FinalPrice,
		&a.CurrentBidderAddress, &a.WinnerAddress, &a.Status, &a.RecoveryRate,
		&a.StartTimestamp, &a.EndTimestamp, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuctionRepo) GetTx(ctx context.Context, tx *sql.Tx, auctionID string) (*model.Auction, error) {
	a, err := scanAuction(tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1 FOR UPDATE`, auctionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (r *AuctionRepo) Get(ctx context.Context, auctionID string) (*model.Auction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	a, err := scanAuction(r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (r *AuctionRepo) UpsertTx(ctx context.Context, tx *sql.Tx, a *model.Auction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO auctions (
			auction_id, loan_id, domain_token_id, domain_name, borrower_address, ai_score,
			starting_price, current_price, reserve_price, final_price,
			current_bidder_address, winner_address, status, recovery_rate,
			start_timestamp, end_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
			$11, $12, $13, $14, $15, $16)
		ON CONFLICT (auction_id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			final_price = EXCLUDED.final_price,
			current_bidder_address = EXCLUDED.current_bidder_address,
			winner_address = EXCLUDED.winner_address,
			status = EXCLUDED.status,
			recovery_rate = EXCLUDED.recovery_rate,
			end_timestamp = EXCLUDED.end_timestamp,
			updated_at = now()
	`, a.AuctionID, a.LoanID, a.DomainTokenID, a.DomainName, a.BorrowerAddress, a.AiScore,
		a.StartingPrice, a.CurrentPrice, a.ReservePrice, a.FinalPrice,
		a.CurrentBidderAddress, a.WinnerAddress, a.Status, a.RecoveryRate,
		a.StartTimestamp, a.EndTimestamp)
	if err != nil {
		return fmt.Errorf("upsert auction: %w", err)
	}
	return nil
}
