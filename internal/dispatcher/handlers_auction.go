package dispatcher

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

// Auction lifecycle: active -> ended | cancelled. Terminal states absorb
// every later event for the same auction id.

func (d *Dispatcher) handleAuctionStarted(ctx context.Context, ev *event.AuctionStarted) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		existing, err := d.stores.Auctions.GetTx(ctx, tx, ev.AuctionID)
		if err != nil {
			return fmt.Errorf("get auction %s: %w", ev.AuctionID, err)
		}
		// The auction row is created from this one log and never from any
		// other event, so an existing row of any status means redelivery.
		// Rebuilding it here would reset CurrentPrice over placed bids.
		if existing != nil {
			d.markReplay(ev)
			return nil
		}

		auction := &model.Auction{
			AuctionID:     ev.AuctionID,
			LoanID:        ev.LoanID,
			DomainTokenID: ev.DomainTokenID,
			StartingPrice: ev.StartingPrice,
			CurrentPrice:  ev.StartingPrice,
			ReservePrice:  ev.ReservePrice,
			Status:        model.AuctionStatusActive,
		}
		startTS := ev.StartTimestamp
		endTS := ev.EndTimestamp
		auction.StartTimestamp = &startTS
		auction.EndTimestamp = &endTS

		loan, err := d.stores.Loans.GetTx(ctx, tx, ev.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", ev.LoanID, err)
		}
		if loan != nil {
			auction.DomainName = loan.DomainName
			auction.BorrowerAddress = loan.BorrowerAddress
			auction.AiScore = loan.AiScore
			if loan.Status == model.LoanStatusActive || loan.Status == model.LoanStatusLiquidated {
				loan.Status = model.LoanStatusAuctioning
				if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
					return fmt.Errorf("upsert loan %s: %w", ev.LoanID, err)
				}
			}
		} else {
			d.logger.Warn("auction started for unknown loan", "auction_id", ev.AuctionID, "loan_id", ev.LoanID)
		}

		if err := d.stores.Auctions.UpsertTx(ctx, tx, auction); err != nil {
			return fmt.Errorf("upsert auction %s: %w", ev.AuctionID, err)
		}
		return nil
	})
}

func (d *Dispatcher) handleBidPlaced(ctx context.Context, ev *event.BidPlaced) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		auction, err := d.stores.Auctions.GetTx(ctx, tx, ev.AuctionID)
		if err != nil {
			return fmt.Errorf("get auction %s: %w", ev.AuctionID, err)
		}
		if auction == nil {
			return &InvariantError{
				Kind:    "unknown_auction",
				Subject: ev.AuctionID,
				Msg:     "bid for an auction that was never started",
			}
		}
		if auction.Status.Terminal() {
			d.markReplay(ev)
			return nil
		}
		auction.CurrentPrice = ev.CurrentPrice
		auction.CurrentBidderAddress = ev.BidderAddress
		if err := d.stores.Auctions.UpsertTx(ctx, tx, auction); err != nil {
			return fmt.Errorf("upsert auction %s: %w", ev.AuctionID, err)
		}
		return nil
	})
}

func (d *Dispatcher) handleAuctionEnded(ctx context.Context, ev *event.AuctionEnded) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		auction, err := d.stores.Auctions.GetTx(ctx, tx, ev.AuctionID)
		if err != nil {
			return fmt.Errorf("get auction %s: %w", ev.AuctionID, err)
		}
		if auction == nil {
			return &InvariantError{
				Kind:    "unknown_auction",
				Subject: ev.AuctionID,
				Msg:     "auction ended for an auction that was never started",
			}
		}
		if auction.Status.Terminal() {
			d.markReplay(ev)
			return nil
		}

		loan, err := d.stores.Loans.GetTx(ctx, tx, auction.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", auction.LoanID, err)
		}

		originalAmount := ev.LoanAmount
		if loan != nil {
			originalAmount = loan.OriginalAmount
		}
		rate, err := model.RecoveryRate(ev.FinalPrice, originalAmount)
		if err != nil {
			return err
		}

		finalPrice := ev.FinalPrice
		endTime := ev.BlockTime
		auction.Status = model.AuctionStatusEnded
		auction.FinalPrice = &finalPrice
		auction.CurrentPrice = ev.FinalPrice
		auction.WinnerAddress = ev.WinnerAddress
		auction.RecoveryRate = &rate
		auction.EndTimestamp = &endTime
		if err := d.stores.Auctions.UpsertTx(ctx, tx, auction); err != nil {
			return fmt.Errorf("upsert auction %s: %w", ev.AuctionID, err)
		}

		if loan != nil {
			loan.Status = model.LoanStatusSold
			if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
				return fmt.Errorf("upsert loan %s: %w", auction.LoanID, err)
			}
			if loan.HasPool() {
				err := d.mutatePool(ctx, tx, loan.PoolID, func(pool *model.Pool) error {
					return poolCredit(pool, ev.FinalPrice)
				})
				if err != nil {
					return err
				}
				if _, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(loan.PoolID, model.PoolEventAuctionProceeds, ev.Base, ev.FinalPrice, ev.WinnerAddress)); err != nil {
					return fmt.Errorf("append pool history: %w", err)
				}
			}
		}
		return nil
	})
}

func (d *Dispatcher) handleAuctionCancelled(ctx context.Context, ev *event.AuctionCancelled) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		auction, err := d.stores.Auctions.GetTx(ctx, tx, ev.AuctionID)
		if err != nil {
			return fmt.Errorf("get auction %s: %w", ev.AuctionID, err)
		}
		if auction == nil {
			return &InvariantError{
				Kind:    "unknown_auction",
				Subject: ev.AuctionID,
				Msg:     "auction cancelled for an auction that was never started",
			}
		}
		if auction.Status.Terminal() {
			d.markReplay(ev)
			return nil
		}

		endTime := ev.BlockTime
		auction.Status = model.AuctionStatusCancelled
		auction.EndTimestamp = &endTime
		if err := d.stores.Auctions.UpsertTx(ctx, tx, auction); err != nil {
			return fmt.Errorf("upsert auction %s: %w", ev.AuctionID, err)
		}

		loan, err := d.stores.Loans.GetTx(ctx, tx, auction.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", auction.LoanID, err)
		}
		if loan == nil {
			return nil
		}
		if loan.Status == model.LoanStatusAuctioning {
			loan.Status = model.LoanStatusLiquidated
			if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
				return fmt.Errorf("upsert loan %s: %w", auction.LoanID, err)
			}
		}
		// The pool only recovers the outstanding balance when the borrower
		// never settled the loan themselves.
		if loan.HasPool() && loan.Status != model.LoanStatusRepaid {
			zero, err := model.AmountIsZero(loan.CurrentBalance)
			if err != nil {
				return err
			}
			if !zero {
				err := d.mutatePool(ctx, tx, loan.PoolID, func(pool *model.Pool) error {
					return poolCredit(pool, loan.CurrentBalance)
				})
				if err != nil {
					return err
				}
				if _, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(loan.PoolID, model.PoolEventAuctionRestored, ev.Base, loan.CurrentBalance, "")); err != nil {
					return fmt.Errorf("append pool history: %w", err)
				}
			}
		}
		return nil
	})
}
