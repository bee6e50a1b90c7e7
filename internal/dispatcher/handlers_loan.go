package dispatcher

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

func (d *Dispatcher) handleLoanCreated(ctx context.Context, ev *event.LoanCreated) error {
	domainName := d.resolver.Resolve(ctx, ev.DomainTokenID)

	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		eventType := model.LoanEventCreatedInstant
		if ev.RequestID != "" && ev.RequestID != "0" {
			eventType = model.LoanEventCreatedCrowdfunded
		}
		inserted, err := d.stores.LoanHistory.AppendTx(ctx, tx, loanHistoryRow(ev.LoanID, eventType, ev.Base, ev.PrincipalAmount))
		if err != nil {
			return fmt.Errorf("append loan history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		existing, err := d.stores.Loans.GetTx(ctx, tx, ev.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", ev.LoanID, err)
		}
		loan := &model.Loan{
			LoanID:                 ev.LoanID,
			BorrowerAddress:        ev.BorrowerAddress,
			DomainTokenID:          ev.DomainTokenID,
			DomainName:             domainName,
			OriginalAmount:         ev.PrincipalAmount,
			CurrentBalance:         ev.PrincipalAmount,
			TotalRepaid:            "0",
			TotalOwed:              ev.TotalOwed,
			InterestRate:           ev.InterestRate,
			PoolID:                 ev.PoolID,
			RequestID:              ev.RequestID,
			AiScore:                ev.AiScore,
			Status:                 model.LoanStatusActive,
			RepaymentDeadline:      ev.DueDate,
			LiquidationBufferHours: d.liquidationBufferHours,
		}
		if existing != nil {
			loan.LiquidationAttempted = existing.LiquidationAttempted
			loan.LiquidationBufferHours = existing.LiquidationBufferHours
		}
		if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
			return fmt.Errorf("upsert loan %s: %w", ev.LoanID, err)
		}

		if loan.HasPool() {
			err := d.mutatePool(ctx, tx, loan.PoolID, func(pool *model.Pool) error {
				return poolDraw(pool, ev.PrincipalAmount)
			})
			if err != nil {
				return err
			}
			if _, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(loan.PoolID, model.PoolEventLoanDrawn, ev.Base, ev.PrincipalAmount, ev.BorrowerAddress)); err != nil {
				return fmt.Errorf("append pool history: %w", err)
			}
		}

		if eventType == model.LoanEventCreatedCrowdfunded {
			if err := d.markRequestExecuted(ctx, tx, ev.RequestID, ev.LoanID); err != nil {
				return err
			}
		}

		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: ev.DomainTokenID,
			DomainName:    domainName,
			TotalLoans:    1,
			ActiveLoans:   1,
			LoanVolume:    ev.PrincipalAmount,
			ActivityAt:    ev.BlockTime,
		})
	})
}

func (d *Dispatcher) handleLoanRepaid(ctx context.Context, ev *event.LoanRepaid) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		eventType := model.LoanEventRepaidPartial
		if ev.IsFullyRepaid {
			eventType = model.LoanEventRepaidFull
		}
		inserted, err := d.stores.LoanHistory.AppendTx(ctx, tx, loanHistoryRow(ev.LoanID, eventType, ev.Base, ev.RepaymentAmount))
		if err != nil {
			return fmt.Errorf("append loan history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		loan, err := d.stores.Loans.GetTx(ctx, tx, ev.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", ev.LoanID, err)
		}
		if loan == nil {
			return &InvariantError{
				Kind:    "unknown_loan",
				Subject: ev.LoanID,
				Msg:     "repayment for a loan that was never created",
			}
		}

		loan.TotalRepaid, err = model.AddAmounts(loan.TotalRepaid, ev.RepaymentAmount)
		if err != nil {
			return err
		}
		loan.CurrentBalance, err = model.SubAmounts(loan.OriginalAmount, loan.TotalRepaid)
		if err != nil {
			return err
		}
		if negative, nerr := model.AmountIsNegative(loan.CurrentBalance); nerr == nil && negative {
			// Repayment covered interest on top of principal.
			loan.CurrentBalance = "0"
		}
		if ev.IsFullyRepaid {
			loan.Status = model.LoanStatusRepaid
			loan.CurrentBalance = "0"
		}
		if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
			return fmt.Errorf("upsert loan %s: %w", ev.LoanID, err)
		}

		if loan.HasPool() {
			err := d.mutatePool(ctx, tx, loan.PoolID, func(pool *model.Pool) error {
				return poolCredit(pool, ev.RepaymentAmount)
			})
			if err != nil {
				return err
			}
			if _, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(loan.PoolID, model.PoolEventRepayment, ev.Base, ev.RepaymentAmount, ev.BorrowerAddress)); err != nil {
				return fmt.Errorf("append pool history: %w", err)
			}
		}

		delta := model.AnalyticsDelta{
			DomainTokenID: loan.DomainTokenID,
			DomainName:    loan.DomainName,
			ActivityAt:    ev.BlockTime,
		}
		if ev.IsFullyRepaid {
			delta.ActiveLoans = -1
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, delta)
	})
}

func (d *Dispatcher) handleCollateralLocked(ctx context.Context, ev *event.CollateralLocked) error {
	return d.appendCollateralHistory(ctx, ev, ev.LoanID, ev.DomainTokenID, model.LoanEventCollateralLocked, ev.Base)
}

func (d *Dispatcher) handleCollateralReleased(ctx context.Context, ev *event.CollateralReleased) error {
	return d.appendCollateralHistory(ctx, ev, ev.LoanID, ev.DomainTokenID, model.LoanEventCollateralReleased, ev.Base)
}

func (d *Dispatcher) appendCollateralHistory(ctx context.Context, ev event.Event, loanID, domainTokenID string, eventType model.LoanEventType, base event.Base) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.LoanHistory.AppendTx(ctx, tx, loanHistoryRow(loanID, eventType, base, "0"))
		if err != nil {
			return fmt.Errorf("append loan history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: domainTokenID,
			ActivityAt:    base.BlockTime,
		})
	})
}

func (d *Dispatcher) handleCollateralLiquidated(ctx context.Context, ev *event.CollateralLiquidated) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.LoanHistory.AppendTx(ctx, tx, loanHistoryRow(ev.LoanID, model.LoanEventLiquidated, ev.Base, "0"))
		if err != nil {
			return fmt.Errorf("append loan history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		loan, err := d.stores.Loans.GetTx(ctx, tx, ev.LoanID)
		if err != nil {
			return fmt.Errorf("get loan %s: %w", ev.LoanID, err)
		}
		if loan == nil {
			return &InvariantError{
				Kind:    "unknown_loan",
				Subject: ev.LoanID,
				Msg:     "liquidation for a loan that was never created",
			}
		}

		wasActive := loan.Status == model.LoanStatusActive
		loan.Status = model.LoanStatusLiquidated
		blockTime := ev.BlockTime
		loan.LiquidationTimestamp = &blockTime
		txHash := ev.TxHash
		loan.LiquidationTxHash = &txHash
		if err := d.stores.Loans.UpsertTx(ctx, tx, loan); err != nil {
			return fmt.Errorf("upsert loan %s: %w", ev.LoanID, err)
		}

		delta := model.AnalyticsDelta{
			DomainTokenID: loan.DomainTokenID,
			DomainName:    loan.DomainName,
			Liquidated:    true,
			ActivityAt:    ev.BlockTime,
		}
		if wasActive {
			delta.ActiveLoans = -1
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, delta)
	})
}

func (d *Dispatcher) markRequestExecuted(ctx context.Context, tx *sql.Tx, requestID, loanID string) error {
	req, err := d.stores.Requests.GetTx(ctx, tx, requestID)
	if err != nil {
		return fmt.Errorf("get loan request %s: %w", requestID, err)
	}
	if req == nil {
		// The loan is still valid without its campaign row; record the gap.
		d.logger.Warn("crowdfunded loan references unknown request", "request_id", requestID, "loan_id", loanID)
		return nil
	}
	req.Status = model.LoanRequestStatusExecuted
	req.ExecutedLoanID = &loanID
	if err := d.stores.Requests.UpsertTx(ctx, tx, req); err != nil {
		return fmt.Errorf("upsert loan request %s: %w", requestID, err)
	}
	return nil
}
