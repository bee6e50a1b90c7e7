package dispatcher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

func (d *Dispatcher) handleLoanRequestCreated(ctx context.Context, ev *event.LoanRequestCreated) error {
	domainName := d.resolver.Resolve(ctx, ev.DomainTokenID)

	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		existing, err := d.stores.Requests.GetTx(ctx, tx, ev.RequestID)
		if err != nil {
			return fmt.Errorf("get loan request %s: %w", ev.RequestID, err)
		}
		if existing != nil {
			d.markReplay(ev)
			return nil
		}
		req := &model.LoanRequest{
			RequestID:       ev.RequestID,
			BorrowerAddress: ev.BorrowerAddress,
			DomainTokenID:   ev.DomainTokenID,
			DomainName:      domainName,
			RequestedAmount: ev.RequestedAmount,
			TotalFunded:     "0",
			InterestRate:    ev.InterestRate,
			DurationSeconds: ev.DurationSeconds,
			Status:          model.LoanRequestStatusActive,
		}
		if err := d.stores.Requests.UpsertTx(ctx, tx, req); err != nil {
			return fmt.Errorf("upsert loan request %s: %w", ev.RequestID, err)
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: ev.DomainTokenID,
			DomainName:    domainName,
			ActivityAt:    ev.BlockTime,
		})
	})
}

func (d *Dispatcher) handleLoanRequestFunded(ctx context.Context, ev *event.LoanRequestFunded) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.Fundings.AppendTx(ctx, tx, &model.LoanFunding{
			ID:                 uuid.New(),
			RequestID:          ev.RequestID,
			ContributorAddress: ev.ContributorAddress,
			Amount:             ev.Amount,
			TxHash:             ev.TxHash,
			LogIndex:           ev.LogIndex,
			BlockNumber:        ev.BlockNumber,
		})
		if err != nil {
			return fmt.Errorf("append loan funding: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		req, err := d.stores.Requests.GetTx(ctx, tx, ev.RequestID)
		if err != nil {
			return fmt.Errorf("get loan request %s: %w", ev.RequestID, err)
		}
		if req == nil {
			return &InvariantError{
				Kind:    "unknown_loan_request",
				Subject: ev.RequestID,
				Msg:     "contribution to a campaign that was never created",
			}
		}

		// The event carries the authoritative running total.
		req.TotalFunded = ev.TotalFunded
		req.ContributorCount++
		if ev.IsFullyFunded && req.Status == model.LoanRequestStatusActive {
			req.Status = model.LoanRequestStatusFunded
		}
		if err := d.stores.Requests.UpsertTx(ctx, tx, req); err != nil {
			return fmt.Errorf("upsert loan request %s: %w", ev.RequestID, err)
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: req.DomainTokenID,
			DomainName:    req.DomainName,
			ActivityAt:    ev.BlockTime,
		})
	})
}

func (d *Dispatcher) handleLoanRequestCancelled(ctx context.Context, ev *event.LoanRequestCancelled) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		req, err := d.stores.Requests.GetTx(ctx, tx, ev.RequestID)
		if err != nil {
			return fmt.Errorf("get loan request %s: %w", ev.RequestID, err)
		}
		if req == nil {
			return &InvariantError{
				Kind:    "unknown_loan_request",
				Subject: ev.RequestID,
				Msg:     "cancellation of a campaign that was never created",
			}
		}
		if req.Status == model.LoanRequestStatusCancelled {
			d.markReplay(ev)
			return nil
		}
		if req.Status == model.LoanRequestStatusExecuted {
			// Executed campaigns cannot be cancelled; the loan exists.
			d.logger.Warn("cancellation for executed loan request ignored", "request_id", ev.RequestID)
			return nil
		}
		req.Status = model.LoanRequestStatusCancelled
		req.CancellationReason = ev.Reason
		if err := d.stores.Requests.UpsertTx(ctx, tx, req); err != nil {
			return fmt.Errorf("upsert loan request %s: %w", ev.RequestID, err)
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: req.DomainTokenID,
			ActivityAt:    ev.BlockTime,
		})
	})
}

func (d *Dispatcher) handleSystemPaused(ctx context.Context, ev *event.SystemPaused) error {
	eventType := model.SystemEventPaused
	if !ev.Paused {
		eventType = model.SystemEventUnpaused
	}
	details, _ := json.Marshal(map[string]any{
		"block_number": ev.BlockNumber,
		"paused":       ev.Paused,
	})
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		return d.stores.SystemLog.AppendTx(ctx, tx, &model.SystemEvent{
			EventType: eventType,
			TxHash:    ev.TxHash,
			Actor:     ev.Actor,
			Details:   details,
		})
	})
}
