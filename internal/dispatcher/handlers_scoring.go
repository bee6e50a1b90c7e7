package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

// handleScoringRequested runs the full scoring pipeline for one request:
// insert the pending row, call the scoring backend, optionally submit the
// score on-chain, then persist the terminal status. External calls happen
// between transactions so a slow backend never holds a database lock.
func (d *Dispatcher) handleScoringRequested(ctx context.Context, ev *event.ScoringRequested) error {
	id := model.ScoringEventID(ev.TxHash, ev.LogIndex)
	domainName := d.resolver.Resolve(ctx, ev.DomainTokenID)

	var fresh bool
	err := d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		row := &model.ScoringEvent{
			ID:               id,
			TxHash:           ev.TxHash,
			LogIndex:         ev.LogIndex,
			BlockNumber:      ev.BlockNumber,
			DomainTokenID:    ev.DomainTokenID,
			DomainName:       domainName,
			RequesterAddress: ev.RequesterAddress,
			Status:           model.ScoringStatusPending,
			RequestedAt:      ev.RequestedAt,
		}
		inserted, err := d.stores.Scoring.InsertTx(ctx, tx, row)
		if err != nil {
			return fmt.Errorf("insert scoring event: %w", err)
		}
		fresh = inserted
		if !inserted {
			return nil
		}
		// The backend call follows as soon as this transaction commits, so
		// the committed state reflects a call in flight. A crash between the
		// two transactions leaves the row in backend_called, which the
		// completion statuses can still advance past.
		row.Status = model.ScoringStatusBackendCalled
		if err := d.stores.Scoring.UpdateTx(ctx, tx, row); err != nil {
			return fmt.Errorf("update scoring event %s: %w", id, err)
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID:   ev.DomainTokenID,
			DomainName:      domainName,
			ScoringRequests: 1,
			ActivityAt:      ev.BlockTime,
		})
	})
	if err != nil {
		return err
	}
	if !fresh {
		d.markReplay(ev)
		return nil
	}

	result := d.scorer.Score(ctx, domainName)
	if result.Fallback {
		d.logger.Warn("scoring backend unavailable, recording fallback score",
			"domain_token_id", ev.DomainTokenID,
			"domain_name", domainName,
			"error", result.Err,
		)
	}

	var submissionTxHash *string
	var submissionErr error
	if !result.Fallback && d.autoSubmit {
		txHash, err := d.submitter.SubmitScore(ctx, ev.DomainTokenID, result.Score)
		if err != nil {
			submissionErr = err
			d.logger.Error("score submission failed",
				"domain_token_id", ev.DomainTokenID,
				"score", result.Score,
				"error", err,
			)
		} else {
			submissionTxHash = &txHash
		}
	}

	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		row, err := d.stores.Scoring.GetTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("get scoring event %s: %w", id, err)
		}
		if row == nil {
			return fmt.Errorf("scoring event %s vanished between transactions", id)
		}

		score := result.Score
		confidence := result.Confidence
		row.AiScore = &score
		row.Confidence = &confidence
		row.Reasoning = result.Reasoning

		final := model.ScoringStatusCompleted
		switch {
		case result.Fallback:
			final = model.ScoringStatusFailed
			row.ErrorMessage = result.Err.Error()
			row.RetryCount++
		case !d.autoSubmit:
			final = model.ScoringStatusAwaitingAVSOperator
		case submissionErr != nil:
			// Score stands even though the on-chain write failed; an AVS
			// operator or a retry sweep can still submit it.
			row.ErrorMessage = submissionErr.Error()
			row.RetryCount++
		default:
			row.SubmissionTxHash = submissionTxHash
		}

		if !row.Status.CanAdvanceTo(final) {
			d.logger.Warn("scoring status already advanced, keeping current",
				"id", id, "current", row.Status, "proposed", final)
			return nil
		}
		row.Status = final
		if final == model.ScoringStatusCompleted {
			now := time.Now().UTC()
			row.CompletedAt = &now
		}
		if err := d.stores.Scoring.UpdateTx(ctx, tx, row); err != nil {
			return fmt.Errorf("update scoring event %s: %w", id, err)
		}

		if final == model.ScoringStatusCompleted || final == model.ScoringStatusAwaitingAVSOperator {
			return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
				DomainTokenID: ev.DomainTokenID,
				DomainName:    domainName,
				AiScore:       &score,
				ActivityAt:    ev.BlockTime,
			})
		}
		return nil
	})
}

// handleScoreSubmitted records a score written on-chain by an AVS operator.
// It completes the latest open scoring row for the domain, or creates a
// standalone completed row when the operator submitted unprompted.
func (d *Dispatcher) handleScoreSubmitted(ctx context.Context, ev *event.ScoreSubmitted) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		score := ev.Score
		txHash := ev.TxHash
		submittedAt := ev.SubmittedAt

		row, err := d.stores.Scoring.LatestByTokenTx(ctx, tx, ev.DomainTokenID)
		if err != nil {
			return fmt.Errorf("latest scoring event for %s: %w", ev.DomainTokenID, err)
		}
		switch {
		case row == nil:
			_, err := d.stores.Scoring.InsertTx(ctx, tx, &model.ScoringEvent{
				ID:               model.ScoringEventID(ev.TxHash, ev.LogIndex),
				TxHash:           ev.TxHash,
				LogIndex:         ev.LogIndex,
				BlockNumber:      ev.BlockNumber,
				DomainTokenID:    ev.DomainTokenID,
				RequesterAddress: ev.SubmittedBy,
				Status:           model.ScoringStatusCompleted,
				AiScore:          &score,
				SubmissionTxHash: &txHash,
				RequestedAt:      ev.SubmittedAt,
				CompletedAt:      &submittedAt,
			})
			if err != nil {
				return fmt.Errorf("insert scoring event: %w", err)
			}
		case row.Status.CanAdvanceTo(model.ScoringStatusCompleted):
			row.Status = model.ScoringStatusCompleted
			row.AiScore = &score
			row.SubmissionTxHash = &txHash
			row.CompletedAt = &submittedAt
			if err := d.stores.Scoring.UpdateTx(ctx, tx, row); err != nil {
				return fmt.Errorf("update scoring event %s: %w", row.ID, err)
			}
		default:
			d.markReplay(ev)
			return nil
		}

		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: ev.DomainTokenID,
			AiScore:       &score,
			ActivityAt:    ev.BlockTime,
		})
	})
}

func (d *Dispatcher) handleBatchScoringRequested(ctx context.Context, ev *event.BatchScoringRequested) error {
	batchID := model.ScoringEventID(ev.TxHash, ev.LogIndex)

	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.Batches.InsertTx(ctx, tx, &model.BatchOperation{
			BatchID:          batchID,
			RequesterAddress: ev.RequesterAddress,
			TokenCount:       len(ev.DomainTokenIDs),
			Status:           model.BatchOperationPending,
		})
		if err != nil {
			return fmt.Errorf("insert batch operation: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		for _, tokenID := range ev.DomainTokenIDs {
			batch := batchID
			if _, err := d.stores.Scoring.InsertTx(ctx, tx, &model.ScoringEvent{
				ID:               model.BatchScoringEventID(ev.TxHash, ev.LogIndex, tokenID),
				TxHash:           ev.TxHash,
				LogIndex:         ev.LogIndex,
				BlockNumber:      ev.BlockNumber,
				DomainTokenID:    tokenID,
				RequesterAddress: ev.RequesterAddress,
				Status:           model.ScoringStatusBatchRequested,
				BatchID:          &batch,
				RequestedAt:      ev.BlockTime,
			}); err != nil {
				return fmt.Errorf("insert batch scoring event for %s: %w", tokenID, err)
			}
			err := d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
				DomainTokenID:   tokenID,
				ScoringRequests: 1,
				ActivityAt:      ev.BlockTime,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) handleBatchScoresSubmitted(ctx context.Context, ev *event.BatchScoresSubmitted) error {
	if len(ev.DomainTokenIDs) != len(ev.Scores) {
		return &InvariantError{
			Kind:    "batch_shape_mismatch",
			Subject: ev.TxHash,
			Msg:     fmt.Sprintf("%d token ids but %d scores", len(ev.DomainTokenIDs), len(ev.Scores)),
		}
	}

	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		txHash := ev.TxHash
		submittedAt := ev.BlockTime
		scoredPerBatch := make(map[string]int)

		for i, tokenID := range ev.DomainTokenIDs {
			score := ev.Scores[i]
			row, err := d.stores.Scoring.LatestByTokenTx(ctx, tx, tokenID)
			if err != nil {
				return fmt.Errorf("latest scoring event for %s: %w", tokenID, err)
			}
			if row == nil || row.Status == model.ScoringStatusCompleted {
				// Nothing open for this token, or the replayed submission
				// already landed.
				continue
			}
			if !row.Status.CanAdvanceTo(model.ScoringStatusCompleted) {
				continue
			}
			row.Status = model.ScoringStatusCompleted
			row.AiScore = &score
			row.SubmissionTxHash = &txHash
			row.CompletedAt = &submittedAt
			if err := d.stores.Scoring.UpdateTx(ctx, tx, row); err != nil {
				return fmt.Errorf("update scoring event %s: %w", row.ID, err)
			}
			if row.BatchID != nil {
				scoredPerBatch[*row.BatchID]++
			}
			err = d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
				DomainTokenID: tokenID,
				AiScore:       &score,
				ActivityAt:    ev.BlockTime,
			})
			if err != nil {
				return err
			}
		}

		for batchID, n := range scoredPerBatch {
			if err := d.stores.Batches.AddScoredTx(ctx, tx, batchID, n); err != nil {
				return fmt.Errorf("advance batch %s: %w", batchID, err)
			}
		}
		return nil
	})
}

func (d *Dispatcher) handleScoreInvalidated(ctx context.Context, ev *event.ScoreInvalidated) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		// The latest-open lookup below cannot see rows already invalidated,
		// so a redelivered invalidation would walk back to an older row.
		// A log-keyed marker row makes the redelivery detectable first.
		inserted, err := d.stores.Scoring.InsertTx(ctx, tx, &model.ScoringEvent{
			ID:               model.ScoringEventID(ev.TxHash, ev.LogIndex),
			TxHash:           ev.TxHash,
			LogIndex:         ev.LogIndex,
			BlockNumber:      ev.BlockNumber,
			DomainTokenID:    ev.DomainTokenID,
			RequesterAddress: ev.InvalidatedBy,
			Status:           model.ScoringStatusInvalidated,
			ErrorMessage:     ev.Reason,
			RequestedAt:      ev.BlockTime,
		})
		if err != nil {
			return fmt.Errorf("insert invalidation marker: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		row, err := d.stores.Scoring.LatestByTokenTx(ctx, tx, ev.DomainTokenID)
		if err != nil {
			return fmt.Errorf("latest scoring event for %s: %w", ev.DomainTokenID, err)
		}
		if row == nil {
			d.logger.Warn("score invalidation with no scoring history", "domain_token_id", ev.DomainTokenID)
			return nil
		}
		row.Status = model.ScoringStatusInvalidated
		if ev.Reason != "" {
			row.ErrorMessage = ev.Reason
		}
		if err := d.stores.Scoring.UpdateTx(ctx, tx, row); err != nil {
			return fmt.Errorf("update scoring event %s: %w", row.ID, err)
		}
		return d.stores.Analytics.ApplyTx(ctx, tx, model.AnalyticsDelta{
			DomainTokenID: ev.DomainTokenID,
			ActivityAt:    ev.BlockTime,
		})
	})
}
