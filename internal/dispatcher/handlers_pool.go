package dispatcher

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

func (d *Dispatcher) handlePoolCreated(ctx context.Context, ev *event.PoolCreated) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(ev.PoolID, model.PoolEventCreated, ev.Base, ev.InitialLiquidity, ev.CreatorAddress))
		if err != nil {
			return fmt.Errorf("append pool history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}

		pool := &model.Pool{
			PoolID:             ev.PoolID,
			CreatorAddress:     ev.CreatorAddress,
			TotalLiquidity:     ev.InitialLiquidity,
			AvailableLiquidity: ev.InitialLiquidity,
			MinAiScore:         ev.MinAiScore,
			InterestRate:       ev.InterestRate,
			ParticipantCount:   1,
			Status:             model.PoolStatusActive,
		}
		if err := d.stores.Pools.UpsertTx(ctx, tx, pool); err != nil {
			return fmt.Errorf("upsert pool %s: %w", ev.PoolID, err)
		}
		return nil
	})
}

func (d *Dispatcher) handleLiquidityAdded(ctx context.Context, ev *event.LiquidityAdded) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(ev.PoolID, model.PoolEventLiquidityAdded, ev.Base, ev.Amount, ev.ProviderAddress))
		if err != nil {
			return fmt.Errorf("append pool history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}
		return d.mutatePool(ctx, tx, ev.PoolID, func(pool *model.Pool) error {
			if err := poolDeposit(pool, ev.Amount); err != nil {
				return err
			}
			pool.ParticipantCount++
			return nil
		})
	})
}

func (d *Dispatcher) handleLiquidityRemoved(ctx context.Context, ev *event.LiquidityRemoved) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(ev.PoolID, model.PoolEventLiquidityRemoved, ev.Base, ev.Amount, ev.ProviderAddress))
		if err != nil {
			return fmt.Errorf("append pool history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}
		return d.mutatePool(ctx, tx, ev.PoolID, func(pool *model.Pool) error {
			if err := poolWithdraw(pool, ev.Amount); err != nil {
				return err
			}
			if pool.ParticipantCount > 0 {
				pool.ParticipantCount--
			}
			return nil
		})
	})
}

func (d *Dispatcher) handlePoolUpdated(ctx context.Context, ev *event.PoolUpdated) error {
	return d.stores.Transactor.WithinTx(ctx, func(tx *sql.Tx) error {
		inserted, err := d.stores.PoolHistory.AppendTx(ctx, tx, poolHistoryRow(ev.PoolID, model.PoolEventUpdated, ev.Base, "0", ""))
		if err != nil {
			return fmt.Errorf("append pool history: %w", err)
		}
		if !inserted {
			d.markReplay(ev)
			return nil
		}
		return d.mutatePool(ctx, tx, ev.PoolID, func(pool *model.Pool) error {
			pool.MinAiScore = ev.MinAiScore
			pool.InterestRate = ev.InterestRate
			switch model.PoolStatus(ev.Status) {
			case model.PoolStatusActive, model.PoolStatusPaused, model.PoolStatusClosed:
				pool.Status = model.PoolStatus(ev.Status)
			case "":
				// Parameter-only update, status unchanged.
			default:
				d.logger.Warn("unrecognized pool status, keeping previous", "pool_id", ev.PoolID, "status", ev.Status)
			}
			return nil
		})
	})
}
