package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

// Pool liquidity ledger rules. Loan draws decrease availableLiquidity,
// repayments and auction proceeds increase it, liquidity add/remove move
// both totals. Interest and auction proceeds can legitimately push
// availableLiquidity past the recorded total; that grows the total.
// availableLiquidity below zero means a missed event and is surfaced.

func poolDraw(pool *model.Pool, amount string) error {
	available, err := model.SubAmounts(pool.AvailableLiquidity, amount)
	if err != nil {
		return err
	}
	negative, err := model.AmountIsNegative(available)
	if err != nil {
		return err
	}
	if negative {
		return &InvariantError{
			Kind:    "negative_liquidity",
			Subject: pool.PoolID,
			Msg:     fmt.Sprintf("draw %s exceeds available %s", amount, pool.AvailableLiquidity),
		}
	}
	pool.AvailableLiquidity = available
	return nil
}

func poolCredit(pool *model.Pool, amount string) error {
	available, err := model.AddAmounts(pool.AvailableLiquidity, amount)
	if err != nil {
		return err
	}
	pool.AvailableLiquidity = available
	cmp, err := model.CompareAmounts(pool.AvailableLiquidity, pool.TotalLiquidity)
	if err != nil {
		return err
	}
	if cmp > 0 {
		pool.TotalLiquidity = pool.AvailableLiquidity
	}
	return nil
}

func poolDeposit(pool *model.Pool, amount string) error {
	total, err := model.AddAmounts(pool.TotalLiquidity, amount)
	if err != nil {
		return err
	}
	available, err := model.AddAmounts(pool.AvailableLiquidity, amount)
	if err != nil {
		return err
	}
	pool.TotalLiquidity = total
	pool.AvailableLiquidity = available
	return nil
}

func poolWithdraw(pool *model.Pool, amount string) error {
	total, err := model.SubAmounts(pool.TotalLiquidity, amount)
	if err != nil {
		return err
	}
	available, err := model.SubAmounts(pool.AvailableLiquidity, amount)
	if err != nil {
		return err
	}
	for _, v := range []string{total, available} {
		negative, err := model.AmountIsNegative(v)
		if err != nil {
			return err
		}
		if negative {
			return &InvariantError{
				Kind:    "negative_liquidity",
				Subject: pool.PoolID,
				Msg:     fmt.Sprintf("withdrawal %s exceeds pool balance (total %s, available %s)", amount, pool.TotalLiquidity, pool.AvailableLiquidity),
			}
		}
	}
	pool.TotalLiquidity = total
	pool.AvailableLiquidity = available
	return nil
}

// mutatePool loads the pool, applies mutate, and persists the result in the
// same transaction. An unknown pool id on a liquidity event is a violation.
func (d *Dispatcher) mutatePool(ctx context.Context, tx *sql.Tx, poolID string, mutate func(*model.Pool) error) error {
	pool, err := d.stores.Pools.GetTx(ctx, tx, poolID)
	if err != nil {
		return fmt.Errorf("get pool %s: %w", poolID, err)
	}
	if pool == nil {
		return &InvariantError{
			Kind:    "unknown_pool",
			Subject: poolID,
			Msg:     "liquidity event for a pool that was never created",
		}
	}
	if err := mutate(pool); err != nil {
		return err
	}
	if err := d.stores.Pools.UpsertTx(ctx, tx, pool); err != nil {
		return fmt.Errorf("upsert pool %s: %w", poolID, err)
	}
	return nil
}

func poolHistoryRow(poolID string, eventType model.PoolEventType, base event.Base, amount, actor string) *model.PoolHistory {
	return &model.PoolHistory{
		ID:           uuid.New(),
		PoolID:       poolID,
		EventType:    eventType,
		TxHash:       base.TxHash,
		LogIndex:     base.LogIndex,
		BlockNumber:  base.BlockNumber,
		Amount:       amount,
		ActorAddress: actor,
	}
}

func loanHistoryRow(loanID string, eventType model.LoanEventType, base event.Base, amount string) *model.LoanHistory {
	blockTime := base.BlockTime
	var bt *time.Time
	if !blockTime.IsZero() {
		bt = &blockTime
	}
	return &model.LoanHistory{
		ID:          uuid.New(),
		LoanID:      loanID,
		EventType:   eventType,
		TxHash:      base.TxHash,
		LogIndex:    base.LogIndex,
		BlockNumber: base.BlockNumber,
		Amount:      amount,
		BlockTime:   bt,
	}
}
