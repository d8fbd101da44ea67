package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/predictify/marketengine/internal/host"
)

// ValueTransfer implements host.ValueTransfer over a balances table, the
// development/single-node stand-in for the external fungible-value asset the
// spec's host environment normally custodies (a real deployment would swap
// this for a wrapper around an actual token contract via internal/host's
// Invoker, without the engine core changing at all).
type ValueTransfer struct {
	client *Client
}

// NewValueTransfer wraps an already-connected, already-migrated Client.
func NewValueTransfer(client *Client) *ValueTransfer {
	return &ValueTransfer{client: client}
}

var _ host.ValueTransfer = (*ValueTransfer)(nil)

// Transfer atomically debits from and credits to by amount, failing with
// domain.ErrInsufficientBalance-shaped detail if from's balance is too low.
// "contract" is exempt from the balance floor since it is the pool of record
// for every stake and fee this engine ever collects.
func (v *ValueTransfer) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("postgres: transfer %s->%s: negative amount", from, to)
	}
	if amount.Sign() == 0 {
		return nil
	}

	tx, err := v.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: transfer %s->%s: begin: %w", from, to, err)
	}
	defer tx.Rollback(ctx)

	if from != "contract" {
		var balStr string
		err := tx.QueryRow(ctx, `SELECT amount::text FROM balances WHERE identity = $1 FOR UPDATE`, from).Scan(&balStr)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("postgres: transfer %s->%s: read balance: %w", from, to, err)
		}
		bal := new(big.Int)
		if err != pgx.ErrNoRows {
			bal.SetString(balStr, 10)
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("postgres: transfer %s->%s: insufficient balance (%s < %s)", from, to, bal.String(), amount.String())
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (identity, amount) VALUES ($1, -$2)
		 ON CONFLICT (identity) DO UPDATE SET amount = balances.amount - $2`,
		from, amount.String(),
	); err != nil {
		return fmt.Errorf("postgres: transfer %s->%s: debit: %w", from, to, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (identity, amount) VALUES ($1, $2)
		 ON CONFLICT (identity) DO UPDATE SET amount = balances.amount + $2`,
		to, amount.String(),
	); err != nil {
		return fmt.Errorf("postgres: transfer %s->%s: credit: %w", from, to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: transfer %s->%s: commit: %w", from, to, err)
	}
	return nil
}

// Credit adds amount to identity's balance without a corresponding debit.
// Not part of host.ValueTransfer, and not called anywhere in this
// repository; it seeds dev/test accounts in the absence of a real external
// funding rail.
func (v *ValueTransfer) Credit(ctx context.Context, identity string, amount *big.Int) error {
	_, err := v.client.pool.Exec(ctx,
		`INSERT INTO balances (identity, amount) VALUES ($1, $2)
		 ON CONFLICT (identity) DO UPDATE SET amount = balances.amount + $2`,
		identity, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", identity, err)
	}
	return nil
}

// Balance returns identity's current balance.
func (v *ValueTransfer) Balance(ctx context.Context, identity string) (*big.Int, error) {
	var balStr string
	err := v.client.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE identity = $1`, identity).Scan(&balStr)
	if err == pgx.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance %s: %w", identity, err)
	}
	bal, _ := new(big.Int).SetString(balStr, 10)
	return bal, nil
}
