package payout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// TimeLock implements the optional fee-withdrawal time-lock (§9 Open
// Question 3): off by default (WithdrawLock == 0), in which case
// CheckAndRecord is a no-op, matching the spec's "may leave it unconfigured
// (lock = 0) without violating any invariant."
type TimeLock struct {
	kv  host.KV
	cfg domain.EngineConfig
}

// NewTimeLock creates a TimeLock over the storage facade.
func NewTimeLock(kv host.KV, cfg domain.EngineConfig) *TimeLock {
	return &TimeLock{kv: kv, cfg: cfg}
}

func lastWithdrawalKey(admin domain.Identity) string {
	return "withdraw_lock:" + string(admin)
}

// CheckAndRecord enforces now-last_withdrawal >= withdraw_lock when a lock
// is configured, then records now as the new last-withdrawal timestamp.
func (t *TimeLock) CheckAndRecord(ctx context.Context, admin domain.Identity, now int64) error {
	if t.cfg.WithdrawLock <= 0 {
		return nil
	}

	key := lastWithdrawalKey(admin)
	raw, ok, err := t.kv.Get(ctx, host.NamespacePersistent, key)
	if err != nil {
		return fmt.Errorf("payout: timelock: %w", err)
	}
	if ok {
		last, err := strconv.ParseInt(string(raw), 10, 64)
		if err == nil && now-last < int64(t.cfg.WithdrawLock/time.Second) {
			return domain.ErrWithdrawLocked
		}
	}

	return t.kv.Put(ctx, host.NamespacePersistent, key, []byte(strconv.FormatInt(now, 10)))
}
