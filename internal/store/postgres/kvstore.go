package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/predictify/marketengine/internal/host"
)

// KVStore implements host.KV over the kv_store table. With storage.backend =
// "postgres" it serves every namespace: persistent and instance data (market
// records, admin state, the reentrancy flag) and temporary entries, whose TTL
// is kept in expires_at.
type KVStore struct {
	client *Client
}

// NewKVStore wraps an already-connected, already-migrated Client.
func NewKVStore(client *Client) *KVStore {
	return &KVStore{client: client}
}

func (k *KVStore) Get(ctx context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	var val []byte
	err := k.client.pool.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE namespace = $1 AND key = $2 AND (expires_at IS NULL OR expires_at > NOW())`,
		string(ns), key,
	).Scan(&val)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: kv get %s/%s: %w", ns, key, err)
	}
	return val, true, nil
}

func (k *KVStore) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return k.PutWithTTL(ctx, ns, key, val, 0)
}

func (k *KVStore) PutWithTTL(ctx context.Context, ns host.Namespace, key string, val []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := k.client.pool.Exec(ctx,
		`INSERT INTO kv_store (namespace, key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		string(ns), key, val, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: kv put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (k *KVStore) Delete(ctx context.Context, ns host.Namespace, key string) error {
	_, err := k.client.pool.Exec(ctx,
		`DELETE FROM kv_store WHERE namespace = $1 AND key = $2`,
		string(ns), key,
	)
	if err != nil {
		return fmt.Errorf("postgres: kv delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (k *KVStore) ListKeys(ctx context.Context, ns host.Namespace, prefix string) ([]string, error) {
	rows, err := k.client.pool.Query(ctx,
		`SELECT key FROM kv_store WHERE namespace = $1 AND key LIKE $2 AND (expires_at IS NULL OR expires_at > NOW())`,
		string(ns), prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: kv list_keys %s/%s*: %w", ns, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgres: kv list_keys scan: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
