package admin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/admin"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) key(ns host.Namespace, key string) string { return string(ns) + "/" + key }

func (m *memKV) Get(_ context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[m.key(ns, key)]
	return v, ok, nil
}

func (m *memKV) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return m.PutWithTTL(ctx, ns, key, val, 0)
}

func (m *memKV) PutWithTTL(_ context.Context, ns host.Namespace, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(ns, key)] = val
	return nil
}

func (m *memKV) Delete(_ context.Context, ns host.Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.key(ns, key))
	return nil
}

func (m *memKV) ListKeys(_ context.Context, ns host.Namespace, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	want := m.key(ns, prefix)
	for k := range m.data {
		if len(k) >= len(want) && k[:len(want)] == want {
			keys = append(keys, k[len(string(ns))+1:])
		}
	}
	return keys, nil
}

type fixedClock struct{ now int64 }

func (c fixedClock) Now() int64 { return c.now }

func newModule(now int64) *admin.Module {
	return admin.New(newMemKV(), fixedClock{now: now}, domain.DefaultEngineConfig())
}

func TestBootstrapSeedsSingleSuperAdmin(t *testing.T) {
	m := newModule(1000)
	require.NoError(t, m.Bootstrap(context.Background(), "root"))

	rec, err := m.GetAdmin(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, rec.Role)
	assert.True(t, rec.IsActive)

	cfg, err := m.GetMultisig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Threshold)
}

// TestRemoveAdminRejectsLastSuperAdmin covers I7: at least one active
// SuperAdmin must always remain.
func TestRemoveAdminRejectsLastSuperAdmin(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))

	err := m.RemoveAdmin(ctx, "root", "root")
	assert.ErrorIs(t, err, domain.ErrLastSuperAdmin)
}

func TestRemoveAdminSucceedsWithSecondSuperAdmin(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))
	require.NoError(t, m.AddAdmin(ctx, "root", "root2", domain.RoleSuperAdmin))

	err := m.RemoveAdmin(ctx, "root", "root")
	require.NoError(t, err)

	rec, err := m.GetAdmin(ctx, "root")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
}

// TestRemoveAdminRejectsWhenThresholdWouldExceedRemaining covers I8: the
// multisig threshold may never exceed the remaining active admin count.
func TestRemoveAdminRejectsWhenThresholdWouldExceedRemaining(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))
	require.NoError(t, m.AddAdmin(ctx, "root", "root2", domain.RoleSuperAdmin))
	require.NoError(t, m.AddAdmin(ctx, "root", "admin2", domain.RoleAdmin))
	require.NoError(t, m.SetThreshold(ctx, "root", 3))

	err := m.RemoveAdmin(ctx, "root", "admin2")
	assert.ErrorIs(t, err, domain.ErrThresholdExceedsAdmins)
}

func TestSetThresholdRejectsAboveActiveAdminCount(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))

	err := m.SetThreshold(ctx, "root", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
}

func TestNonSuperAdminCannotAddAdmin(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))
	require.NoError(t, m.AddAdmin(ctx, "root", "admin2", domain.RoleAdmin))

	err := m.AddAdmin(ctx, "admin2", "admin3", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotSuperAdmin)
}

// TestPendingActionLifecycle covers create -> approve -> execute under a
// 2-of-N multisig threshold.
func TestPendingActionLifecycle(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))
	require.NoError(t, m.AddAdmin(ctx, "root", "root2", domain.RoleSuperAdmin))
	require.NoError(t, m.SetThreshold(ctx, "root", 2))

	id, err := m.CreatePendingAction(ctx, "root", domain.ActionRemoveAdmin, "root2", nil)
	require.NoError(t, err)

	met, err := m.Approve(ctx, "root2", id)
	require.NoError(t, err)
	assert.True(t, met, "threshold of 2 met after initiator + one more approval")

	action, err := m.Execute(ctx, id)
	require.NoError(t, err)
	assert.True(t, action.Executed)
}

func TestApproveRejectsDuplicateApproval(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))

	id, err := m.CreatePendingAction(ctx, "root", domain.ActionSetThreshold, "root", nil)
	require.NoError(t, err)

	_, err = m.Approve(ctx, "root", id)
	assert.ErrorIs(t, err, domain.ErrAlreadyApproved)
}

func TestExecuteRejectsBelowThreshold(t *testing.T) {
	m := newModule(1000)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))
	require.NoError(t, m.AddAdmin(ctx, "root", "root2", domain.RoleSuperAdmin))
	require.NoError(t, m.SetThreshold(ctx, "root", 2))

	id, err := m.CreatePendingAction(ctx, "root", domain.ActionRemoveAdmin, "root2", nil)
	require.NoError(t, err)

	_, err = m.Execute(ctx, id)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestExecuteRejectsExpiredAction(t *testing.T) {
	kv := newMemKV()
	cfg := domain.DefaultEngineConfig()
	m := admin.New(kv, fixedClock{now: 1000}, cfg)
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, "root"))

	id, err := m.CreatePendingAction(ctx, "root", domain.ActionSetThreshold, "root", nil)
	require.NoError(t, err)

	// A second Module over the same KV but a later clock, simulating the
	// action's TTL elapsing before execution.
	later := admin.New(kv, fixedClock{now: 1000 + int64(cfg.ActionTTL.Seconds()) + 1}, cfg)
	_, err = later.Execute(ctx, id)
	assert.ErrorIs(t, err, domain.ErrExpired)
}
