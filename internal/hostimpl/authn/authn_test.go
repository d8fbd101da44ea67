package authn_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/hostimpl/authn"
)

// memoryKV is a minimal in-memory host.KV for exercising nonce bookkeeping
// without a real backend.
type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string][]byte{}}
}

func (m *memoryKV) key(ns host.Namespace, key string) string {
	return string(ns) + "/" + key
}

func (m *memoryKV) Get(_ context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[m.key(ns, key)]
	return v, ok, nil
}

func (m *memoryKV) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return m.PutWithTTL(ctx, ns, key, val, 0)
}

func (m *memoryKV) PutWithTTL(_ context.Context, ns host.Namespace, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(ns, key)] = val
	return nil
}

func (m *memoryKV) Delete(_ context.Context, ns host.Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.key(ns, key))
	return nil
}

func (m *memoryKV) ListKeys(_ context.Context, _ host.Namespace, _ string) ([]string, error) {
	return nil, nil
}

// signPayload reproduces the CallerAuth EIP-712 digest and signs it, standing
// in for a client-side wallet.
func signPayload(t *testing.T, priv []byte, chainID int64, payload []byte, nonce uint64) []byte {
	t.Helper()
	pk, err := ethcrypto.ToECDSA(priv)
	require.NoError(t, err)

	domainTypeHash := ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	authTypeHash := ethcrypto.Keccak256([]byte("CallerAuth(address caller,bytes32 payloadHash,uint256 nonce)"))

	pad32 := func(n *big.Int) []byte {
		b := n.Bytes()
		out := make([]byte, 32)
		copy(out[32-len(b):], b)
		return out
	}

	domainSep := ethcrypto.Keccak256(concat(
		domainTypeHash,
		ethcrypto.Keccak256([]byte("PredictifyAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		pad32(big.NewInt(chainID)),
	))
	structHash := ethcrypto.Keccak256(concat(
		authTypeHash,
		ethcrypto.Keccak256(payload),
		pad32(new(big.Int).SetUint64(nonce)),
	))
	digest := ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, domainSep, structHash))

	sig, err := ethcrypto.Sign(digest, pk)
	require.NoError(t, err)
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestVerifierAuthenticate(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(priv.PublicKey)

	kv := newMemoryKV()
	v := authn.NewVerifier(kv, 137)

	payload := []byte(`{"action":"place_bet","market_id":"m1"}`)
	sig := signPayload(t, ethcrypto.FromECDSA(priv), 137, payload, 1)

	t.Run("valid signature and fresh nonce succeeds", func(t *testing.T) {
		err := v.Authenticate(context.Background(), addr.Hex(), host.AuthRequest{
			Signature: sig,
			Payload:   payload,
			Nonce:     1,
		})
		assert.NoError(t, err)
	})

	t.Run("replayed nonce is rejected", func(t *testing.T) {
		err := v.Authenticate(context.Background(), addr.Hex(), host.AuthRequest{
			Signature: sig,
			Payload:   payload,
			Nonce:     1,
		})
		assert.Error(t, err)
	})

	t.Run("wrong identity is rejected", func(t *testing.T) {
		other := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
		sig2 := signPayload(t, ethcrypto.FromECDSA(priv), 137, payload, 2)
		err := v.Authenticate(context.Background(), other.Hex(), host.AuthRequest{
			Signature: sig2,
			Payload:   payload,
			Nonce:     2,
		})
		assert.Error(t, err)
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		sig3 := signPayload(t, ethcrypto.FromECDSA(priv), 137, payload, 3)
		err := v.Authenticate(context.Background(), addr.Hex(), host.AuthRequest{
			Signature: sig3,
			Payload:   []byte(`{"action":"place_bet","market_id":"m2"}`),
			Nonce:     3,
		})
		assert.Error(t, err)
	})

	t.Run("malformed signature length is rejected", func(t *testing.T) {
		err := v.Authenticate(context.Background(), addr.Hex(), host.AuthRequest{
			Signature: []byte{1, 2, 3},
			Payload:   payload,
			Nonce:     4,
		})
		assert.Error(t, err)
	})
}
