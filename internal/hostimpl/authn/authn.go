// Package authn implements host.Authenticator by recovering the signer of an
// EIP-712 digest and checking it against the caller's declared identity, the
// inverse of the teacher's signer.go which only ever signed outbound CLOB
// orders. A caller here is the one presenting a signature, not producing one.
package authn

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/predictify/marketengine/internal/host"
)

// AuthDomain(string name,string version,uint256 chainId)
var eip712DomainTypeHash = ethcrypto.Keccak256(
	[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
)

// CallerAuth(address caller,bytes32 payloadHash,uint256 nonce)
var callerAuthTypeHash = ethcrypto.Keccak256(
	[]byte("CallerAuth(address caller,bytes32 payloadHash,uint256 nonce)"),
)

const nonceTTL = 24 * time.Hour

// Verifier implements host.Authenticator over go-ethereum's secp256k1
// signature recovery, checking the recovered address against the declared
// identity and rejecting nonces already spent within the replay window.
type Verifier struct {
	kv        host.KV
	chainID   int64
	domainSep []byte
}

// NewVerifier builds a Verifier for the given chain ID, using kv's
// NamespaceTemporary region to track spent nonces.
func NewVerifier(kv host.KV, chainID int64) *Verifier {
	v := &Verifier{kv: kv, chainID: chainID}
	v.domainSep = v.buildDomainSeparator("PredictifyAuthDomain", "1", chainID)
	return v
}

var _ host.Authenticator = (*Verifier)(nil)

// Authenticate verifies that req.Signature is a valid EIP-712 signature over
// req.Payload and req.Nonce, produced by the private key controlling the
// address identity names, and that the nonce has not already been consumed.
func (v *Verifier) Authenticate(ctx context.Context, identity string, req host.AuthRequest) error {
	if len(req.Signature) != 65 {
		return fmt.Errorf("authn: signature must be 65 bytes, got %d", len(req.Signature))
	}

	want, err := parseAddress(identity)
	if err != nil {
		return fmt.Errorf("authn: identity %q: %w", identity, err)
	}

	digest := v.digest(req.Payload, req.Nonce)

	sig := make([]byte, 65)
	copy(sig, req.Signature)
	// go-ethereum's Ecrecover expects v in {0,1}; EIP-712 signers emit {27,28}.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("authn: recover signer: %w", err)
	}
	got := ethcrypto.PubkeyToAddress(*pub)
	if got != want {
		return fmt.Errorf("authn: signature recovered %s, expected %s", got.Hex(), want.Hex())
	}

	return v.consumeNonce(ctx, got, req.Nonce)
}

func (v *Verifier) consumeNonce(ctx context.Context, addr common.Address, nonce uint64) error {
	key := fmt.Sprintf("nonce/%s/%d", strings.ToLower(addr.Hex()), nonce)
	_, seen, err := v.kv.Get(ctx, host.NamespaceTemporary, key)
	if err != nil {
		return fmt.Errorf("authn: nonce lookup: %w", err)
	}
	if seen {
		return fmt.Errorf("authn: nonce %d already used for %s", nonce, addr.Hex())
	}
	if err := v.kv.PutWithTTL(ctx, host.NamespaceTemporary, key, []byte{1}, nonceTTL); err != nil {
		return fmt.Errorf("authn: nonce record: %w", err)
	}
	return nil
}

// digest computes keccak256("\x19\x01" || domainSeparator || structHash) for
// a CallerAuth struct binding the payload and nonce together.
func (v *Verifier) digest(payload []byte, nonce uint64) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			callerAuthTypeHash,
			ethcrypto.Keccak256(payload),
			bigIntTo32Bytes(new(big.Int).SetUint64(nonce)),
		),
	)
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, v.domainSep, structHash))
}

func (v *Verifier) buildDomainSeparator(name, version string, chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

func parseAddress(identity string) (common.Address, error) {
	if !common.IsHexAddress(identity) {
		return common.Address{}, fmt.Errorf("not a hex address")
	}
	return common.HexToAddress(identity), nil
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
