// Package sign implements two-round FROST-style threshold Schnorr
// signing over secp256k1, producing BIP340 Taproot signatures. Round 1
// derives a pair of hedged deterministic nonces and broadcasts their
// commitments; Round 2 computes a per-signer partial signature from
// those commitments, the message, and the signer's HTSS-weighted share
// of the group key; Aggregate verifies and sums the partial signatures
// into a final signature.
package sign

import (
	"crypto/rand"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/pkg/wire"
)

const deriveHashKeyContext = "github.com/bitshard/threshold frost 2026 derive hash key"

// NonceCommitment is what Round1 broadcasts: the public half of a pair
// of single-use nonces.
type NonceCommitment struct {
	D *curve.Point
	E *curve.Point
}

// Marshal encodes the commitment for broadcast to the other signers.
func (c *NonceCommitment) Marshal() ([]byte, error) { return wire.Marshal(c) }

// UnmarshalNonceCommitment decodes a wire-encoded NonceCommitment.
func UnmarshalNonceCommitment(data []byte) (*NonceCommitment, error) {
	c := &NonceCommitment{}
	if err := wire.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// NonceState is the private half, kept locally between Round1 and
// Round2. A NonceState must never be reused across two signing
// sessions: doing so leaks the signer's secret share to anyone who
// observes both resulting signature shares.
type NonceState struct {
	d *curve.Scalar
	e *curve.Scalar
}

// Zeroize destroys both nonce scalars. Call immediately after Round2
// consumes the state, win or lose.
func (s *NonceState) Zeroize() {
	if s == nil {
		return
	}
	if s.d != nil {
		s.d.Zeroize()
	}
	if s.e != nil {
		s.e.Zeroize()
	}
}

// Round1 derives this signer's nonce pair for sessionID/message and
// returns the commitment to broadcast plus the private state to retain
// for Round2.
//
// The nonces are hedged: derived from a keyed hash of the signer's own
// secret share, the session ID, the message, and 32 fresh random
// bytes, rather than sampled purely from the RNG. A constant or
// predictable RNG still yields unpredictable nonces this way, and a
// compromised RNG alone cannot force nonce reuse, since the derivation
// is also bound to the secret share.
func Round1(cfg *wallet.Config, sessionID, message []byte, rng io.Reader) (*NonceCommitment, *NonceState, error) {
	if rng == nil {
		rng = rand.Reader
	}

	shareBytes := cfg.Share.Bytes()
	hashKey := make([]byte, 32)
	blake3.DeriveKey(deriveHashKeyContext, shareBytes, hashKey)

	hasher, err := blake3.NewKeyed(hashKey)
	if err != nil {
		return nil, nil, err
	}
	_, _ = hasher.Write(sessionID)
	_, _ = hasher.Write(message)

	a := make([]byte, 32)
	if _, err := io.ReadFull(rng, a); err != nil {
		return nil, nil, err
	}
	_, _ = hasher.Write(a)

	digest := hasher.Digest()
	d, err := curve.Random(digest)
	if err != nil {
		return nil, nil, err
	}
	e, err := curve.Random(digest)
	if err != nil {
		return nil, nil, err
	}

	commitment := &NonceCommitment{D: d.ActOnBase(), E: e.ActOnBase()}
	return commitment, &NonceState{d: d, e: e}, nil
}
