package sign

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitshard/threshold/internal/zeroize"
	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/pool"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/pkg/wire"
)

const bindingFactorTag = "bitshard/frost-binding-factor"

// SignatureShare is one signer's contribution to the aggregate
// signature.
type SignatureShare struct {
	Z *curve.Scalar
}

// Marshal encodes share for transmission to the aggregator.
func (share *SignatureShare) Marshal() ([]byte, error) { return wire.Marshal(share) }

// UnmarshalSignatureShare decodes a wire-encoded SignatureShare.
func UnmarshalSignatureShare(data []byte) (*SignatureShare, error) {
	share := &SignatureShare{}
	if err := wire.Unmarshal(data, share); err != nil {
		return nil, err
	}
	return share, nil
}

// Signature is a finished BIP340 Schnorr signature: R.x || z, 64 bytes
// total when serialized.
type Signature struct {
	Rx [32]byte
	Z  *curve.Scalar
}

// Bytes returns the 64-byte BIP340 wire encoding.
func (sig *Signature) Bytes() []byte {
	out := make([]byte, 64)
	copy(out[:32], sig.Rx[:])
	copy(out[32:], sig.Z.Bytes())
	return out
}

func signerNodes(signers party.IDSlice, meta wallet.HtssMetadata) []polynomial.Node {
	nodes := make([]polynomial.Node, len(signers))
	for i, id := range signers {
		nodes[i] = polynomial.Node{ID: id, X: curve.NewScalar().SetNat(id.Nat()), Rank: meta.RankOf(id)}
	}
	return nodes
}

func checkSignerSet(signers party.IDSlice, meta wallet.HtssMetadata) error {
	if len(signers) < meta.Threshold {
		return fmt.Errorf("sign: %w: have %d signers, need at least %d", errs.ErrInsufficientSigners, len(signers), meta.Threshold)
	}
	if signers.HasDuplicates() {
		return fmt.Errorf("sign: %w: duplicate signer in set", errs.ErrConfiguration)
	}
	ranks := make([]party.Rank, len(signers))
	for i, id := range signers {
		ranks[i] = meta.RankOf(id)
	}
	if !polynomial.Admissible(ranks, meta.Threshold) {
		return fmt.Errorf("sign: %w", errs.ErrRankViolation)
	}
	return nil
}

// bindingFactor computes FROST's rho_i, binding a signer's nonce
// contribution to the full set of commitments and the message so that
// a signer cannot reuse a nonce commitment meant for one message or
// signer set against another.
func bindingFactor(id party.ID, signers party.IDSlice, commitments map[party.ID]*NonceCommitment, message []byte) *curve.Scalar {
	sorted := signers.Sorted()
	h := []byte{}
	h = append(h, []byte(id)...)
	h = append(h, message...)
	for _, s := range sorted {
		c := commitments[s]
		h = append(h, []byte(s)...)
		h = append(h, c.D.Compressed()...)
		h = append(h, c.E.Compressed()...)
	}
	digest := curve.TaggedHash(bindingFactorTag, h)
	return curve.NewScalar().SetBytesModular(digest[:])
}

// groupNonce computes R = sum_i (D_i + rho_i * E_i) over the signer
// set, canonicalized to even-Y, and reports whether a negation
// happened (which every signer must mirror onto its own d_i, e_i).
func groupNonce(signers party.IDSlice, commitments map[party.ID]*NonceCommitment, message []byte) (r *curve.Point, flipped bool, err error) {
	sum := curve.NewScalar().ActOnBase()
	for _, id := range signers {
		c, ok := commitments[id]
		if !ok || c.D == nil || c.E == nil {
			return nil, false, fmt.Errorf("sign: %w: missing commitment from %s", errs.ErrConfiguration, id)
		}
		rho := bindingFactor(id, signers, commitments, message)
		sum = sum.Add(c.D.Add(rho.Act(c.E)))
	}
	if sum.IsIdentity() {
		return nil, false, fmt.Errorf("sign: %w: aggregate nonce is identity", errs.ErrConfiguration)
	}
	even, flip := sum.EvenY()
	return even, flip, nil
}

// tweakedKey computes the BIP341 output key for groupKey under an
// optional tweak scalar (see curve.TweakPublicKey), and whether the
// tweak required a parity flip relative to the untweaked group key. A
// nil tweak is the identity: the group key is used as-is.
func tweakedKey(groupKey [32]byte, tweak *curve.Scalar) (outputX [32]byte, flipped bool, err error) {
	if tweak == nil {
		return groupKey, false, nil
	}
	internal, err := curve.LiftXOnly(groupKey)
	if err != nil {
		return outputX, false, err
	}
	out := internal.Add(tweak.ActOnBase())
	even, flip := out.EvenY()
	return even.XOnly(), flip, nil
}

// checkTweakCompatible rejects a tweak against a hierarchical signer
// set: Birkhoff coefficients only partition to 1 in the flat (all
// rank-0) case, which is what lets a per-signer tweak contribution sum
// to exactly one tweak across the signer set.
func checkTweakCompatible(tweak *curve.Scalar, meta wallet.HtssMetadata) error {
	if tweak != nil && meta.Hierarchical() {
		return fmt.Errorf("sign: %w: taproot tweak requires a flat (non-hierarchical) signer set", errs.ErrConfiguration)
	}
	return nil
}

// Round2 computes this signer's partial signature over message, given
// every signer's round-1 commitment (including its own). tweak is nil
// for a plain BIP340 signature over cfg.GroupKey, or a BIP341 tweak
// scalar (see curve.TweakPublicKey) to sign for the corresponding
// taproot output key instead.
func Round2(cfg *wallet.Config, nonces *NonceState, signers party.IDSlice, commitments map[party.ID]*NonceCommitment, message []byte, tweak *curve.Scalar) (*SignatureShare, error) {
	// (d_i, e_i) must be erased immediately after this single use, win
	// or lose, so a caller cannot accidentally feed the same NonceState
	// into a second Round2 call.
	defer zeroize.All(nonces)

	if err := checkSignerSet(signers, cfg.Metadata); err != nil {
		return nil, err
	}
	if err := checkTweakCompatible(tweak, cfg.Metadata); err != nil {
		return nil, err
	}
	if !signers.Contains(cfg.ID) {
		return nil, fmt.Errorf("sign: %w: self not in signer set", errs.ErrConfiguration)
	}

	r, flipped, err := groupNonce(signers, commitments, message)
	if err != nil {
		return nil, err
	}

	outputX, tweakFlipped, err := tweakedKey(cfg.GroupKey, tweak)
	if err != nil {
		return nil, err
	}
	challenge := curve.ChallengeHash(r.XOnly(), outputX, message)
	c := curve.NewScalar().SetBytesModular(challenge[:])

	weights, err := polynomial.BirkhoffCoefficients(signerNodes(signers, cfg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("sign: %w", errs.ErrRankViolation)
	}

	rho := bindingFactor(cfg.ID, signers, commitments, message)
	nonceTerm := nonces.d.Add(rho.Mul(nonces.e))
	if flipped {
		nonceTerm = nonceTerm.Negate()
	}

	effectiveShare := cfg.Share
	if tweak != nil {
		effectiveShare = effectiveShare.Add(tweak)
		if tweakFlipped {
			effectiveShare = effectiveShare.Negate()
		}
	}

	z := nonceTerm.Add(c.Mul(weights[cfg.ID]).Mul(effectiveShare))
	return &SignatureShare{Z: z}, nil
}

// Aggregate verifies every signer's partial signature against its
// public verification share and sums them into a final BIP340
// signature. It recomputes R and the challenge itself rather than
// trusting any signer's claim about them. tweak must match the value
// every signer passed to Round2.
func Aggregate(cfg *wallet.Config, signers party.IDSlice, commitments map[party.ID]*NonceCommitment, shares map[party.ID]*SignatureShare, message []byte, tweak *curve.Scalar) (*Signature, error) {
	if err := checkSignerSet(signers, cfg.Metadata); err != nil {
		return nil, err
	}
	if err := checkTweakCompatible(tweak, cfg.Metadata); err != nil {
		return nil, err
	}

	r, flipped, err := groupNonce(signers, commitments, message)
	if err != nil {
		return nil, err
	}
	outputX, tweakFlipped, err := tweakedKey(cfg.GroupKey, tweak)
	if err != nil {
		return nil, err
	}
	challenge := curve.ChallengeHash(r.XOnly(), outputX, message)
	c := curve.NewScalar().SetBytesModular(challenge[:])

	weights, err := polynomial.BirkhoffCoefficients(signerNodes(signers, cfg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("sign: %w", errs.ErrRankViolation)
	}

	z := curve.NewScalar()
	var mu sync.Mutex
	pl := pool.New(0)
	verifyErr := pl.VerifyEach(context.Background(), signers, func(_ context.Context, id party.ID) error {
		share, ok := shares[id]
		if !ok || share.Z == nil {
			return errs.Blame(id, fmt.Errorf("sign: missing signature share"))
		}
		vshare, ok := cfg.VerificationShares[id]
		if !ok {
			return fmt.Errorf("sign: %w: no verification share for %s", errs.ErrConfiguration, id)
		}
		rho := bindingFactor(id, signers, commitments, message)
		nonceTerm := commitments[id].D.Add(rho.Act(commitments[id].E))
		if flipped {
			nonceTerm = nonceTerm.Negate()
		}
		effectiveVshare := vshare
		if tweak != nil {
			effectiveVshare = effectiveVshare.Add(tweak.ActOnBase())
			if tweakFlipped {
				effectiveVshare = effectiveVshare.Negate()
			}
		}
		expected := nonceTerm.Add(c.Mul(weights[id]).Act(effectiveVshare))
		if !share.Z.ActOnBase().Equal(expected) {
			return errs.Blame(id, fmt.Errorf("sign: %w", errs.ErrInvalidSignatureShare))
		}
		mu.Lock()
		z = z.Add(share.Z)
		mu.Unlock()
		return nil
	})
	if verifyErr != nil {
		return nil, verifyErr
	}

	return &Signature{Rx: r.XOnly(), Z: z}, nil
}
