// Package recovery implements single-share reconstruction: a quorum
// of helper parties, each already holding a share of the group secret,
// combine Birkhoff recovery coefficients to reconstruct exactly one
// lost party's share without ever reconstructing the group secret
// itself or revealing their own shares to the recovering party.
//
// The lost party's rank is always read from the authoritative,
// locally persisted HtssMetadata rather than accepted as a parameter
// from the recovering party or from wire input: honoring a
// self-declared rank would let a low-authority party claim a higher
// one and recover more reconstructive power than it was issued.
package recovery

import (
	"fmt"
	"io"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/envelope"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/wallet"
)

func helperNodes(helperIDs party.IDSlice, meta wallet.HtssMetadata) []polynomial.Node {
	nodes := make([]polynomial.Node, len(helperIDs))
	for i, id := range helperIDs {
		nodes[i] = polynomial.Node{ID: id, X: curve.NewScalar().SetNat(id.Nat()), Rank: meta.RankOf(id)}
	}
	return nodes
}

func checkHelperSet(helperIDs party.IDSlice, meta wallet.HtssMetadata) error {
	if len(helperIDs) < meta.Threshold {
		return fmt.Errorf("recovery: %w: have %d helpers, need at least %d", errs.ErrInsufficientSigners, len(helperIDs), meta.Threshold)
	}
	if helperIDs.HasDuplicates() {
		return fmt.Errorf("recovery: %w: duplicate helper", errs.ErrConfiguration)
	}
	ranks := make([]party.Rank, len(helperIDs))
	for i, id := range helperIDs {
		ranks[i] = meta.RankOf(id)
	}
	if !polynomial.Admissible(ranks, meta.Threshold) {
		return fmt.Errorf("recovery: %w", errs.ErrRankViolation)
	}
	return nil
}

// Helper computes this party's weighted contribution toward
// reconstructing lostID's share and seals it to the recovering
// party's transport key. helperIDs is the full quorum contributing to
// this recovery, including the caller.
func Helper(cfg *wallet.Config, lostID party.ID, helperIDs party.IDSlice, transportSecret *curve.Scalar, recipientPub *curve.Point, rng io.Reader) (*envelope.Envelope, error) {
	if err := checkHelperSet(helperIDs, cfg.Metadata); err != nil {
		return nil, err
	}
	if !helperIDs.Contains(cfg.ID) {
		return nil, fmt.Errorf("recovery: %w: self not in helper set", errs.ErrConfiguration)
	}
	if lostID == cfg.ID {
		return nil, fmt.Errorf("recovery: %w: cannot recover own share as a helper", errs.ErrConfiguration)
	}

	lost := polynomial.Node{
		ID:   lostID,
		X:    curve.NewScalar().SetNat(lostID.Nat()),
		Rank: cfg.Metadata.RankOf(lostID), // authoritative; never caller-supplied
	}

	weights, err := polynomial.RecoveryCoefficients(helperNodes(helperIDs, cfg.Metadata), lost)
	if err != nil {
		return nil, fmt.Errorf("recovery: %w", errs.ErrRankViolation)
	}

	contribution := weights[cfg.ID].Mul(cfg.Share)
	defer contribution.Zeroize()

	return envelope.Seal(transportSecret, recipientPub, contribution.Bytes(), rng)
}

// Finalize is run by the recovering party: it decrypts and verifies
// every helper's contribution against its known verification share,
// sums them into the reconstructed share, and returns a Config
// identical in shape to one produced by DKG or resharing.
func Finalize(
	lostID party.ID,
	meta wallet.HtssMetadata,
	helperIDs party.IDSlice,
	incoming map[party.ID]*envelope.Envelope,
	recipientSecret *curve.Scalar,
	helperTransportPublic map[party.ID]*curve.Point,
	verificationShares map[party.ID]*curve.Point,
	groupKey [32]byte,
	generation uint64,
) (*wallet.Config, error) {
	if err := checkHelperSet(helperIDs, meta); err != nil {
		return nil, err
	}

	lost := polynomial.Node{
		ID:   lostID,
		X:    curve.NewScalar().SetNat(lostID.Nat()),
		Rank: meta.RankOf(lostID),
	}
	weights, err := polynomial.RecoveryCoefficients(helperNodes(helperIDs, meta), lost)
	if err != nil {
		return nil, fmt.Errorf("recovery: %w", errs.ErrRankViolation)
	}

	recovered := curve.NewScalar()
	for _, id := range helperIDs {
		env, ok := incoming[id]
		if !ok {
			return nil, fmt.Errorf("recovery: %w: no contribution from %s", errs.ErrConfiguration, id)
		}
		peerPub, ok := helperTransportPublic[id]
		if !ok {
			return nil, fmt.Errorf("recovery: %w: missing transport key for %s", errs.ErrConfiguration, id)
		}
		plaintext, err := envelope.Open(recipientSecret, peerPub, env)
		if err != nil {
			return nil, errs.Blame(id, fmt.Errorf("recovery: %w", err))
		}
		contribution := curve.NewScalar()
		if err := contribution.SetBytes(plaintext); err != nil {
			return nil, errs.Blame(id, fmt.Errorf("recovery: malformed contribution: %w", err))
		}

		if vshare, ok := verificationShares[id]; ok {
			expected := weights[id].Act(vshare)
			if !contribution.ActOnBase().Equal(expected) {
				return nil, errs.Blame(id, fmt.Errorf("recovery: %w", errs.ErrInvalidCommitment))
			}
		}

		recovered = recovered.Add(contribution)
	}

	if vshare, ok := verificationShares[lostID]; ok && !recovered.ActOnBase().Equal(vshare) {
		return nil, fmt.Errorf("recovery: %w: reconstructed share does not match known verification share", errs.ErrInvalidCommitment)
	}

	cfg := &wallet.Config{
		ID:                 lostID,
		Threshold:          meta.Threshold,
		Generation:         generation,
		Metadata:           meta,
		Share:              recovered,
		GroupKey:           groupKey,
		VerificationShares: verificationShares,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
