// Package reshare implements proactive resharing: composing a fresh
// degree-(newThreshold-1) polynomial per contributing old party (whose
// constant term is that party's existing share) with the implicit
// Lagrange/Birkhoff reconstruction of the old secret, so that summing
// the old quorum's contributions at each new party's point yields a
// share of the *same* group secret under a new threshold, party set,
// and rank assignment, without ever reconstructing the secret itself
// at a single location. This is a direct composition of two Shamir
// sharings, not a dealer-blinding protocol: only parties that already
// hold an old share participate in Round1, and the quorum reconstructs
// the new shares purely from old-party contributions.
package reshare

import (
	"fmt"
	"io"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/envelope"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/pkg/wire"
)

// Round1Output is broadcast by a contributing old party: a Feldman
// commitment to every coefficient of its fresh resharing polynomial,
// the same shape DKG round 1 publishes. Committing to the coefficients
// rather than to per-recipient evaluations is what lets Finalize verify
// a rank-aware derivative share (polynomial.EvaluateCommitments) for
// any new party regardless of its target rank.
type Round1Output struct {
	Commitments []*curve.Point
}

// Marshal encodes out for broadcast to the rest of the old quorum and
// the new group.
func (out *Round1Output) Marshal() ([]byte, error) { return wire.Marshal(out) }

// UnmarshalRound1Output decodes a wire-encoded Round1Output.
func UnmarshalRound1Output(data []byte) (*Round1Output, error) {
	out := &Round1Output{}
	if err := wire.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Round1State is retained by a contributing old party between Round1
// and Round2.
type Round1State struct {
	poly       *polynomial.Polynomial
	newParties party.IDSlice
	newRanks   party.RankSet
}

// Zeroize destroys the ephemeral resharing polynomial.
func (s *Round1State) Zeroize() {
	if s != nil && s.poly != nil {
		s.poly.Zeroize()
	}
}

// Round1 is called only by a party that holds an existing share and is
// part of the old quorum contributing to the reshare. It builds a
// fresh polynomial whose constant term is the party's current share
// and commits to every coefficient, the same way DKG round 1 does.
// newRanks assigns each new party its target rank; a nil or all-zero
// set reshares into a flat configuration.
func Round1(oldCfg *wallet.Config, newParties party.IDSlice, newThreshold int, newRanks party.RankSet, rng io.Reader) (*Round1Output, *Round1State, error) {
	poly, err := polynomial.NewRandom(newThreshold-1, oldCfg.Share, rng)
	if err != nil {
		return nil, nil, err
	}

	commitments := make([]*curve.Point, newThreshold)
	for k, c := range poly.Coefficients() {
		commitments[k] = c.ActOnBase()
	}

	return &Round1Output{Commitments: commitments},
		&Round1State{poly: poly, newParties: newParties, newRanks: newRanks}, nil
}

// Round2 seals this contributor's rank-aware sub-share for every new
// party behind an envelope addressed to that party's transport key: a
// new party of rank r' receives g_i^(r')(x_j') rather than the plain
// evaluation g_i(x_j'), generalizing flat resharing to HTSS targets.
func Round2(state *Round1State, transportSecret *curve.Scalar, transportPublic map[party.ID]*curve.Point, rng io.Reader) (map[party.ID]*envelope.Envelope, error) {
	out := make(map[party.ID]*envelope.Envelope, len(state.newParties))
	for _, j := range state.newParties {
		x := curve.NewScalar().SetNat(j.Nat())
		rank := state.newRanks.RankOf(j)
		subshare := state.poly.EvaluateDerivative(x, uint32(rank))
		defer subshare.Zeroize()

		peerPub, ok := transportPublic[j]
		if !ok {
			return nil, fmt.Errorf("reshare/round2: %w: missing transport key for %s", errs.ErrConfiguration, j)
		}
		env, err := envelope.Seal(transportSecret, peerPub, subshare.Bytes(), rng)
		if err != nil {
			return nil, err
		}
		out[j] = env
	}
	return out, nil
}

// Finalize is run by every new-group party (whether or not it was
// also an old-group member). oldQuorum must be an admissible
// old-metadata subset of exactly old threshold size; contributions is
// every member of oldQuorum's Round1Output; incoming is the decrypted
// envelopes addressed to self from each member of oldQuorum.
func Finalize(
	self party.ID,
	oldQuorum party.IDSlice,
	oldMeta wallet.HtssMetadata,
	contributions map[party.ID]*Round1Output,
	incoming map[party.ID]*envelope.Envelope,
	transportSecret *curve.Scalar,
	transportPublic map[party.ID]*curve.Point,
	newParties party.IDSlice,
	newThreshold int,
	newRanks party.RankSet,
	generation uint64,
	groupKey [32]byte,
) (*wallet.Config, error) {
	if len(oldQuorum) < oldMeta.Threshold {
		return nil, fmt.Errorf("reshare/finalize: %w: old quorum size %d, need at least %d", errs.ErrInsufficientSigners, len(oldQuorum), oldMeta.Threshold)
	}
	oldRanks := make([]party.Rank, len(oldQuorum))
	for i, id := range oldQuorum {
		oldRanks[i] = oldMeta.RankOf(id)
	}
	if !polynomial.Admissible(oldRanks, oldMeta.Threshold) {
		return nil, fmt.Errorf("reshare/finalize: %w", errs.ErrRankViolation)
	}

	oldNodes := make([]polynomial.Node, len(oldQuorum))
	for i, id := range oldQuorum {
		oldNodes[i] = polynomial.Node{ID: id, X: curve.NewScalar().SetNat(id.Nat()), Rank: oldMeta.RankOf(id)}
	}
	oldWeights, err := polynomial.BirkhoffCoefficients(oldNodes)
	if err != nil {
		return nil, fmt.Errorf("reshare/finalize: %w", errs.ErrRankViolation)
	}

	for _, id := range oldQuorum {
		if _, ok := contributions[id]; !ok {
			return nil, fmt.Errorf("reshare/finalize: %w: missing broadcast from %s", errs.ErrConfiguration, id)
		}
	}

	selfX := curve.NewScalar().SetNat(self.Nat())
	selfRank := newRanks.RankOf(self)

	newShare := curve.NewScalar()
	for _, id := range oldQuorum {
		env, ok := incoming[id]
		if !ok {
			return nil, fmt.Errorf("reshare/finalize: %w: no sub-share from %s", errs.ErrConfiguration, id)
		}
		peerPub, ok := transportPublic[id]
		if !ok {
			return nil, fmt.Errorf("reshare/finalize: %w: missing transport key for %s", errs.ErrConfiguration, id)
		}
		plaintext, err := envelope.Open(transportSecret, peerPub, env)
		if err != nil {
			return nil, errs.Blame(id, fmt.Errorf("reshare/finalize: %w", err))
		}
		subshare := curve.NewScalar()
		if err := subshare.SetBytes(plaintext); err != nil {
			return nil, errs.Blame(id, fmt.Errorf("reshare/finalize: malformed sub-share: %w", err))
		}

		if len(contributions[id].Commitments) != newThreshold {
			return nil, errs.Blame(id, fmt.Errorf("reshare/finalize: %w: wrong commitment count %d, want %d",
				errs.ErrInvalidCommitment, len(contributions[id].Commitments), newThreshold))
		}
		expected := polynomial.EvaluateCommitments(contributions[id].Commitments, selfX, selfRank)
		if !subshare.ActOnBase().Equal(expected) {
			return nil, errs.Blame(id, fmt.Errorf("reshare/finalize: %w", errs.ErrInvalidCommitment))
		}

		newShare = newShare.Add(oldWeights[id].Mul(subshare))
	}

	verificationShares := make(map[party.ID]*curve.Point, len(newParties))
	for _, j := range newParties {
		x := curve.NewScalar().SetNat(j.Nat())
		rank := newRanks.RankOf(j)
		vshare := curve.NewScalar().ActOnBase()
		for _, id := range oldQuorum {
			commitment := polynomial.EvaluateCommitments(contributions[id].Commitments, x, rank)
			vshare = vshare.Add(oldWeights[id].Act(commitment))
		}
		verificationShares[j] = vshare
	}

	cfg := &wallet.Config{
		ID:                 self,
		Threshold:          newThreshold,
		Generation:         generation,
		Metadata:           wallet.HtssMetadata{Threshold: newThreshold, Ranks: newRanks},
		Share:              newShare,
		GroupKey:           groupKey,
		VerificationShares: verificationShares,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
