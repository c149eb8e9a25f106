// Package dkg implements a two-round SimplePedPop-style distributed
// key generation: every party commits to a Feldman-VSS polynomial,
// proves knowledge of its constant term, encrypts a share of that
// polynomial to every other party, and the group key falls out as the
// sum of all constant-term commitments. Support for hierarchical
// ranks generalizes the share each party receives from f(x_i) to the
// rank_i-th derivative f^(rank_i)(x_i), per the HTSS construction.
package dkg

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/envelope"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/pool"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/pkg/wire"
)

// Round1Output is broadcast to every other party.
type Round1Output struct {
	Commitments []*curve.Point
	Pop         *PopProof
}

// Marshal encodes out for broadcast over an untrusted relay.
func (out *Round1Output) Marshal() ([]byte, error) { return wire.Marshal(out) }

// UnmarshalRound1Output decodes a wire-encoded Round1Output.
func UnmarshalRound1Output(data []byte) (*Round1Output, error) {
	out := &Round1Output{}
	if err := wire.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Round1State is retained locally between Round1 and Round2/Finalize.
// It holds the polynomial's secret coefficients and must be zeroized
// once Finalize has produced a Config.
type Round1State struct {
	setup wallet.PartySetup
	poly  *polynomial.Polynomial
}

// Zeroize destroys the ephemeral polynomial.
func (s *Round1State) Zeroize() {
	if s != nil && s.poly != nil {
		s.poly.Zeroize()
	}
}

// Round1 samples this party's sharing polynomial, commits to its
// coefficients, and proves knowledge of the constant term (the share
// of the secret this party is contributing to the group).
func Round1(setup wallet.PartySetup, sessionID []byte, rng io.Reader) (*Round1Output, *Round1State, error) {
	secret, err := curve.Random(rng)
	if err != nil {
		return nil, nil, err
	}
	poly, err := polynomial.NewRandom(setup.Threshold-1, secret, rng)
	if err != nil {
		return nil, nil, err
	}

	commitments := make([]*curve.Point, setup.Threshold)
	for k, c := range poly.Coefficients() {
		commitments[k] = c.ActOnBase()
	}

	pop, err := provePop(setup.ID, sessionID, len(setup.AllParties), setup.Threshold, poly.Constant(), commitments[0], rng)
	if err != nil {
		return nil, nil, err
	}

	return &Round1Output{Commitments: commitments, Pop: pop},
		&Round1State{setup: setup, poly: poly}, nil
}

// Round2State carries each sender's verified commitments forward to
// Finalize.
type Round2State struct {
	setup       wallet.PartySetup
	poly        *polynomial.Polynomial
	commitments map[party.ID][]*curve.Point
}

// Zeroize destroys the ephemeral polynomial.
func (s *Round2State) Zeroize() {
	if s != nil && s.poly != nil {
		s.poly.Zeroize()
	}
}

// Round2 verifies every peer's round-1 broadcast (commitment count,
// non-identity points, valid proof of possession), then computes and
// seals this party's share of its own polynomial for every recipient
// according to the recipient's rank.
func Round2(state *Round1State, sessionID []byte, incoming map[party.ID]*Round1Output, rng io.Reader) (map[party.ID]*envelope.Envelope, *Round2State, error) {
	setup := state.setup
	others := setup.OtherParties()
	for _, id := range others {
		if _, ok := incoming[id]; !ok {
			return nil, nil, fmt.Errorf("dkg/round2: %w: no round-1 message from %s", errs.ErrConfiguration, id)
		}
	}

	commitments := make(map[party.ID][]*curve.Point, len(incoming)+1)
	var mu sync.Mutex
	pl := pool.New(0)
	err := pl.VerifyEach(context.Background(), others, func(_ context.Context, id party.ID) error {
		out := incoming[id]
		if len(out.Commitments) != setup.Threshold {
			return errs.Blame(id, fmt.Errorf("dkg/round2: wrong commitment count %d, want %d", len(out.Commitments), setup.Threshold))
		}
		for _, c := range out.Commitments {
			if c == nil || c.IsIdentity() {
				return errs.Blame(id, fmt.Errorf("dkg/round2: %w", errs.ErrInvalidCommitment))
			}
		}
		if err := verifyPop(id, sessionID, len(setup.AllParties), setup.Threshold, out.Commitments[0], out.Pop); err != nil {
			return errs.Blame(id, err)
		}
		mu.Lock()
		commitments[id] = out.Commitments
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	myCommitments := make([]*curve.Point, setup.Threshold)
	for k, c := range state.poly.Coefficients() {
		myCommitments[k] = c.ActOnBase()
	}
	commitments[setup.ID] = myCommitments

	envelopes := make(map[party.ID]*envelope.Envelope, len(setup.OtherParties()))
	for _, id := range setup.OtherParties() {
		x := curve.NewScalar().SetNat(id.Nat())
		rank := setup.RankOf(id)
		share := state.poly.EvaluateDerivative(x, uint32(rank))
		defer share.Zeroize()

		peerPub, ok := setup.TransportPublic[id]
		if !ok {
			return nil, nil, fmt.Errorf("dkg/round2: %w: missing transport key for %s", errs.ErrConfiguration, id)
		}
		env, err := envelope.Seal(setup.TransportSecret, peerPub, share.Bytes(), rng)
		if err != nil {
			return nil, nil, err
		}
		envelopes[id] = env
	}

	return envelopes, &Round2State{setup: setup, poly: state.poly, commitments: commitments}, nil
}

// Finalize decrypts and verifies every incoming share, sums them with
// this party's own self-share into the final secret share, computes
// the group's public key and every party's public verification share,
// and canonicalizes the group key to even-Y per BIP340, mirroring the
// parity flip onto every secret and public share.
func Finalize(state *Round2State, incoming map[party.ID]*envelope.Envelope) (*wallet.Config, error) {
	setup := state.setup

	selfX := curve.NewScalar().SetNat(setup.ID.Nat())
	selfRank := setup.RankOf(setup.ID)
	secretShare := state.poly.EvaluateDerivative(selfX, uint32(selfRank))

	for _, id := range setup.OtherParties() {
		env, ok := incoming[id]
		if !ok {
			return nil, fmt.Errorf("dkg/finalize: %w: no share from %s", errs.ErrConfiguration, id)
		}
		peerPub, ok := setup.TransportPublic[id]
		if !ok {
			return nil, fmt.Errorf("dkg/finalize: %w: missing transport key for %s", errs.ErrConfiguration, id)
		}
		plaintext, err := envelope.Open(setup.TransportSecret, peerPub, env)
		if err != nil {
			return nil, errs.Blame(id, fmt.Errorf("dkg/finalize: %w", err))
		}
		share := curve.NewScalar()
		if err := share.SetBytes(plaintext); err != nil {
			return nil, errs.Blame(id, fmt.Errorf("dkg/finalize: malformed share: %w", err))
		}

		expected := polynomial.EvaluateCommitments(state.commitments[id], selfX, selfRank)
		if !share.ActOnBase().Equal(expected) {
			return nil, errs.Blame(id, fmt.Errorf("dkg/finalize: %w", errs.ErrInvalidCommitment))
		}

		secretShare = secretShare.Add(share)
	}

	groupPoint := curve.NewScalar().ActOnBase()
	for _, c := range state.commitments {
		groupPoint = groupPoint.Add(c[0])
	}

	verificationShares := make(map[party.ID]*curve.Point, len(setup.AllParties))
	for _, id := range setup.AllParties {
		x := curve.NewScalar().SetNat(id.Nat())
		rank := setup.RankOf(id)
		share := curve.NewScalar().ActOnBase()
		for _, commitments := range state.commitments {
			share = share.Add(polynomial.EvaluateCommitments(commitments, x, rank))
		}
		verificationShares[id] = share
	}

	evenGroupPoint, flipped := groupPoint.EvenY()
	if flipped {
		secretShare = secretShare.Negate()
		for id, v := range verificationShares {
			verificationShares[id] = v.Negate()
		}
	}

	cfg := &wallet.Config{
		ID:                 setup.ID,
		Threshold:          setup.Threshold,
		Generation:         1,
		Metadata:           wallet.HtssMetadata{Threshold: setup.Threshold, Ranks: setup.Ranks},
		Share:              secretShare,
		GroupKey:           evenGroupPoint.XOnly(),
		VerificationShares: verificationShares,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
