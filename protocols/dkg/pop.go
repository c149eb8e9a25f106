package dkg

import (
	"io"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
)

const popDomainTag = "bitshard/dkg-proof-of-possession"

// PopProof is a Schnorr proof of knowledge of the discrete log of a
// party's polynomial constant-term commitment, binding it to a session
// so a captured proof from one DKG run cannot be replayed into
// another.
type PopProof struct {
	R *curve.Point
	S *curve.Scalar
}

func popChallenge(sessionID []byte, id party.ID, n, t int, commitment0 *curve.Point, r *curve.Point) *curve.Scalar {
	h := curve.TaggedHash(popDomainTag, sessionID, []byte(id),
		curve.NewScalar().SetUint32(uint32(n)).Bytes(),
		curve.NewScalar().SetUint32(uint32(t)).Bytes(),
		commitment0.Compressed(), r.Compressed())
	return curve.NewScalar().SetBytesModular(h[:])
}

// provePop produces a proof of knowledge of secret such that
// secret.ActOnBase() == commitment0. n and t bind the proof to this
// session's party count and threshold, so a session_id reused across
// differently-configured DKG runs cannot produce a replayable proof.
func provePop(id party.ID, sessionID []byte, n, t int, secret *curve.Scalar, commitment0 *curve.Point, rng io.Reader) (*PopProof, error) {
	k, err := curve.Random(rng)
	if err != nil {
		return nil, err
	}
	defer k.Zeroize()

	r := k.ActOnBase()
	c := popChallenge(sessionID, id, n, t, commitment0, r)
	s := k.Add(c.Mul(secret))
	return &PopProof{R: r, S: s}, nil
}

// verifyPop checks proof against commitment0, the sender's claimed
// constant-term commitment, under the same (n, t) the verifier itself
// is running with.
func verifyPop(id party.ID, sessionID []byte, n, t int, commitment0 *curve.Point, proof *PopProof) error {
	if proof == nil || proof.R == nil || proof.S == nil {
		return errs.ErrInvalidProofOfPossession
	}
	c := popChallenge(sessionID, id, n, t, commitment0, proof.R)
	lhs := proof.S.ActOnBase()
	rhs := proof.R.Add(c.Act(commitment0))
	if !lhs.Equal(rhs) {
		return errs.ErrInvalidProofOfPossession
	}
	return nil
}
