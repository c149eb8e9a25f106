package sign

import (
	"fmt"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/errs"
)

// Verify checks sig against the BIP340 x-only group key and message,
// independent of any threshold machinery: this is the same check any
// single-key Schnorr verifier runs.
func Verify(groupKey [32]byte, message []byte, sig *Signature) error {
	p, err := curve.LiftXOnly(groupKey)
	if err != nil {
		return fmt.Errorf("sign: invalid group key: %w", err)
	}
	r, err := curve.LiftXOnly(sig.Rx)
	if err != nil {
		return fmt.Errorf("sign: %w", errs.ErrInvalidSignature)
	}

	challenge := curve.ChallengeHash(sig.Rx, groupKey, message)
	c := curve.NewScalar().SetBytesModular(challenge[:])

	lhs := sig.Z.ActOnBase()
	rhs := r.Add(c.Act(p))
	if !lhs.Equal(rhs) {
		return fmt.Errorf("sign: %w", errs.ErrInvalidSignature)
	}
	return nil
}
