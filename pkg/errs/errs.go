// Package errs defines the typed error taxonomy shared by every
// protocol package: domain-prefixed error strings (e.g. "lss: ...")
// wrapped with %w rather than a generic errors framework.
package errs

import (
	"errors"
	"fmt"

	"github.com/bitshard/threshold/pkg/party"
)

// Sentinel errors usable with errors.Is. Each protocol package wraps
// one of these with fmt.Errorf("<pkg>: ...: %w", sentinel) so callers
// can branch on category without string matching.
var (
	// ErrConfiguration covers malformed or internally inconsistent
	// wallet/session configuration (bad threshold, duplicate IDs,
	// missing public shares).
	ErrConfiguration = errors.New("errs: invalid configuration")

	// ErrInsufficientSigners is returned when a signer or recovery
	// helper set is smaller than the threshold requires.
	ErrInsufficientSigners = errors.New("errs: insufficient signers")

	// ErrRankViolation is returned when a signer/recovery set fails
	// the HTSS admissibility predicate.
	ErrRankViolation = errors.New("errs: rank admissibility violated")

	// ErrInvalidCommitment is returned when a DKG or resharing
	// polynomial commitment fails its verification equation.
	ErrInvalidCommitment = errors.New("errs: invalid commitment")

	// ErrInvalidProofOfPossession is returned when a party's PoP
	// signature over its own commitment fails to verify.
	ErrInvalidProofOfPossession = errors.New("errs: invalid proof of possession")

	// ErrAuth is returned when an envelope fails to authenticate or
	// decrypt.
	ErrAuth = errors.New("errs: authentication failed")

	// ErrInvalidSignatureShare is returned when a signer's partial
	// signature fails its individual verification equation.
	ErrInvalidSignatureShare = errors.New("errs: invalid signature share")

	// ErrInvalidSignature is returned when an aggregated signature
	// fails BIP340 verification.
	ErrInvalidSignature = errors.New("errs: invalid signature")

	// ErrReplayOrReuse is returned when a nonce, session ID, or
	// commitment is reused across sessions.
	ErrReplayOrReuse = errors.New("errs: replay or reuse detected")
)

// PeerError attributes a sentinel error to the specific party whose
// message caused it, so a coordinator can log or blame the right
// participant instead of aborting blind.
type PeerError struct {
	Peer  party.ID
	Cause error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("party %s: %s", e.Peer, e.Cause)
}

func (e *PeerError) Unwrap() error { return e.Cause }

// Blame wraps cause as a PeerError attributed to peer.
func Blame(peer party.ID, cause error) error {
	return &PeerError{Peer: peer, Cause: cause}
}
