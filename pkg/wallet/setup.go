package wallet

import (
	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/party"
)

// PartySetup is the static, out-of-band-agreed information every party
// needs before it can run a DKG or resharing session: who the other
// parties are, what ranks and threshold apply, and the long-term
// transport keys used to encrypt shares in transit. None of this is
// secret except TransportSecret, and none of it changes across
// generations the way Config does.
type PartySetup struct {
	ID         party.ID
	AllParties party.IDSlice
	Threshold  int
	Ranks      party.RankSet

	// TransportSecret is this party's long-term key agreement secret,
	// used only to seal/open envelope.Envelope messages. It is
	// distinct from the threshold secret share, which does not exist
	// until a DKG session produces it.
	TransportSecret *curve.Scalar

	// TransportPublic maps every party (including self) to its
	// long-term transport public key.
	TransportPublic map[party.ID]*curve.Point
}

// OtherParties returns every party except the caller.
func (s PartySetup) OtherParties() party.IDSlice {
	return s.AllParties.Remove(s.ID)
}

// RankOf returns id's rank, defaulting to 0.
func (s PartySetup) RankOf(id party.ID) party.Rank { return s.Ranks.RankOf(id) }
