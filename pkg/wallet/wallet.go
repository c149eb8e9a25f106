// Package wallet holds the long-term and per-session state a party
// persists between protocol runs: its secret share, the group's public
// key, every party's verification share, and the HTSS rank metadata
// needed to reconstruct or sign with that share later.
package wallet

import (
	"fmt"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
)

// HtssMetadata describes the hierarchical structure of a sharing: how
// many parties, what threshold, and each party's rank. A flat
// (non-hierarchical) TSS sharing is the special case where every rank
// is 0.
type HtssMetadata struct {
	Threshold int
	Ranks     party.RankSet
}

// Hierarchical reports whether this sharing uses non-zero ranks.
func (m HtssMetadata) Hierarchical() bool { return m.Ranks.Hierarchical() }

// RankOf returns id's authoritative rank, defaulting to 0. Callers
// must always consult this rather than a caller-supplied rank value:
// honoring an unverified rank claim from message input would let a
// low-authority party impersonate a higher one during recovery.
func (m HtssMetadata) RankOf(id party.ID) party.Rank { return m.Ranks.RankOf(id) }

// Config is a party's complete persisted state after a successful
// key generation or resharing.
type Config struct {
	ID         party.ID
	Threshold  int
	Generation uint64
	Metadata   HtssMetadata

	// Share is this party's secret share of the group key.
	Share *curve.Scalar

	// GroupKey is the BIP340 x-only public key the threshold group
	// signs under.
	GroupKey [32]byte

	// VerificationShares maps every party to its public share point
	// g^share_i, used to verify DKG commitments, resharing
	// contributions, and individual FROST signature shares without
	// needing the corresponding secret.
	VerificationShares map[party.ID]*curve.Point
}

// Validate checks the config is internally consistent before it is
// used for signing, resharing, or recovery.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("wallet: %w: missing ID", errs.ErrConfiguration)
	}
	if c.Share == nil {
		return fmt.Errorf("wallet: %w: missing secret share", errs.ErrConfiguration)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("wallet: %w: invalid threshold %d", errs.ErrConfiguration, c.Threshold)
	}
	if c.Threshold > len(c.VerificationShares) {
		return fmt.Errorf("wallet: %w: threshold %d exceeds %d known parties",
			errs.ErrConfiguration, c.Threshold, len(c.VerificationShares))
	}
	if _, ok := c.VerificationShares[c.ID]; !ok {
		return fmt.Errorf("wallet: %w: missing own verification share", errs.ErrConfiguration)
	}
	for id, pub := range c.VerificationShares {
		if pub == nil {
			return fmt.Errorf("wallet: %w: nil verification share for %s", errs.ErrConfiguration, id)
		}
	}
	return nil
}

// PartyIDs returns the sorted set of parties this config knows about.
func (c *Config) PartyIDs() party.IDSlice {
	ids := make(party.IDSlice, 0, len(c.VerificationShares))
	for id := range c.VerificationShares {
		ids = append(ids, id)
	}
	return ids.Sorted()
}

// Copy returns a deep copy safe to mutate independently of c.
func (c *Config) Copy() *Config {
	out := &Config{
		ID:         c.ID,
		Threshold:  c.Threshold,
		Generation: c.Generation,
		Metadata: HtssMetadata{
			Threshold: c.Metadata.Threshold,
			Ranks:     make(party.RankSet, len(c.Metadata.Ranks)),
		},
		Share:               c.Share.Clone(),
		GroupKey:            c.GroupKey,
		VerificationShares:  make(map[party.ID]*curve.Point, len(c.VerificationShares)),
	}
	for id, r := range c.Metadata.Ranks {
		out.Metadata.Ranks[id] = r
	}
	for id, pub := range c.VerificationShares {
		out.VerificationShares[id] = pub.Clone()
	}
	return out
}

// Zeroize overwrites the secret share. Public state is left intact.
func (c *Config) Zeroize() { c.Share.Zeroize() }
