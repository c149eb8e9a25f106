// Package party defines party identifiers and ranks used throughout the
// threshold protocol stack.
package party

import (
	"sort"

	"github.com/cronokirby/saferith"
)

// ID identifies a participant. It is conventionally a small positive
// integer 1..=n, but is kept opaque so callers can use stable labels
// (e.g. "alice") instead of bare indices.
type ID string

// Rank labels how much authority a party carries in HTSS mode. 0 is the
// most authoritative; in TSS mode every party has rank 0.
type Rank uint32

// Nat returns the party's index as a big.Nat suitable for reduction into
// a scalar field element. Non-numeric IDs are not supported by this
// conversion; callers that mint IDs from integers (the common case) get
// a well-defined embedding.
func (id ID) Nat() *saferith.Nat {
	n := new(saferith.Nat)
	var v uint64
	for _, c := range []byte(id) {
		if c < '0' || c > '9' {
			// Non-numeric IDs hash their bytes into a big.Nat instead of
			// failing; the embedding only needs to be injective enough
			// to keep evaluation points distinct in practice.
			n.SetBytes([]byte(id))
			return n
		}
		v = v*10 + uint64(c-'0')
	}
	n.SetUint64(v)
	return n
}

// IDSlice is a sortable, de-duplicable collection of party IDs.
type IDSlice []ID

func (p IDSlice) Len() int           { return len(p) }
func (p IDSlice) Less(i, j int) bool { return p[i] < p[j] }
func (p IDSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// Sorted returns a sorted copy.
func (p IDSlice) Sorted() IDSlice {
	out := make(IDSlice, len(p))
	copy(out, p)
	sort.Sort(out)
	return out
}

// Contains reports whether id is present.
func (p IDSlice) Contains(id ID) bool {
	for _, x := range p {
		if x == id {
			return true
		}
	}
	return false
}

// Remove returns a copy of p with id removed, if present.
func (p IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(p))
	for _, x := range p {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// HasDuplicates reports whether any ID appears more than once.
func (p IDSlice) HasDuplicates() bool {
	seen := make(map[ID]struct{}, len(p))
	for _, id := range p {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// RankSet associates ranks with party IDs. The zero value treats every
// party as rank 0 (flat TSS).
type RankSet map[ID]Rank

// RankOf returns the rank of id, defaulting to 0 when the set is nil or
// the party is absent (TSS parties are rank-0 by convention).
func (r RankSet) RankOf(id ID) Rank {
	if r == nil {
		return 0
	}
	return r[id]
}

// Hierarchical reports whether any party carries a non-zero rank.
func (r RankSet) Hierarchical() bool {
	for _, rk := range r {
		if rk != 0 {
			return true
		}
	}
	return false
}
