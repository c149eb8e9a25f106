package curve

import "crypto/sha256"

// TaggedHash computes the BIP340 tagged hash:
//
//	TH(tag, data) = SHA256(SHA256(tag) || SHA256(tag) || data)
//
// BIP340 mandates SHA256 specifically for this construction, so this
// uses the standard library directly rather than reaching for an
// ecosystem hash package (see DESIGN.md).
func TaggedHash(tag string, data ...[]byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ChallengeHash computes the BIP340 signature challenge
// c = TH("BIP0340/challenge", R.x || P.x || m).
func ChallengeHash(rx, px [32]byte, m []byte) [32]byte {
	return TaggedHash("BIP0340/challenge", rx[:], px[:], m[:])
}
