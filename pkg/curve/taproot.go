package curve

const tapTweakTag = "TapTweak"

// TapTweakHash computes BIP341's tweak hash: TaggedHash("TapTweak",
// internalX || merkleRoot). An empty merkleRoot commits to a
// key-path-only, script-less output; this package does not build
// script trees, so callers outside the key-path case must supply
// their own merkle root.
func TapTweakHash(internalX [32]byte, merkleRoot []byte) [32]byte {
	return TaggedHash(tapTweakTag, internalX[:], merkleRoot)
}

// TweakPublicKey computes BIP341's taproot output key Q = P + t·G,
// where t = TapTweakHash(P.x, merkleRoot) and P is the even-Y lift of
// internalX (the group's untweaked public key). It returns Q's x-only
// encoding, the tweak scalar t, and whether Q required a parity flip
// relative to P: a cooperating signer mirrors that flip onto its
// tweaked secret contribution the same way DKG finalize mirrors EvenY
// onto every share.
func TweakPublicKey(internalX [32]byte, merkleRoot []byte) (outputX [32]byte, tweak *Scalar, flipped bool, err error) {
	internal, err := LiftXOnly(internalX)
	if err != nil {
		return outputX, nil, false, err
	}
	h := TapTweakHash(internalX, merkleRoot)
	tweak = NewScalar().SetBytesModular(h[:])
	out := internal.Add(tweak.ActOnBase())
	even, flip := out.EvenY()
	return even.XOnly(), tweak, flip, nil
}
