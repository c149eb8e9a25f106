// Package curve implements scalar and point arithmetic over the
// secp256k1 group used by BIP340 Schnorr signatures, plus the tagged
// hashing and x-only encoding BIP340 requires.
//
// All scalar arithmetic reduces through github.com/decred/dcrd's
// constant-time ModNScalar type; point arithmetic uses its Jacobian
// representation. No floating-point type appears in this package.
package curve

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"

	"github.com/cronokirby/saferith"
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// ErrInvalidOperand is returned by Invert on the zero scalar and by
// SetBytes/SetNat on a value outside the scalar field.
var ErrInvalidOperand = errors.New("curve: invalid operand")

// Curve abstracts the group used by the protocol stack. Only secp256k1
// is implemented; the interface exists so that polynomial/interpolation
// code never hard-codes a concrete curve.
type Curve interface {
	Name() string
	NewScalar() *Scalar
	NewPoint() *Point
	Generator() *Point
	Order() *saferith.Modulus
}

// Secp256k1 is the curve used by Bitcoin Taproot.
type Secp256k1 struct{}

func (Secp256k1) Name() string { return "secp256k1" }

func (Secp256k1) NewScalar() *Scalar { return &Scalar{} }

func (Secp256k1) NewPoint() *Point {
	p := &Point{}
	p.j.X.SetInt(0)
	p.j.Y.SetInt(0)
	p.j.Z.SetInt(0) // Z == 0 is the point at infinity in Jacobian coordinates
	return p
}

func (Secp256k1) Generator() *Point {
	p := &Point{}
	one := new(secp256k1.ModNScalar).SetInt(1)
	secp256k1.ScalarBaseMultNonConst(one, &p.j)
	p.j.ToAffine()
	return p
}

// secp256k1Order is the order q of the scalar field, as a saferith
// modulus so that polynomial code can do field-exact big-integer
// reduction without ever routing through machine integers or floats.
var secp256k1Order = saferith.ModulusFromBytes(mustHex(
	"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141",
))

func (Secp256k1) Order() *saferith.Modulus { return secp256k1Order }

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Scalar is an element of the secp256k1 scalar field.
type Scalar struct {
	s secp256k1.ModNScalar
}

// NewScalar returns the zero scalar for the default group.
func NewScalar() *Scalar { return Secp256k1{}.NewScalar() }

// SetUint32 sets the scalar to a small non-negative integer.
func (s *Scalar) SetUint32(v uint32) *Scalar {
	s.s.SetInt(v)
	return s
}

// SetNat reduces a saferith.Nat into the scalar field. The reduction is
// total: every Nat maps to some scalar, never an error, so callers
// converting a party ID or a hash output into a scalar never need to
// handle a conversion failure.
func (s *Scalar) SetNat(n *saferith.Nat) *Scalar {
	reduced := new(saferith.Nat).Mod(n, secp256k1Order)
	b := reduced.Bytes()
	var buf [32]byte
	copy(buf[32-len(b):], b)
	s.s.SetBytes(&buf)
	return s
}

// SetBytesModular reduces an arbitrary-length big-endian byte string
// (typically a hash output) into the scalar field, totally, the way a
// BIP340 challenge or a FROST binding factor is derived from a hash
// wider or narrower than the field.
func (s *Scalar) SetBytesModular(b []byte) *Scalar {
	return s.SetNat(new(saferith.Nat).SetBytes(b))
}

// Nat returns the scalar's canonical representative in [0, q).
func (s *Scalar) Nat() *saferith.Nat {
	b := s.s.Bytes()
	return new(saferith.Nat).SetBytes(b[:])
}

// SetBytes decodes a 32-byte big-endian value, rejecting any value >= q
// rather than silently reducing it: wire-decoded scalars must be
// canonical.
func (s *Scalar) SetBytes(b []byte) error {
	if len(b) != 32 {
		return ErrInvalidOperand
	}
	var buf [32]byte
	copy(buf[:], b)
	overflow := s.s.SetBytes(&buf)
	if overflow != 0 {
		return ErrInvalidOperand
	}
	return nil
}

// Bytes serializes the scalar as 32 bytes big-endian.
func (s *Scalar) Bytes() []byte {
	b := s.s.Bytes()
	out := make([]byte, 32)
	copy(out, b[:])
	return out
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Scalar) MarshalBinary() ([]byte, error) { return s.Bytes(), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(b []byte) error { return s.SetBytes(b) }

// Add returns s + other as a new scalar.
func (s *Scalar) Add(other *Scalar) *Scalar {
	out := &Scalar{}
	out.s.Add2(&s.s, &other.s)
	return out
}

// Sub returns s - other as a new scalar.
func (s *Scalar) Sub(other *Scalar) *Scalar {
	neg := other.Negate()
	return s.Add(neg)
}

// Negate returns -s.
func (s *Scalar) Negate() *Scalar {
	out := &Scalar{}
	out.s.Set(&s.s)
	out.s.Negate()
	return out
}

// Mul returns s * other.
func (s *Scalar) Mul(other *Scalar) *Scalar {
	out := &Scalar{}
	out.s.Mul2(&s.s, &other.s)
	return out
}

// Invert returns s^-1. Fails with ErrInvalidOperand if s is zero: zero
// has no multiplicative inverse in the scalar field.
func (s *Scalar) Invert() (*Scalar, error) {
	if s.IsZero() {
		return nil, ErrInvalidOperand
	}
	out := &Scalar{}
	out.s.Set(&s.s)
	out.s.InverseValNonConst()
	return out, nil
}

// IsZero reports whether s is the additive identity.
func (s *Scalar) IsZero() bool { return s.s.IsZero() }

// Equal reports whether s == other.
func (s *Scalar) Equal(other *Scalar) bool { return s.s.Equals(&other.s) }

// Clone returns an independent copy.
func (s *Scalar) Clone() *Scalar {
	out := &Scalar{}
	out.s.Set(&s.s)
	return out
}

// Zeroize overwrites the scalar's internal state. Call on every exit
// path from a session that held the scalar as ephemeral secret material
// (polynomial coefficients, nonces, sub-share plaintexts).
func (s *Scalar) Zeroize() { s.s.Zero() }

// ActOnBase returns s * G.
func (s *Scalar) ActOnBase() *Point {
	out := &Point{}
	secp256k1.ScalarBaseMultNonConst(&s.s, &out.j)
	out.j.ToAffine()
	return out
}

// Act returns s * p.
func (s *Scalar) Act(p *Point) *Point {
	out := &Point{}
	secp256k1.ScalarMultNonConst(&s.s, &p.j, &out.j)
	out.j.ToAffine()
	return out
}

// Pow returns s^e via square-and-multiply. e is a plain machine integer
// since every caller exponentiates by a small monomial degree, never by
// a secret.
func (s *Scalar) Pow(e uint32) *Scalar {
	out := NewScalar().SetUint32(1)
	base := s.Clone()
	for e > 0 {
		if e&1 == 1 {
			out = out.Mul(base)
		}
		base = base.Mul(base)
		e >>= 1
	}
	return out
}

// Random samples a uniform non-zero scalar using rng.
func Random(rng io.Reader) (*Scalar, error) {
	if rng == nil {
		rng = rand.Reader
	}
	for {
		var buf [32]byte
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return nil, err
		}
		s := &Scalar{}
		if overflow := s.s.SetBytes(&buf); overflow != 0 {
			continue
		}
		if s.IsZero() {
			continue
		}
		return s, nil
	}
}

// Point is an element of the secp256k1 group, always kept in affine
// (Z=1) or identity (Z=0) form after any operation that returns it.
type Point struct {
	j secp256k1.JacobianPoint
}

// Add returns p + other.
func (p *Point) Add(other *Point) *Point {
	out := &Point{}
	secp256k1.AddNonConst(&p.j, &other.j, &out.j)
	out.j.ToAffine()
	return out
}

// Negate returns -p.
func (p *Point) Negate() *Point {
	out := &Point{}
	out.j.X.Set(&p.j.X)
	out.j.Y.Set(&p.j.Y).Negate(1)
	out.j.Y.Normalize()
	out.j.Z.Set(&p.j.Z)
	return out
}

// Equal reports whether p == other.
func (p *Point) Equal(other *Point) bool {
	if p.IsIdentity() || other.IsIdentity() {
		return p.IsIdentity() == other.IsIdentity()
	}
	return p.j.X.Equals(&other.j.X) && p.j.Y.Equals(&other.j.Y)
}

// IsIdentity reports whether p is the point at infinity.
func (p *Point) IsIdentity() bool { return p.j.Z.IsZero() }

// HasEvenY reports whether p's affine Y coordinate is even. Only
// meaningful for a non-identity point.
func (p *Point) HasEvenY() bool { return !p.j.Y.IsOdd() }

// Clone returns an independent copy.
func (p *Point) Clone() *Point {
	out := &Point{}
	out.j.X.Set(&p.j.X)
	out.j.Y.Set(&p.j.Y)
	out.j.Z.Set(&p.j.Z)
	return out
}

// Compressed returns the SEC1 compressed encoding (a parity-prefixed
// byte plus the x-coordinate), used where a point needs to be hashed
// or transmitted outside the x-only, even-Y-only BIP340 context (proof
// of possession challenges, transcript binding).
func (p *Point) Compressed() []byte {
	prefix := byte(0x02)
	if p.j.Y.IsOdd() {
		prefix = 0x03
	}
	out := make([]byte, 33)
	out[0] = prefix
	x := p.j.X.Bytes()
	copy(out[1:], x[:])
	return out
}

// MarshalBinary implements encoding.BinaryMarshaler as the SEC1
// compressed encoding, so Point can be embedded directly in a CBOR
// message without a separate wire type.
func (p *Point) MarshalBinary() ([]byte, error) { return p.Compressed(), nil }

// UnmarshalBinary implements encoding.BinaryUnmarshaler, parsing a
// SEC1 compressed point (unlike LiftXOnly, either parity is valid
// here: this is for arbitrary group elements like Feldman commitments
// and nonce commitments, not BIP340 x-only keys).
func (p *Point) UnmarshalBinary(b []byte) error {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return errJoin(ErrInvalidOperand, err)
	}
	x, y := pub.X(), pub.Y()
	p.j.X.Set(&x)
	p.j.Y.Set(&y)
	p.j.Z.SetInt(1)
	return nil
}

// XOnly returns the BIP340 x-only (32-byte) encoding: just the
// x-coordinate, the implicit even-Y canonicalization is the caller's
// responsibility (see EvenY).
func (p *Point) XOnly() [32]byte {
	var out [32]byte
	b := p.j.X.Bytes()
	copy(out[:], b[:])
	return out
}

// EvenY returns p if it already has even Y, or -p otherwise, together
// with a bool reporting whether a negation happened. Any such negation
// must be mirrored onto every scalar whose discrete log is p ("parity
// flips").
func (p *Point) EvenY() (*Point, bool) {
	if p.HasEvenY() {
		return p, false
	}
	return p.Negate(), true
}

// LiftXOnly decodes a 32-byte x-only encoding into the unique curve
// point with that x-coordinate and even Y, failing if no such point
// exists. Delegates to the BIP340 lift_x algorithm as implemented by
// decred's schnorr package.
func LiftXOnly(x [32]byte) (*Point, error) {
	pub, err := schnorr.ParsePubKey(x[:])
	if err != nil {
		return nil, errJoin(ErrInvalidOperand, err)
	}
	out := &Point{}
	px, py := pub.X(), pub.Y()
	out.j.X.Set(&px)
	out.j.Y.Set(&py)
	out.j.Z.SetInt(1)
	return out, nil
}

func errJoin(sentinel, cause error) error {
	return &wrappedErr{sentinel: sentinel, cause: cause}
}

type wrappedErr struct {
	sentinel error
	cause    error
}

func (e *wrappedErr) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *wrappedErr) Unwrap() error { return e.sentinel }
