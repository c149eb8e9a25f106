// Package zeroize provides best-effort overwriting of ephemeral secret
// byte material (nonce scalars, sub-share plaintexts, polynomial
// coefficients serialized for transport) once it is no longer needed.
//
// A Go garbage collector can still retain copies made by slice growth,
// string conversion, or compiler-inserted spills; this is the same
// caveat the source material that grounds this package documents on
// its own Zeroize helpers, so callers should still minimize the
// lifetime and copying of secret values rather than relying on this
// package alone.
package zeroize

// Bytes overwrites b in place with zeros.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zeroizer is implemented by any value that holds secret state it can
// overwrite in place (curve.Scalar, Polynomial, NonceState, ...).
type Zeroizer interface {
	Zeroize()
}

// All calls Zeroize on every non-nil value given.
func All(vs ...Zeroizer) {
	for _, v := range vs {
		if v != nil {
			v.Zeroize()
		}
	}
}
