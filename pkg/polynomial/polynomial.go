// Package polynomial implements the field-exact polynomial arithmetic
// and interpolation (Lagrange and Birkhoff) the threshold protocol
// stack builds its secret sharing on. Every computation here routes
// through curve.Scalar; no floating point appears anywhere in this
// package, deliberately, since the admissible-but-lossy float/SVD route
// used by some reference implementations silently corrupts shares at
// higher party counts.
package polynomial

import (
	"io"

	"github.com/bitshard/threshold/pkg/curve"
)

// Polynomial represents f(x) = coeffs[0] + coeffs[1]*x + ... over the
// scalar field, stored lowest-degree-first.
type Polynomial struct {
	coeffs []*curve.Scalar
}

// NewRandom returns a polynomial of the given degree whose constant
// term is fixed to constant and whose remaining coefficients are drawn
// uniformly at random. This is the standard Shamir/Feldman sharing
// setup: degree = threshold-1, constant = the secret.
func NewRandom(degree int, constant *curve.Scalar, rng io.Reader) (*Polynomial, error) {
	coeffs := make([]*curve.Scalar, degree+1)
	coeffs[0] = constant.Clone()
	for i := 1; i <= degree; i++ {
		c, err := curve.Random(rng)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Polynomial{coeffs: coeffs}, nil
}

// Coefficients exposes the raw coefficient slice, lowest-degree-first.
// Callers that commit to a polynomial (DKG round 1) need direct access.
func (p *Polynomial) Coefficients() []*curve.Scalar { return p.coeffs }

// Degree returns the polynomial's degree.
func (p *Polynomial) Degree() int { return len(p.coeffs) - 1 }

// Constant returns the constant term f(0).
func (p *Polynomial) Constant() *curve.Scalar { return p.coeffs[0] }

// Evaluate computes f(x) via Horner's method.
func (p *Polynomial) Evaluate(x *curve.Scalar) *curve.Scalar {
	acc := p.coeffs[len(p.coeffs)-1].Clone()
	for i := len(p.coeffs) - 2; i >= 0; i-- {
		acc = acc.Mul(x).Add(p.coeffs[i])
	}
	return acc
}

// EvaluateDerivative computes the order-th formal derivative of f,
// evaluated at x. order 0 is equivalent to Evaluate. This is what makes
// an HTSS share out of a flat Shamir share: a rank-r party receives
// f^(r)(x_i) instead of f(x_i).
func (p *Polynomial) EvaluateDerivative(x *curve.Scalar, order uint32) *curve.Scalar {
	result := curve.NewScalar()
	for i := int(order); i < len(p.coeffs); i++ {
		falling := FallingFactorial(i, int(order))
		xp := x.Pow(uint32(i - int(order)))
		term := p.coeffs[i].Mul(falling).Mul(xp)
		result = result.Add(term)
	}
	return result
}

// Zeroize overwrites every coefficient, including the secret constant
// term. Call once a share/commitment has been derived and the
// polynomial itself is no longer needed.
func (p *Polynomial) Zeroize() {
	for _, c := range p.coeffs {
		c.Zeroize()
	}
}

// FallingFactorial computes n*(n-1)*...*(n-r+1) as a scalar, the
// coefficient that appears when differentiating x^n r times.
func FallingFactorial(n, r int) *curve.Scalar {
	out := curve.NewScalar().SetUint32(1)
	for k := 0; k < r; k++ {
		out = out.Mul(curve.NewScalar().SetUint32(uint32(n - k)))
	}
	return out
}
