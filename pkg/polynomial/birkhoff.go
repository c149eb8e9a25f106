package polynomial

import (
	"errors"
	"sort"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/party"
)

// ErrNotAdmissible is returned when a set of (evaluation point, rank)
// pairs cannot be used to reconstruct a secret: the Birkhoff system
// they induce is singular.
var ErrNotAdmissible = errors.New("polynomial: signer set is not admissible")

// ErrSingularSystem is returned when interpolation coefficients are
// requested for a node set whose Birkhoff matrix happens to be
// singular despite passing the admissibility precheck (this can only
// happen if two nodes share an evaluation point).
var ErrSingularSystem = errors.New("polynomial: interpolation system is singular")

// Node is one (evaluation point, derivative order) pair contributing a
// share to an interpolation. In flat (non-hierarchical) TSS every node
// has Rank 0 and this degenerates to ordinary Lagrange interpolation.
type Node struct {
	ID   party.ID
	X    *curve.Scalar
	Rank party.Rank
}

// Admissible reports whether a candidate set of ranks, of size >= t,
// can reconstruct a degree t-1 polynomial: sorted ascending, rank[i] <=
// i must hold for every position i < t. Only the first t sorted
// positions are checked; a larger set may carry extra members at
// arbitrary rank past the cutoff without affecting admissibility. This
// is a sufficient (not merely necessary) condition for the induced
// Birkhoff matrix to be invertible, and is the predicate HTSS
// signer-set validation uses before ever attempting the linear solve.
func Admissible(ranks []party.Rank, t int) bool {
	if len(ranks) < t {
		return false
	}
	sorted := make([]party.Rank, len(ranks))
	copy(sorted, ranks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 0; i < t; i++ {
		if int(sorted[i]) > i {
			return false
		}
	}
	return true
}

// Lagrange computes ordinary Lagrange-at-zero coefficients: the weights
// lambda_i such that secret = sum_i lambda_i * f(x_i), for a flat
// (rank-0) sharing. This is the TSS special case of Birkhoff
// interpolation.
func Lagrange(ids party.IDSlice) (map[party.ID]*curve.Scalar, error) {
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = Node{ID: id, X: curve.NewScalar().SetNat(id.Nat()), Rank: 0}
	}
	target := Node{X: curve.NewScalar(), Rank: 0}
	return InterpolationCoefficients(nodes, target)
}

// BirkhoffCoefficients computes the weights c_i such that
// secret = f(0) = sum_i c_i * f^(rank_i)(x_i), given one node per
// signer. Callers must first check Admissible on the ranks; this
// function does not re-derive admissibility, it just attempts the
// solve and surfaces ErrSingularSystem if it fails.
func BirkhoffCoefficients(nodes []Node) (map[party.ID]*curve.Scalar, error) {
	target := Node{X: curve.NewScalar(), Rank: 0}
	return InterpolationCoefficients(nodes, target)
}

// RecoveryCoefficients computes the weights c_i such that the lost
// party's share, lost.X at rank lost.Rank, can be reconstructed as
// sum_i c_i * f^(rank_i)(x_i) from the surviving helper nodes. This is
// the same linear system as BirkhoffCoefficients with the target moved
// from (0, rank 0) to the lost party's own (x, rank).
func RecoveryCoefficients(helpers []Node, lost Node) (map[party.ID]*curve.Scalar, error) {
	return InterpolationCoefficients(helpers, lost)
}

// InterpolationCoefficients solves the Birkhoff system: find c such
// that for every monomial degree k in [0, n), sum_i c_i * D^(r_i)(x^k)
// at x_i equals D^(target.Rank)(x^k) at target.X. n = len(nodes) and
// must equal the polynomial degree + 1 for the system to be square.
//
// All arithmetic is field-exact saferith-backed scalar arithmetic;
// nothing here ever goes through a float.
func InterpolationCoefficients(nodes []Node, target Node) (map[party.ID]*curve.Scalar, error) {
	n := len(nodes)
	if n == 0 {
		return map[party.ID]*curve.Scalar{}, nil
	}

	// Row k, column i: D^(rank_i)(x^k) evaluated at x_i.
	rows := make([][]*curve.Scalar, n)
	for k := 0; k < n; k++ {
		rows[k] = make([]*curve.Scalar, n+1)
		for i, node := range nodes {
			rows[k][i] = derivativeMonomial(k, node.Rank, node.X)
		}
		rows[k][n] = derivativeMonomial(k, target.Rank, target.X)
	}

	if err := gaussianSolve(rows, n); err != nil {
		return nil, err
	}

	out := make(map[party.ID]*curve.Scalar, n)
	for i, node := range nodes {
		out[node.ID] = rows[i][n]
	}
	return out, nil
}

// derivativeMonomial computes D^order(x^k) evaluated at point: the
// falling-factorial coefficient times point^(k-order), or zero when
// order > k.
func derivativeMonomial(k int, order party.Rank, point *curve.Scalar) *curve.Scalar {
	if int(order) > k {
		return curve.NewScalar()
	}
	coeff := FallingFactorial(k, int(order))
	return coeff.Mul(point.Pow(uint32(k - int(order))))
}

// EvaluateCommitments computes sum_k D^rank(x^k)|_x * commitments[k], the
// point-group analogue of Polynomial.EvaluateDerivative: public
// verification of a rank-aware share against the sender's Feldman
// commitments to its polynomial's coefficients. Shared by DKG finalize
// and resharing finalize, which both verify a derivative-order share
// this way.
func EvaluateCommitments(commitments []*curve.Point, x *curve.Scalar, rank party.Rank) *curve.Point {
	out := curve.NewScalar().ActOnBase()
	for k := int(rank); k < len(commitments); k++ {
		coeff := FallingFactorial(k, int(rank)).Mul(x.Pow(uint32(k - int(rank))))
		out = out.Add(coeff.Act(commitments[k]))
	}
	return out
}

// gaussianSolve performs Gauss-Jordan elimination with partial
// pivoting on the n x (n+1) augmented matrix rows, in place, over the
// scalar field. On success rows[i][n] holds the solution for
// unknown i.
func gaussianSolve(rows [][]*curve.Scalar, n int) error {
	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if !rows[r][col].IsZero() {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return ErrSingularSystem
		}
		rows[col], rows[pivot] = rows[pivot], rows[col]

		inv, err := rows[col][col].Invert()
		if err != nil {
			return ErrSingularSystem
		}
		for c := 0; c <= n; c++ {
			rows[col][c] = rows[col][c].Mul(inv)
		}

		for r := 0; r < n; r++ {
			if r == col || rows[r][col].IsZero() {
				continue
			}
			factor := rows[r][col].Clone()
			for c := 0; c <= n; c++ {
				rows[r][c] = rows[r][c].Sub(factor.Mul(rows[col][c]))
			}
		}
	}
	return nil
}
