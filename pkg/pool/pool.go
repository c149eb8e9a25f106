// Package pool provides a bounded worker pool for the independent,
// per-peer verification work every protocol round does (checking each
// incoming commitment, proof of possession, or signature share).
// Verifying N peers' messages has no sequential dependency between
// peers, so it parallelizes trivially; the pool just bounds how many
// goroutines run at once.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/bitshard/threshold/pkg/party"
)

// Pool runs bounded-concurrency work. The zero value is not usable;
// construct with New.
type Pool struct {
	limit int
}

// New returns a pool that runs at most n goroutines concurrently. n<=0
// means "use GOMAXPROCS", matching the "0 means default parallelism"
// convention of worker pools in this codebase.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{limit: n}
}

// TearDown releases pool resources. Present for API symmetry with
// pools that own persistent goroutines; this implementation spawns
// goroutines lazily per call and owns nothing to release.
func (p *Pool) TearDown() {}

// VerifyEach runs fn(id) for every id in ids, bounded to p's
// concurrency limit, and returns the first error encountered. Callers
// attribute failures to the offending peer themselves (errs.Blame)
// since fn already knows which id it was checking.
func (p *Pool) VerifyEach(ctx context.Context, ids []party.ID, fn func(ctx context.Context, id party.ID) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, id := range ids {
		g.Go(func() error { return fn(gctx, id) })
	}
	return g.Wait()
}
