package infra

import "sync/atomic"

// Generation hands out monotonically increasing request ids so that only the
// most recently dispatched load may apply its result.
//
//	id := gen.Next()
//	res, err := load(ctx)
//	if !gen.Current(id) {
//		return // superseded
//	}
type Generation struct {
	n atomic.Uint64
}

// Next starts a new request and returns its id.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current reports whether id is still the latest dispatched request.
func (g *Generation) Current(id uint64) bool {
	return g.n.Load() == id
}
