package window

import "github.com/tunogya/elois/pkg/model"

// yearRing keeps the most recent years of one company. It is owned by a single
// Builder and is not safe for concurrent use.
type yearRing struct {
	years []model.NormalizedVector
	next  int
	n     int
	// ordered is reused by window so pushes do not allocate
	ordered []model.NormalizedVector
}

func newYearRing(span int) *yearRing {
	return &yearRing{
		years:   make([]model.NormalizedVector, span),
		ordered: make([]model.NormalizedVector, span),
	}
}

// push appends a year, evicting the oldest once the ring spans its capacity
func (r *yearRing) push(v model.NormalizedVector) {
	r.years[r.next] = v
	r.next = (r.next + 1) % len(r.years)
	r.n = min(r.n+1, len(r.years))
}

func (r *yearRing) full() bool {
	return r.n == len(r.years)
}

func (r *yearRing) reset() {
	clear(r.years)
	r.next, r.n = 0, 0
}

// window returns the buffered years oldest first. The slice is overwritten by
// the next call.
func (r *yearRing) window() []model.NormalizedVector {
	out := r.ordered[:r.n]
	oldest := (r.next - r.n + len(r.years)) % len(r.years)
	for i := range out {
		out[i] = r.years[(oldest+i)%len(r.years)]
	}
	return out
}
