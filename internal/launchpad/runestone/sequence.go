package runestone

import (
	"errors"
	"math/big"
)

// sequenceReader walks a decoded integer sequence one element at a
// time, tracking how many elements remain for length-parity checks.
type sequenceReader struct {
	items []*big.Int
	idx   int
}

func newSequenceReader(items []*big.Int) *sequenceReader {
	return &sequenceReader{items: items}
}

func (r *sequenceReader) hasNext() bool {
	return r.idx < len(r.items)
}

func (r *sequenceReader) next() (*big.Int, error) {
	if !r.hasNext() {
		return nil, errors.New("runestone: sequence ended unexpectedly")
	}
	v := r.items[r.idx]
	r.idx++
	return v, nil
}

func (r *sequenceReader) remaining() int {
	return len(r.items) - r.idx
}
