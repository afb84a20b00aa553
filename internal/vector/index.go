// Package vector provides an exact, positional vector index with squared-L2 search.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// Neighbor is a single search hit.
type Neighbor struct {
	Position int
	Distance float64 // squared L2
}

// Index holds fixed-dimension vectors in insertion order. Positions are dense and
// zero-based. Index does no locking; the owner serializes writers against readers.
type Index struct {
	dimensions int
	data       []float32 // row-major, len(data) == Len()*dimensions
}

// New creates an empty index for vectors of the given dimension.
func New(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector: dimensions must be positive, got %d", dimensions)
	}
	return &Index{dimensions: dimensions}, nil
}

// FromFlat rebuilds an index from row-major data as produced by Flat.
func FromFlat(dimensions int, flat []float32) (*Index, error) {
	idx, err := New(dimensions)
	if err != nil {
		return nil, err
	}
	if len(flat)%dimensions != 0 {
		return nil, fmt.Errorf("vector: flat data length %d is not a multiple of dimension %d", len(flat), dimensions)
	}
	if err := checkFinite(flat); err != nil {
		return nil, err
	}
	idx.data = append(make([]float32, 0, len(flat)), flat...)
	return idx, nil
}

// Add appends vectors and returns the position assigned to the first one. Either every
// vector is appended or none is.
func (x *Index) Add(vectors [][]float32) (int, error) {
	first := x.Len()
	for i, v := range vectors {
		if len(v) != x.dimensions {
			return first, &DimensionMismatchError{Expected: x.dimensions, Actual: len(v), Offset: i}
		}
		if err := checkFinite(v); err != nil {
			return first, fmt.Errorf("offset %d: %w", i, err)
		}
	}
	for _, v := range vectors {
		x.data = append(x.data, v...)
	}
	return first, nil
}

// Search returns up to min(k, Len()) neighbors ordered by ascending squared L2 distance,
// ties broken by ascending position.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(query) != x.dimensions {
		return nil, &DimensionMismatchError{Expected: x.dimensions, Actual: len(query)}
	}
	if err := checkFinite(query); err != nil {
		return nil, err
	}
	n := x.Len()
	if n == 0 {
		return nil, ErrNotReady
	}
	all := make([]Neighbor, n)
	for pos := 0; pos < n; pos++ {
		all[pos] = Neighbor{Position: pos, Distance: SquaredL2(query, x.row(pos))}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].Position < all[j].Position
	})
	if k > n {
		k = n
	}
	return all[:k:k], nil
}

// Len returns the number of vectors.
func (x *Index) Len() int {
	return len(x.data) / x.dimensions
}

// Dimensions returns the fixed vector dimension.
func (x *Index) Dimensions() int {
	return x.dimensions
}

// Vector returns a copy of the vector at pos.
func (x *Index) Vector(pos int) ([]float32, bool) {
	if pos < 0 || pos >= x.Len() {
		return nil, false
	}
	return append([]float32(nil), x.row(pos)...), true
}

// Truncate drops every vector at position n and above. Used to undo an Add.
func (x *Index) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= x.Len() {
		return
	}
	x.data = x.data[:n*x.dimensions]
}

// Flat returns a row-major copy of all vectors.
func (x *Index) Flat() []float32 {
	return append([]float32(nil), x.data...)
}

func (x *Index) row(pos int) []float32 {
	return x.data[pos*x.dimensions : (pos+1)*x.dimensions]
}

func checkFinite(v []float32) error {
	for _, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFinite
		}
	}
	return nil
}
