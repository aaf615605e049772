// Package solver implements exact minimum-cost one-to-one matching over a
// square cost matrix (Hungarian method). It is a pure function: the input
// matrix is copied and all star/prime bookkeeping lives in solver-local
// state, never aliased with caller-owned data.
package solver

import (
	"errors"
	"math"
)

// Pair couples a matrix row with its assigned column.
type Pair struct {
	Row int
	Col int
}

var (
	// ErrNotSquare is returned for non-square matrices. Callers must pad
	// with zero-cost dummy rows or columns (see PadSquare) or use a greedy
	// strategy instead.
	ErrNotSquare = errors.New("solver: cost matrix must be square")
	// ErrNegativeCost is returned when the matrix contains negative values.
	ErrNegativeCost = errors.New("solver: cost matrix must be non-negative")
)

// Zero markers used during the search.
const (
	markNone byte = iota
	markStar
	markPrime
)

// Solve returns a permutation covering every row exactly once with minimal
// total cost. Tie-breaks follow row-major scan order, so equal-cost
// alternatives resolve by input ordering; callers needing reproducibility
// must build the matrix deterministically. Complexity is O(n^3). An empty
// matrix yields an empty assignment.
func Solve(cost [][]float64) ([]Pair, error) {
	n := len(cost)
	if n == 0 {
		return []Pair{}, nil
	}
	for _, row := range cost {
		if len(row) != n {
			return nil, ErrNotSquare
		}
		for _, c := range row {
			if c < 0 {
				return nil, ErrNegativeCost
			}
		}
	}

	s := newState(cost)
	s.reduceRows()
	s.reduceColumns()
	s.starInitialZeros()

	for !s.allColumnsCovered() {
		row, col, ok := s.findUncoveredZero()
		for !ok {
			s.adjustByMinUncovered()
			row, col, ok = s.findUncoveredZero()
		}
		s.marks[row][col] = markPrime
		starCol := s.starInRow(row)
		if starCol < 0 {
			s.augmentFrom(row, col)
			s.clearCoversAndPrimes()
			s.coverStarredColumns()
			continue
		}
		s.rowCovered[row] = true
		s.colCovered[starCol] = false
	}

	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if s.marks[i][j] == markStar {
				pairs = append(pairs, Pair{Row: i, Col: j})
			}
		}
	}
	return pairs, nil
}

// TotalCost sums the cost of an assignment against the original matrix.
func TotalCost(cost [][]float64, pairs []Pair) float64 {
	var total float64
	for _, p := range pairs {
		total += cost[p.Row][p.Col]
	}
	return total
}

// PadSquare pads a rows x cols matrix with zero-cost dummy entries until it
// is square. The returned matrix is a copy.
func PadSquare(cost [][]float64) [][]float64 {
	rows := len(cost)
	cols := 0
	for _, r := range cost {
		if len(r) > cols {
			cols = len(r)
		}
	}
	n := rows
	if cols > n {
		n = cols
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		if i < rows {
			copy(out[i], cost[i])
		}
	}
	return out
}

type state struct {
	n          int
	matrix     [][]float64
	marks      [][]byte
	rowCovered []bool
	colCovered []bool
}

func newState(cost [][]float64) *state {
	n := len(cost)
	s := &state{
		n:          n,
		matrix:     make([][]float64, n),
		marks:      make([][]byte, n),
		rowCovered: make([]bool, n),
		colCovered: make([]bool, n),
	}
	for i, row := range cost {
		s.matrix[i] = append([]float64(nil), row...)
		s.marks[i] = make([]byte, n)
	}
	return s
}

func (s *state) reduceRows() {
	for i := 0; i < s.n; i++ {
		min := s.matrix[i][0]
		for _, c := range s.matrix[i] {
			if c < min {
				min = c
			}
		}
		for j := range s.matrix[i] {
			s.matrix[i][j] -= min
		}
	}
}

func (s *state) reduceColumns() {
	for j := 0; j < s.n; j++ {
		min := s.matrix[0][j]
		for i := 1; i < s.n; i++ {
			if s.matrix[i][j] < min {
				min = s.matrix[i][j]
			}
		}
		for i := 0; i < s.n; i++ {
			s.matrix[i][j] -= min
		}
	}
}

// starInitialZeros stars an independent set of zeros in row-major order and
// covers their columns.
func (s *state) starInitialZeros() {
	rowUsed := make([]bool, s.n)
	colUsed := make([]bool, s.n)
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if s.matrix[i][j] == 0 && !rowUsed[i] && !colUsed[j] {
				s.marks[i][j] = markStar
				rowUsed[i] = true
				colUsed[j] = true
			}
		}
	}
	s.coverStarredColumns()
}

func (s *state) coverStarredColumns() {
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if s.marks[i][j] == markStar {
				s.colCovered[j] = true
			}
		}
	}
}

func (s *state) allColumnsCovered() bool {
	for _, c := range s.colCovered {
		if !c {
			return false
		}
	}
	return true
}

func (s *state) findUncoveredZero() (int, int, bool) {
	for i := 0; i < s.n; i++ {
		if s.rowCovered[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			if !s.colCovered[j] && s.matrix[i][j] == 0 {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

func (s *state) starInRow(row int) int {
	for j := 0; j < s.n; j++ {
		if s.marks[row][j] == markStar {
			return j
		}
	}
	return -1
}

func (s *state) starInColumn(col int) int {
	for i := 0; i < s.n; i++ {
		if s.marks[i][col] == markStar {
			return i
		}
	}
	return -1
}

func (s *state) primeInRow(row int) int {
	for j := 0; j < s.n; j++ {
		if s.marks[row][j] == markPrime {
			return j
		}
	}
	return -1
}

// augmentFrom flips the alternating star/prime path starting at the given
// primed zero, growing the independent starred set by one.
func (s *state) augmentFrom(row, col int) {
	path := []Pair{{Row: row, Col: col}}
	for {
		r := s.starInColumn(path[len(path)-1].Col)
		if r < 0 {
			break
		}
		path = append(path, Pair{Row: r, Col: path[len(path)-1].Col})
		c := s.primeInRow(r)
		path = append(path, Pair{Row: r, Col: c})
	}
	for _, p := range path {
		if s.marks[p.Row][p.Col] == markStar {
			s.marks[p.Row][p.Col] = markNone
		} else {
			s.marks[p.Row][p.Col] = markStar
		}
	}
}

func (s *state) clearCoversAndPrimes() {
	for i := 0; i < s.n; i++ {
		s.rowCovered[i] = false
		s.colCovered[i] = false
		for j := 0; j < s.n; j++ {
			if s.marks[i][j] == markPrime {
				s.marks[i][j] = markNone
			}
		}
	}
}

// adjustByMinUncovered applies the classic dual update: subtract the minimum
// uncovered value from uncovered columns and add it to covered rows,
// guaranteeing a new uncovered zero appears. Terminates for any matrix,
// including all-equal and otherwise degenerate inputs.
func (s *state) adjustByMinUncovered() {
	min := math.Inf(1)
	for i := 0; i < s.n; i++ {
		if s.rowCovered[i] {
			continue
		}
		for j := 0; j < s.n; j++ {
			if !s.colCovered[j] && s.matrix[i][j] < min {
				min = s.matrix[i][j]
			}
		}
	}
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if s.rowCovered[i] {
				s.matrix[i][j] += min
			}
			if !s.colCovered[j] {
				s.matrix[i][j] -= min
			}
		}
	}
}
