package tracker

import "math"

// MaxCost is the sentinel for a pair that must never be matched
var MaxCost = float32(math.Inf(1))

// CostMatrix is a dense rows x cols table of association costs indexed by
// (track, detection).  Either dimension may be zero, in which case the
// shape is still retained so unmatched indices can be reported.
type CostMatrix struct {
	rows int
	cols int
	data []float32
}

// NewCostMatrix returns a zero filled cost matrix
func NewCostMatrix(rows, cols int) *CostMatrix {
	return &CostMatrix{
		rows: rows,
		cols: cols,
		data: make([]float32, rows*cols),
	}
}

// NewCostMatrixFromRows builds a cost matrix from a slice of equal length
// rows.  cols must be given so that a matrix with no rows keeps its width.
func NewCostMatrixFromRows(values [][]float32, cols int) *CostMatrix {
	c := NewCostMatrix(len(values), cols)

	for i, row := range values {
		copy(c.data[i*cols:(i+1)*cols], row)
	}

	return c
}

// Dims returns the number of rows and columns
func (c *CostMatrix) Dims() (rows, cols int) {
	return c.rows, c.cols
}

// Empty returns true if the matrix has no cells
func (c *CostMatrix) Empty() bool {
	return c.rows == 0 || c.cols == 0
}

// At returns the cost at row i, column j
func (c *CostMatrix) At(i, j int) float32 {
	return c.data[i*c.cols+j]
}

// Set sets the cost at row i, column j
func (c *CostMatrix) Set(i, j int, v float32) {
	c.data[i*c.cols+j] = v
}

// Row returns row i.  The returned slice shares memory with the matrix.
func (c *CostMatrix) Row(i int) []float32 {
	return c.data[i*c.cols : (i+1)*c.cols]
}

// Clone returns a deep copy of the matrix
func (c *CostMatrix) Clone() *CostMatrix {
	out := NewCostMatrix(c.rows, c.cols)
	copy(out.data, c.data)
	return out
}

// Assignment is the result of solving a cost matrix.  All indices refer to
// the row/column order of the input matrix and are in ascending order.
type Assignment struct {
	// Matches are (row, column) pairs
	Matches [][2]int
	// UnmatchedRows are the track indices left without a detection
	UnmatchedRows []int
	// UnmatchedCols are the detection indices left without a track
	UnmatchedCols []int
}

// Solver computes a minimum cost matching where no matched pair exceeds
// the threshold
type Solver interface {
	Solve(cost *CostMatrix, thresh float32) (Assignment, error)
}

// LAPJV solves the linear assignment problem with the Jonker-Volgenant
// algorithm
type LAPJV struct{}

// NewLAPJV returns a LAPJV solver
func NewLAPJV() *LAPJV {
	return &LAPJV{}
}

// Solve performs linear assignment on the cost matrix.  Pairs costing more
// than thresh are never matched.
func (l *LAPJV) Solve(cost *CostMatrix, thresh float32) (Assignment, error) {

	var res Assignment
	rows, cols := cost.Dims()

	if cost.Empty() {
		for i := 0; i < rows; i++ {
			res.UnmatchedRows = append(res.UnmatchedRows, i)
		}
		for i := 0; i < cols; i++ {
			res.UnmatchedCols = append(res.UnmatchedCols, i)
		}
		return res, nil
	}

	rowsol, colsol, err := lapjvPadded(cost, thresh)

	if err != nil {
		return res, err
	}

	for i, sol := range rowsol {
		if sol >= 0 && cost.At(i, sol) <= thresh {
			res.Matches = append(res.Matches, [2]int{i, sol})
		} else {
			res.UnmatchedRows = append(res.UnmatchedRows, i)
			if sol >= 0 {
				colsol[sol] = -1
			}
		}
	}

	for i, sol := range colsol {
		if sol < 0 {
			res.UnmatchedCols = append(res.UnmatchedCols, i)
		}
	}

	return res, nil
}
