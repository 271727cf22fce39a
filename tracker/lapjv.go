package tracker

import (
	"errors"
	"fmt"
	"math"
)

// lapLarge is larger than any cost the tracker produces after saturation
const lapLarge = 1000000.0

var (
	errPathNotFound = errors.New("augmenting path not found")
	errPathTooLong  = errors.New("augmenting path longer than matrix")
)

// lapjvPadded solves a rectangular cost matrix where any pair may be left
// unmatched.  The matrix is extended to a square (rows+cols) problem in
// which every row and column can instead take a dummy partner at half the
// cost limit, so a real pair is only chosen when it beats leaving both
// sides unmatched.  Rows or columns paired with a dummy are reported as -1.
func lapjvPadded(cost *CostMatrix, costLimit float32) (rowsol []int,
	colsol []int, err error) {

	nRows, nCols := cost.Dims()
	n := nRows + nCols

	// costs above the limit can never win against the dummy assignment, so
	// saturate them to keep the solver arithmetic finite
	ceiling := float64(costLimit) + 1
	dummy := float64(costLimit) / 2.0

	extended := make([][]float64, n)

	for i := range extended {
		extended[i] = make([]float64, n)

		for j := range extended[i] {
			switch {
			case i < nRows && j < nCols:
				c := float64(cost.At(i, j))
				if c > ceiling || math.IsNaN(c) {
					c = ceiling
				}
				extended[i][j] = c
			case i >= nRows && j >= nCols:
				// dummy to dummy is free
				extended[i][j] = 0
			default:
				extended[i][j] = dummy
			}
		}
	}

	x := make([]int, n)
	y := make([]int, n)

	if err := lapjvInternal(n, extended, x, y); err != nil {
		return nil, nil, fmt.Errorf("lapjv failed to solve %dx%d matrix: %w",
			nRows, nCols, err)
	}

	rowsol = make([]int, nRows)
	colsol = make([]int, nCols)

	for i := range rowsol {
		rowsol[i] = x[i]
		if x[i] >= nCols {
			rowsol[i] = -1
		}
	}

	for j := range colsol {
		colsol[j] = y[j]
		if y[j] >= nRows {
			colsol[j] = -1
		}
	}

	return rowsol, colsol, nil
}

// lapjvInternal solves the dense square LAP of size n, writing the column
// assigned to each row into x and the row assigned to each column into y
func lapjvInternal(n int, cost [][]float64, x, y []int) error {

	freeRows := make([]int, n)
	v := make([]float64, n)

	nFree := ccrrtDense(n, cost, freeRows, x, y, v)

	// two rounds of augmenting row reduction before falling back to
	// shortest augmenting paths
	for i := 0; nFree > 0 && i < 2; i++ {
		nFree = carrDense(n, cost, nFree, freeRows, x, y, v)
	}

	if nFree > 0 {
		return caDense(n, cost, nFree, freeRows, x, y, v)
	}

	return nil
}

// ccrrtDense performs column reduction and reduction transfer, the JV
// initialisation.  Each column is given to its cheapest row, rows winning
// more than one column keep only one, and the column prices v are lowered
// so that rows holding a single column keep it cheaply.  Returns the
// number of rows still unassigned, listed in freeRows.
func ccrrtDense(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {

	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = lapLarge
		y[i] = 0
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := cost[i][j]
			if c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}

	for i := 0; i < n; i++ {
		unique[i] = true
	}

	j := n

	for j > 0 {
		j--
		i := y[j]
		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}

	nFreeRows := 0

	for i := 0; i < n; i++ {

		if x[i] < 0 {
			freeRows[nFreeRows] = i
			nFreeRows++

		} else if unique[i] {

			j := x[i]
			minVal := lapLarge

			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}

				c := cost[i][j2] - v[j2]

				if c < minVal {
					minVal = c
				}
			}

			v[j] -= minVal
		}
	}

	return nFreeRows
}

// carrDense performs augmenting row reduction.  Each free row takes its
// cheapest column at current prices, displacing the previous owner back
// onto the free list when the second best column is strictly more
// expensive.  Returns the number of rows left free.
func carrDense(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) int {

	current := 0
	newFreeRows := 0
	rrCnt := 0

	for current < nFreeRows {

		rrCnt++
		freeI := freeRows[current]
		current++

		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := lapLarge

		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFreeRows] = i0
					newFreeRows++
				}
			}
		} else {
			if i0 >= 0 {
				freeRows[newFreeRows] = i0
				newFreeRows++
			}
		}

		x[freeI] = j1
		y[j1] = freeI
	}

	return newFreeRows
}

// findDense finds columns with minimum d[j] and put them on the SCAN list
func findDense(n int, lo int, d []float64, cols, y []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < n; k++ {

		j := cols[k]

		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scanDense scans all columns in TODO starting from arbitrary column in SCAN
// and try to decrease d of the TODO columns using the SCAN column
func scanDense(n int, cost [][]float64, lo, hi *int, d []float64,
	cols, pred, y []int, v []float64) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind

		for k := *hi; k < n; k++ {
			j = cols[k]
			credIJ := cost[i][j] - v[j] - h

			if credIJ < d[j] {
				d[j] = credIJ
				pred[j] = i

				if credIJ == mind {
					if y[j] < 0 {
						return j
					}

					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}

	return -1
}

// findPathDense performs a single iteration of modified Dijkstra shortest path
// algorithm as explained in the JV paper.  This is a dense matrix version.
func findPathDense(n int, cost [][]float64, startI int, y []int, v []float64,
	pred []int) int {

	lo := 0
	hi := 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}

	for finalJ == -1 {
		// No columns left on the SCAN list
		if lo == hi {
			nReady = lo
			hi = findDense(n, lo, d, cols, y)

			for k := lo; k < hi; k++ {
				j := cols[k]

				if y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = scanDense(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}

	return finalJ
}

// caDense assigns the remaining free rows one at a time along shortest
// augmenting paths, updating the column prices as it goes.  An error means
// the matrix admits no complete assignment, which the dummy padding in
// lapjvPadded rules out for finite costs.
func caDense(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) error {

	pred := make([]int, n)

	for _, freeI := range freeRows[:nFreeRows] {

		i := -1
		k := 0

		j := findPathDense(n, cost, freeI, y, v, pred)

		if j < 0 || j >= n {
			return errPathNotFound
		}

		for i != freeI {

			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
			k++

			if k >= n {
				return errPathTooLong
			}
		}
	}

	return nil
}
