package board

import "errors"

// ErrInvalidCell is returned when a placement is out of bounds or the cell
// is already occupied.
var ErrInvalidCell = errors.New("invalid cell")

// Cell is one board coordinate. X is the row, Y the column, zero-based.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Board is a rectangular Caro grid. The zero value is not usable; construct
// with New.
type Board struct {
	rows  int
	cols  int
	cells [][]string
	count int
}

func New(rows, cols int) *Board {
	cells := make([][]string, rows)
	for i := range cells {
		cells[i] = make([]string, cols)
	}
	return &Board{rows: rows, cols: cols, cells: cells}
}

func (b *Board) Rows() int { return b.rows }
func (b *Board) Cols() int { return b.cols }

// Placed reports how many cells are occupied.
func (b *Board) Placed() int { return b.count }

// Full reports whether every cell is occupied (draw condition).
func (b *Board) Full() bool { return b.count == b.rows*b.cols }

// At returns the symbol at (x, y), or "" for an empty cell. Out-of-bounds
// coordinates read as empty.
func (b *Board) At(x, y int) string {
	if !b.inBounds(x, y) {
		return ""
	}
	return b.cells[x][y]
}

// Place records symbol at (x, y). Fails with ErrInvalidCell when the
// coordinate is out of bounds or already taken.
func (b *Board) Place(x, y int, symbol string) error {
	if !b.inBounds(x, y) || b.cells[x][y] != "" {
		return ErrInvalidCell
	}
	b.cells[x][y] = symbol
	b.count++
	return nil
}

func (b *Board) inBounds(x, y int) bool {
	return x >= 0 && x < b.rows && y >= 0 && y < b.cols
}

// directions scanned for a winning line: vertical, horizontal and both
// diagonals. Each direction is walked forward and backward from the
// just-played cell.
var directions = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

// CheckWin scans outward from (x, y) and returns the contiguous run of
// winLen or more cells holding symbol, ordered along the line, or nil when
// no direction completes a run. The just-played cell is always part of the
// returned line.
func (b *Board) CheckWin(x, y, winLen int, symbol string) []Cell {
	for _, d := range directions {
		line := []Cell{{X: x, Y: y}}
		for i, j := x+d[0], y+d[1]; b.inBounds(i, j) && b.cells[i][j] == symbol; i, j = i+d[0], j+d[1] {
			line = append(line, Cell{X: i, Y: j})
		}
		for i, j := x-d[0], y-d[1]; b.inBounds(i, j) && b.cells[i][j] == symbol; i, j = i-d[0], j-d[1] {
			line = append([]Cell{{X: i, Y: j}}, line...)
		}
		if len(line) >= winLen {
			return line
		}
	}
	return nil
}

// Grid returns a copy of the board contents for snapshots.
func (b *Board) Grid() [][]string {
	out := make([][]string, b.rows)
	for i, row := range b.cells {
		out[i] = make([]string, b.cols)
		copy(out[i], row)
	}
	return out
}
