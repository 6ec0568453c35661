package pinto

import (
	"fmt"
	"image"
)

// Grid maps between a user-configured detection grid (Rows x Cols cells
// over the whole frame) and the frame's MCU grid.
//
// Detection cell boundaries follow boundary(k, n, total) = k*total/n
// (integer division). Boundary k of n lands on MCU floor(boundary/U),
// except the closing boundary k == n which lands on the MCU grid extent, so
// the MCU ranges of all cells tile the MCU grid with no gap and no overlap.
type Grid struct {
	Rows, Cols            int // Detection grid
	Width, Height         int // Frame size in pixels
	UnitWidth, UnitHeight int // MCU size in pixels
}

// CodingRange is a half-open range of MCU rows and columns.
type CodingRange struct {
	Row0, Row1 int
	Col0, Col1 int
}

// Empty reports whether the range contains no MCU.
func (r CodingRange) Empty() bool {
	return r.Row0 >= r.Row1 || r.Col0 >= r.Col1
}

// NewGrid validates and returns a grid mapper.
func NewGrid(rows, cols, width, height, unitWidth, unitHeight int) (*Grid, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("pinto: invalid detection grid %dx%d", rows, cols)
	}
	if rows*cols > 1<<16 {
		return nil, fmt.Errorf("pinto: detection grid %dx%d exceeds 65536 cells", rows, cols)
	}
	if width < 1 || height < 1 || unitWidth < 1 || unitHeight < 1 {
		return nil, fmt.Errorf("pinto: invalid frame geometry %dx%d with unit %dx%d",
			width, height, unitWidth, unitHeight)
	}
	return &Grid{
		Rows:       rows,
		Cols:       cols,
		Width:      width,
		Height:     height,
		UnitWidth:  unitWidth,
		UnitHeight: unitHeight,
	}, nil
}

// Len returns the number of detection cells.
func (g *Grid) Len() int {
	return g.Rows * g.Cols
}

// CodingRows returns the number of MCU rows: ceil(Height/UnitHeight).
func (g *Grid) CodingRows() int {
	return (g.Height + g.UnitHeight - 1) / g.UnitHeight
}

// CodingCols returns the number of MCU columns: ceil(Width/UnitWidth).
func (g *Grid) CodingCols() int {
	return (g.Width + g.UnitWidth - 1) / g.UnitWidth
}

// CodingLen returns the number of MCUs.
func (g *Grid) CodingLen() int {
	return g.CodingRows() * g.CodingCols()
}

// boundary returns pixel boundary k of n cells spanning total pixels.
func boundary(k, n, total int) int {
	return k * total / n
}

// unitBoundary converts detection boundary k into an MCU boundary.
func unitBoundary(k, n, total, unit, units int) int {
	if k >= n {
		return units
	}
	return boundary(k, n, total) / unit
}

func (g *Grid) checkIndex(i int) error {
	if i < 0 || i >= g.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, g.Len())
	}
	return nil
}

// CodingRange returns the half-open MCU range covered by detection cell i.
func (g *Grid) CodingRange(i int) (CodingRange, error) {
	if err := g.checkIndex(i); err != nil {
		return CodingRange{}, err
	}
	row, col := i/g.Cols, i%g.Cols
	rows, cols := g.CodingRows(), g.CodingCols()
	return CodingRange{
		Row0: unitBoundary(row, g.Rows, g.Height, g.UnitHeight, rows),
		Row1: unitBoundary(row+1, g.Rows, g.Height, g.UnitHeight, rows),
		Col0: unitBoundary(col, g.Cols, g.Width, g.UnitWidth, cols),
		Col1: unitBoundary(col+1, g.Cols, g.Width, g.UnitWidth, cols),
	}, nil
}

// CodingIndices returns the raster MCU indices covered by detection cell i.
func (g *Grid) CodingIndices(i int) ([]int, error) {
	r, err := g.CodingRange(i)
	if err != nil {
		return nil, err
	}
	if r.Empty() {
		return nil, nil
	}
	cols := g.CodingCols()
	out := make([]int, 0, (r.Row1-r.Row0)*(r.Col1-r.Col0))
	for y := r.Row0; y < r.Row1; y++ {
		for x := r.Col0; x < r.Col1; x++ {
			out = append(out, y*cols+x)
		}
	}
	return out, nil
}

// RedactionSet returns the MCUs covered by the given detection cells.
func (g *Grid) RedactionSet(indices []int) (*RedactionSet, error) {
	set := NewRedactionSet(g.CodingLen())
	for _, i := range indices {
		units, err := g.CodingIndices(i)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			set.Add(u)
		}
	}
	return set, nil
}

// CodingUnitRect returns the pixel rectangle of MCU ci, clipped to the frame.
func (g *Grid) CodingUnitRect(ci int) (image.Rectangle, error) {
	if ci < 0 || ci >= g.CodingLen() {
		return image.Rectangle{}, fmt.Errorf("%w: coding unit %d not in [0, %d)", ErrIndexOutOfRange, ci, g.CodingLen())
	}
	cols := g.CodingCols()
	x, y := (ci%cols)*g.UnitWidth, (ci/cols)*g.UnitHeight
	r := image.Rect(x, y, x+g.UnitWidth, y+g.UnitHeight)
	return r.Intersect(g.bounds()), nil
}

// CellRect returns the pixel rectangle of the MCUs covered by detection
// cell i, clipped to the frame. It is empty when the cell covers no MCU.
func (g *Grid) CellRect(i int) (image.Rectangle, error) {
	r, err := g.CodingRange(i)
	if err != nil {
		return image.Rectangle{}, err
	}
	if r.Empty() {
		return image.Rectangle{}, nil
	}
	rect := image.Rect(
		r.Col0*g.UnitWidth, r.Row0*g.UnitHeight,
		r.Col1*g.UnitWidth, r.Row1*g.UnitHeight,
	)
	return rect.Intersect(g.bounds()), nil
}

// DetectionRect returns the pixel rectangle of detection cell i as given by
// the boundary formula, before alignment to the MCU grid.
func (g *Grid) DetectionRect(i int) (image.Rectangle, error) {
	if err := g.checkIndex(i); err != nil {
		return image.Rectangle{}, err
	}
	row, col := i/g.Cols, i%g.Cols
	return image.Rect(
		boundary(col, g.Cols, g.Width), boundary(row, g.Rows, g.Height),
		boundary(col+1, g.Cols, g.Width), boundary(row+1, g.Rows, g.Height),
	), nil
}

// CellsCovering returns, in ascending order, the detection cells whose
// MCU-aligned rectangle intersects r.
func (g *Grid) CellsCovering(r image.Rectangle) []int {
	r = r.Intersect(g.bounds())
	if r.Empty() {
		return nil
	}
	var out []int
	for i := range g.Len() {
		cell, _ := g.CellRect(i)
		if cell.Overlaps(r) {
			out = append(out, i)
		}
	}
	return out
}

func (g *Grid) bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// RedactionSet is a set of MCU raster indices to erase.
type RedactionSet struct {
	units []bool
	n     int
}

// NewRedactionSet returns an empty set over size MCUs.
func NewRedactionSet(size int) *RedactionSet {
	return &RedactionSet{units: make([]bool, size)}
}

// Add inserts MCU index i. Indices outside the set's range are ignored.
func (s *RedactionSet) Add(i int) {
	if i < 0 || i >= len(s.units) || s.units[i] {
		return
	}
	s.units[i] = true
	s.n++
}

// Contains reports whether MCU i is to be redacted. A nil set is empty.
func (s *RedactionSet) Contains(i int) bool {
	if s == nil || i < 0 || i >= len(s.units) {
		return false
	}
	return s.units[i]
}

// Len returns the number of MCUs in the set.
func (s *RedactionSet) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}
