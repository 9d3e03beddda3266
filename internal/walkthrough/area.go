package walkthrough

import "math"

const (
	areaBorder = 4.0
	areaGap    = 1.25 * areaBorder
)

// Grid describes a cell range of the settings grid below the header.
type Grid struct {
	Rows     int `yaml:"rows"`
	Cols     int `yaml:"cols"`
	RowStart int `yaml:"row_start"`
	ColStart int `yaml:"col_start"`
	RowEnd   int `yaml:"row_end"`
	ColEnd   int `yaml:"col_end"`
}

// HeaderHeight returns the height of the settings header above the grid.
type HeaderHeight func() float64

// GridArea returns an AreaFunc highlighting the cells [rowStart,rowEnd) x
// [colStart,colEnd) of a rows x cols grid laid out under the header.
func GridArea(header HeaderHeight, rows, cols, rowStart, colStart, rowEnd, colEnd int) AreaFunc {
	return func(w, h float64) Area {
		var h1 float64
		if header != nil {
			h1 = header()
		}

		iw := (w - float64(cols+1)*areaGap) / float64(cols)
		ih := (h - h1 - float64(rows+1)*areaGap) / float64(rows)

		y := h1 + float64(rowStart)*(ih+areaGap) + areaGap/2
		x := float64(colStart)*(iw+areaGap) + areaGap/2

		wr := float64(colEnd-colStart) * (iw + areaGap)
		hr := float64(rowEnd-rowStart) * (ih + areaGap)

		return Area{
			Pos:    Vec{X: x, Y: y},
			Size:   Vec{X: wr, Y: hr},
			Border: 0.015*math.Min(w, h) + areaGap/2,
		}
	}
}

// AreaFunc builds the area for g. Zero Rows or Cols default to the 3 x 4
// settings grid.
func (g Grid) AreaFunc(header HeaderHeight) AreaFunc {
	rows, cols := g.Rows, g.Cols
	if rows == 0 {
		rows = 3
	}
	if cols == 0 {
		cols = 4
	}
	return GridArea(header, rows, cols, g.RowStart, g.ColStart, g.RowEnd, g.ColEnd)
}
