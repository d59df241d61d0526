package layout

import (
	"fmt"
	"math"

	"dbcal/internal/model"
)

// Scale converts hours into pixels for the time grid.
type Scale struct {
	PixelsPerHour float64
	// MinHeight keeps very short events clickable.
	MinHeight float64
}

// DefaultScale is 40px per hour with a 20px floor.
var DefaultScale = Scale{PixelsPerHour: 40, MinHeight: 20}

// Box is the placement of one event inside a day column. Top and Height are
// pixels; Left and Width are percentages of the column width.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Place computes the box of a packed interval.
func Place(p model.PackedInterval, s Scale) Box {
	if s.PixelsPerHour <= 0 {
		s = DefaultScale
	}
	cols := p.Columns
	if cols < 1 {
		cols = 1
	}
	width := 100 / float64(cols)
	height := (p.EndHour - p.StartHour) * s.PixelsPerHour
	if height < s.MinHeight {
		height = s.MinHeight
	}
	return Box{
		Top:    p.StartHour * s.PixelsPerHour,
		Height: height,
		Left:   float64(p.Column) * width,
		Width:  width,
	}
}

// GridHeight is the pixel height of a full day column.
func (s Scale) GridHeight() float64 {
	return 24 * s.PixelsPerHour
}

// FormatHour renders a fractional hour as "9:30am".
func FormatHour(h float64) string {
	hr := int(math.Floor(h))
	min := int(math.Round((h - float64(hr)) * 60))
	if min == 60 {
		hr++
		min = 0
	}
	hr %= 24
	suffix := "am"
	if hr >= 12 {
		suffix = "pm"
	}
	return fmt.Sprintf("%d:%02d%s", twelveHour(hr), min, suffix)
}

// HourLabel renders an axis label such as "9 AM".
func HourLabel(h int) string {
	h %= 24
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d %s", twelveHour(h), suffix)
}

func twelveHour(h int) int {
	if h%12 == 0 {
		return 12
	}
	return h % 12
}
