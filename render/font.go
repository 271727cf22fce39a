package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment of a track label relative to its bounding box
type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering track labels and frame
// statistics using GoCV Hershey fonts
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the text label to the bounding box
	Alignment Alignment
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// textSize measures text rendered in this font
func (f Font) textSize(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}

// padded returns the background box for text whose baseline starts at pos
func (f Font) padded(pos, size image.Point) image.Rectangle {
	return image.Rect(pos.X-f.LeftPad, pos.Y-size.Y-f.TopPad,
		pos.X+size.X+f.RightPad, pos.Y+f.BottomPad)
}

// put draws text with its baseline starting at pos
func (f Font) put(img *gocv.Mat, text string, pos image.Point) {
	gocv.PutTextWithParams(img, text, pos, f.Face, f.Scale, f.Color,
		f.Thickness, f.LineType, false)
}
