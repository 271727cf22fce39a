package render

import (
	"image/color"

	"github.com/swdee/go-botsort/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines how track trails are drawn.  When LineSame or
// CircleSame is set the track's box color is used instead of LineColor or
// CircleColor.
type TrailStyle struct {
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	CircleSame    bool
	CircleColor   color.RGBA
	CircleRadius  int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// colors returns the line and circle colors for a track
func (s TrailStyle) colors(trackID int) (line, circle color.RGBA) {

	line, circle = s.LineColor, s.CircleColor
	own := trackColor(trackID)

	if s.LineSame {
		line = own
	}

	if s.CircleSame {
		circle = own
	}

	return line, circle
}

// Trail draws the recent path of each track with a dot on its current
// center.  Tracks with fewer than two recorded points are skipped.
func Trail(img *gocv.Mat, tracks []*tracker.Track, trail *tracker.Trail,
	style TrailStyle) {

	for _, t := range tracks {

		points := trail.GetPoints(t.GetTrackID())

		if len(points) < 2 {
			continue
		}

		lineClr, circleClr := style.colors(t.GetTrackID())

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
		}

		gocv.Circle(img, points[len(points)-1], style.CircleRadius, circleClr, -1)
	}
}
