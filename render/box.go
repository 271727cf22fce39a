package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-botsort/tracker"
	"gocv.io/x/gocv"
)

// boxLabel defines where a track label should be rendered on the source
// image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// TrackBoxes renders the bounding boxes and ID labels of tracker results.
// Unconfirmed tracks are drawn in grey until their second sighting.
func TrackBoxes(img *gocv.Mat, tracks []*tracker.Track, classNames []string,
	font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(tracks))

	for _, track := range tracks {

		rect := image.Rect(
			int(track.GetRect().TLX()),
			int(track.GetRect().TLY()),
			int(track.GetRect().BRX()),
			int(track.GetRect().BRY()),
		)

		useClr := trackColor(track.GetTrackID())

		if !track.IsActivated() {
			useClr = Grey
		}

		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("%s %d", className(classNames, track.GetLabel()), track.GetTrackID())
		boxLabels = append(boxLabels, placeLabel(rect, text, useClr, font, lineThickness))
	}

	// draw labels last so they are the top most layer on the image
	drawLabels(img, boxLabels, font)
}

// className returns the name of a class, falling back to its index when no
// name is known
func className(classNames []string, label int) string {
	if label >= 0 && label < len(classNames) {
		return classNames[label]
	}
	return fmt.Sprintf("%d", label)
}

// placeLabel calculates where the label text and its background box go
// relative to the bounding box
func placeLabel(rect image.Rectangle, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	textSize := font.textSize(text)

	var left int

	switch font.Alignment {
	case Center:
		left = (rect.Min.X+rect.Max.X)/2 - textSize.X/2

	case Right:
		left = rect.Max.X - textSize.X - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		left = rect.Min.X + font.LeftPad - (lineThickness / 2)
	}

	textPos := image.Pt(left, rect.Min.Y-font.BottomPad)

	return boxLabel{
		rect:    font.padded(textPos, textSize),
		clr:     clr,
		text:    text,
		textPos: textPos,
	}
}

// drawLabels draws the label boxes followed by their text
func drawLabels(img *gocv.Mat, labels []boxLabel, font Font) {
	for _, box := range labels {
		gocv.Rectangle(img, box.rect, box.clr, -1)
		font.put(img, box.text, box.textPos)
	}
}

// FrameStats writes the association summary of a frame in the top left
// corner of the image
func FrameStats(img *gocv.Mat, frameID int, stats tracker.FrameStats, font Font) {

	text := fmt.Sprintf("frame %d  tracked %d  new %d  lost %d  removed %d",
		frameID, stats.Tracked, stats.NewTracks, stats.Lost, stats.Removed)

	textSize := font.textSize(text)
	textPos := image.Pt(font.LeftPad, textSize.Y+font.TopPad)

	gocv.Rectangle(img, font.padded(textPos, textSize), Black, -1)
	font.put(img, text, textPos)
}
