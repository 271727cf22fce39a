package render

import "image/color"

// trackPalette holds the colors tracks are painted with as 0xRRGGBB,
// ordered so neighbouring track IDs contrast
var trackPalette = []uint32{
	0xFF3838, 0xFF9D97, 0xFF701F, 0xFFB21D, 0xCFD231, 0x48F90A, 0x92CC17,
	0x3DDB86, 0x1A9334, 0x00D4BB, 0x2C99A8, 0x00C2FF, 0x344593, 0x6473FF,
	0x0018EC, 0x8438FF, 0x520085, 0xCB38FF, 0xFF95C8, 0xFF37C7,
}

var (
	Grey   = rgb(0x808080)
	Black  = rgb(0x000000)
	White  = rgb(0xFFFFFF)
	Yellow = rgb(0xFFFF32)
	Pink   = rgb(0xFF00FF)
)

// rgb converts a 0xRRGGBB value to an opaque color
func rgb(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// trackColor returns the color used for a track ID
func trackColor(id int) color.RGBA {
	if id < 0 {
		id = -id
	}
	return rgb(trackPalette[id%len(trackPalette)])
}
