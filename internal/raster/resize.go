package raster

import (
	"image"

	"golang.org/x/image/draw"
)

// resizeToDeviceWidth scales gray to exactly width pixels wide,
// preserving aspect ratio, using Catmull-Rom resampling.
func resizeToDeviceWidth(gray *image.Gray, width int) *image.Gray {
	b := gray.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return image.NewGray(image.Rect(0, 0, width, 0))
	}

	height := int(float64(srcH) * float64(width) / float64(srcW))
	if height < 1 {
		height = 1
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), gray, b, draw.Over, nil)
	return dst
}
