package raster

import "image"

// Kind is the result of classifying a rendered page.
type Kind int

const (
	KindDocument Kind = iota
	KindPhotograph
)

// Tuning holds the pipeline's tunable thresholds.
type Tuning struct {
	BlackThreshold int // default 40; grayscale cutoff for content-bbox trim
	DarkThreshold  int // default 50; histogram bin boundary for classification
	LightThreshold int // default 200; histogram bin boundary for classification
	DeviceWidth    int // default 384
	RenderDPI      int // default 300
}

// DefaultTuning returns the pipeline defaults.
func DefaultTuning() Tuning {
	return Tuning{
		BlackThreshold: 40,
		DarkThreshold:  50,
		LightThreshold: 200,
		DeviceWidth:    384,
		RenderDPI:      300,
	}
}

// toGray renders img into a plain grayscale buffer once, so every
// later pipeline step works against a single materialized plane
// instead of re-converting per pixel.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// classify builds a 256-bin intensity histogram over gray and decides
// document vs. photograph: a page is a document iff (D+L)/total >
// 0.85, where D sums bins [0, dark) and L sums bins [light, 256). An
// empty image classifies as photograph.
func classify(gray *image.Gray, t Tuning) Kind {
	var hist [256]int
	b := gray.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return KindPhotograph
	}

	d, l := 0, 0
	for i := 0; i < t.DarkThreshold && i < 256; i++ {
		d += hist[i]
	}
	for i := t.LightThreshold; i < 256; i++ {
		l += hist[i]
	}

	if float64(d+l)/float64(total) > 0.85 {
		return KindDocument
	}
	return KindPhotograph
}

// trimWhitespace returns the bounding box of pixels that differ from
// the background color sampled at the top-left corner. If the image
// is uniform, the original bounds are returned unchanged.
func trimWhitespace(gray *image.Gray) image.Rectangle {
	b := gray.Bounds()
	if b.Empty() {
		return b
	}
	bg := gray.GrayAt(b.Min.X, b.Min.Y).Y

	const bgTolerance = 8
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X, b.Min.Y
	found := false

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			diff := int(v) - int(bg)
			if diff < 0 {
				diff = -diff
			}
			if diff > bgTolerance {
				found = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if !found {
		return b
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// contentBoundingBox computes the tightest rectangle enclosing pixels
// darker than blackThreshold. Returns the full bounds, unchanged, if
// no such pixel exists.
func contentBoundingBox(gray *image.Gray, blackThreshold int) image.Rectangle {
	b := gray.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X, b.Min.Y
	found := false

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if int(gray.GrayAt(x, y).Y) < blackThreshold {
				found = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if !found {
		return b
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
