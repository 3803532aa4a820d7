package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Page is one rendered page's packed output, plus the classification
// that produced it (useful for logging and debug artifacts).
type Page struct {
	Kind  Kind
	Lines [][]byte
}

// Pipeline renders, classifies, and packs a print job's pages.
type Pipeline struct {
	renderer PageRenderer
	tuning   Tuning
	// DebugDir, if non-empty, receives a PNG of each page's final
	// binarized bitmap for inspection; a write failure here is logged
	// and ignored.
	DebugDir string
	log      zerolog.Logger
}

func NewPipeline(renderer PageRenderer, tuning Tuning, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		renderer: renderer,
		tuning:   tuning,
		log:      log.With().Str("component", "raster").Logger(),
	}
}

// Process renders document into pages and runs each through the full
// pipeline. A page whose render produced an empty histogram or a
// zero-dimension raster is logged and skipped, not an error for the
// whole job.
func (p *Pipeline) Process(document []byte) ([]Page, error) {
	images, err := p.renderer.RenderPages(document, p.tuning.RenderDPI)
	if err != nil {
		return nil, fmt.Errorf("raster: render: %w", err)
	}

	multiPage := len(images) > 1
	pages := make([]Page, 0, len(images))
	for i, img := range images {
		page, ok := p.processPage(i, img, multiPage)
		if ok {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (p *Pipeline) processPage(index int, img image.Image, multiPage bool) (Page, bool) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		p.log.Warn().Int("page", index).Msg("zero-dimension page, skipped")
		return Page{}, false
	}

	gray := toGray(img)
	trimmed := gray.SubImage(trimWhitespace(gray)).(*image.Gray)

	kind := classify(trimmed, p.tuning)

	working := trimmed
	if kind == KindDocument || multiPage {
		bbox := contentBoundingBox(trimmed, p.tuning.BlackThreshold)
		working = trimmed.SubImage(bbox).(*image.Gray)
	}

	if working.Bounds().Dx() == 0 || working.Bounds().Dy() == 0 {
		p.log.Warn().Int("page", index).Msg("empty content after trim, skipped")
		return Page{}, false
	}

	resized := resizeToDeviceWidth(working, p.tuning.DeviceWidth)

	var bitmap *BitmapPage
	if kind == KindDocument {
		bitmap = binarizeThreshold(resized, p.tuning.BlackThreshold)
	} else {
		bitmap = binarizeFloydSteinberg(resized)
	}
	bitmap = cropHeightParity(bitmap)

	p.writeDebugImage(index, bitmap)

	lines, err := bitmap.Pack()
	if err != nil {
		p.log.Warn().Int("page", index).Err(err).Msg("pack failed, page skipped")
		return Page{}, false
	}

	return Page{Kind: kind, Lines: lines}, true
}

func (p *Pipeline) writeDebugImage(index int, bitmap *BitmapPage) {
	if p.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(p.DebugDir, 0o755); err != nil {
		p.log.Debug().Err(err).Msg("failed to create debug image dir")
		return
	}

	img := image.NewGray(image.Rect(0, 0, bitmap.Width, bitmap.Height))
	for y := 0; y < bitmap.Height; y++ {
		for x := 0; x < bitmap.Width; x++ {
			if bitmap.at(x, y) != 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	path := filepath.Join(p.DebugDir, fmt.Sprintf("page-%04d.png", index))
	f, err := os.Create(path)
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to create debug image file")
		return
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		p.log.Debug().Err(err).Msg("failed to encode debug image")
	}
}
