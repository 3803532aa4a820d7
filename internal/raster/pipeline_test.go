package raster

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/rs/zerolog"
)

var errTest = errors.New("render failed")

func TestPipelineZeroPageInputReturnsNoError(t *testing.T) {
	p := NewPipeline(&FakePageRenderer{Pages: nil}, DefaultTuning(), zerolog.Nop())
	pages, err := p.Process(nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected zero pages, got %d", len(pages))
	}
}

func TestPipelineChessboardIsPackedDocumentPage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	tuning := DefaultTuning()
	tuning.DeviceWidth = 16
	p := NewPipeline(&FakePageRenderer{Pages: []image.Image{img}}, tuning, zerolog.Nop())

	pages, err := p.Process([]byte("doc"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected one page, got %d", len(pages))
	}
	if pages[0].Kind != KindDocument {
		t.Fatalf("kind = %v, want KindDocument", pages[0].Kind)
	}
	for _, line := range pages[0].Lines {
		if len(line) != 4 { // 16px wide = 2 column groups x 2 bytes
			t.Fatalf("line length = %d, want 4", len(line))
		}
	}
}

func TestPipelineSkipsZeroDimensionPage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 0, 0))
	p := NewPipeline(&FakePageRenderer{Pages: []image.Image{img}}, DefaultTuning(), zerolog.Nop())

	pages, err := p.Process([]byte("doc"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected page to be skipped, got %d pages", len(pages))
	}
}

func TestPipelineRenderErrorPropagates(t *testing.T) {
	p := NewPipeline(&FakePageRenderer{Err: errTest}, DefaultTuning(), zerolog.Nop())
	if _, err := p.Process([]byte("doc")); err == nil {
		t.Fatalf("expected render error to propagate")
	}
}
