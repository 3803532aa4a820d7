// Package raster implements the page-to-device-line pipeline: render,
// trim, classify, content-bbox trim, resample, binarize, and pack into
// BLE line payloads.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"
)

// PageRenderer turns document bytes (PDF or PostScript) into one RGB
// raster per page at the requested resolution.
type PageRenderer interface {
	RenderPages(document []byte, dpi int) ([]image.Image, error)
}

// GhostscriptRenderer shells out to Ghostscript to rasterize PDF or
// PostScript input to one PNG per page, then decodes them.
type GhostscriptRenderer struct {
	// BinaryPath overrides the "gs" lookup on PATH; empty uses "gs".
	BinaryPath string
}

func NewGhostscriptRenderer(binaryPath string) *GhostscriptRenderer {
	return &GhostscriptRenderer{BinaryPath: binaryPath}
}

func (g *GhostscriptRenderer) RenderPages(document []byte, dpi int) ([]image.Image, error) {
	bin := g.BinaryPath
	if bin == "" {
		bin = "gs"
	}

	dir, err := os.MkdirTemp("", "thermal-ipp-render-*")
	if err != nil {
		return nil, fmt.Errorf("raster: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "job.pdf")
	if err := os.WriteFile(inputPath, document, 0o600); err != nil {
		return nil, fmt.Errorf("raster: write job input: %w", err)
	}
	outputPattern := filepath.Join(dir, "page-%04d.png")

	cmd := exec.Command(bin,
		"-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", dpi),
		"-sOutputFile="+outputPattern,
		inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("raster: ghostscript: %w: %s", err, stderr.String())
	}

	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("raster: glob rendered pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("raster: ghostscript produced no pages")
	}

	pages := make([]image.Image, 0, len(matches))
	for _, m := range matches {
		f, err := os.Open(m)
		if err != nil {
			return nil, fmt.Errorf("raster: open rendered page: %w", err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("raster: decode rendered page: %w", err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// FakePageRenderer returns preset images regardless of input, for
// tests that exercise the pipeline without Ghostscript installed.
type FakePageRenderer struct {
	Pages []image.Image
	Err   error
}

func (f *FakePageRenderer) RenderPages(document []byte, dpi int) ([]image.Image, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Pages, nil
}
