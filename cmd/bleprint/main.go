// Command bleprint sends a single image file directly to the BLE
// thermal printer, bypassing IPP entirely; useful for bring-up and
// diagnostics.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/ble"
	"github.com/cyra/thermal-ipp-bridge/internal/raster"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		file       = flag.String("file", "", "image file to print (required)")
		address    = flag.String("address", "", "BLE address of the printer")
		blackLevel = flag.Int("black_level", 7, "printer black level 0-9")
		name       = flag.String("name", ble.DefaultTargetName, "target BLE device name")
	)
	flag.StringVar(file, "f", "", "shorthand for --file")
	flag.StringVar(address, "a", "", "shorthand for --address")
	flag.IntVar(blackLevel, "b", 7, "shorthand for --black_level")
	flag.StringVar(name, "n", ble.DefaultTargetName, "shorthand for --name")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "bleprint: --file/-f is required")
		return 1
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	img, err := loadImage(*file)
	if err != nil {
		log.Error().Err(err).Str("file", *file).Msg("failed to load image")
		return 1
	}

	tuning := raster.DefaultTuning()
	pipeline := raster.NewPipeline(&raster.FakePageRenderer{Pages: []image.Image{img}}, tuning, log)
	pages, err := pipeline.Process(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to rasterize image")
		return 1
	}
	if len(pages) == 0 {
		log.Error().Msg("image produced no printable content")
		return 1
	}

	ctx := context.Background()
	client := ble.NewClient(log)
	cfg := ble.Config{TargetName: *name, Address: *address, BlackLevel: *blackLevel}

	if err := client.Connect(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("failed to connect to printer")
		return 1
	}
	defer client.Disconnect()

	if err := client.Initialize(ctx, *blackLevel); err != nil {
		log.Error().Err(err).Msg("failed to initialize printer")
		return 1
	}
	if st := client.LastStatus(); st.BatteryPercent > 0 {
		log.Info().Int("battery_percent", st.BatteryPercent).Bool("charging", st.Charging).Msg("printer status")
	}

	for i, page := range pages {
		if err := client.StartJob(ctx); err != nil {
			log.Error().Err(err).Int("page", i).Msg("failed to start job")
			return 1
		}
		if err := client.PrintLines(ctx, page.Lines, ble.DefaultPacing()); err != nil {
			log.Error().Err(err).Int("page", i).Msg("failed to print page")
			return 1
		}
	}

	return 0
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
