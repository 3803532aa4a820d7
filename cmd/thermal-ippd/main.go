// Command thermal-ippd exposes a 57mm/203dpi BLE thermal printer as
// an IPP network printer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/config"
	"github.com/cyra/thermal-ipp-bridge/internal/daemon"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "/etc/thermal-ippd/thermal-ippd.yaml", "path to config file")
		listen      = flag.String("listen", "", "TCP listen address (default 0.0.0.0:6310)")
		printerName = flag.String("printer-name", "", "advertised printer name")
		ppdPath     = flag.String("ppd", "", "path to the PPD file served at GET /*.ppd")
		bleName     = flag.String("ble-name", "", "BLE advertised name to scan for (default LX-D02)")
		bleAddress  = flag.String("ble-address", "", "pre-configured BLE address, skips scanning")
		blackLevel  = flag.Int("black-level", -1, "printer black level 0-9 (default 7)")
		debugImages = flag.String("debug-images-dir", "", "directory to write post-processed page images")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		logFormat   = flag.String("log-format", "", "log format: json, console")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("thermal-ippd version %s (commit %s)\n", version, commit)
		os.Exit(0)
	}

	cfg := config.Default()
	if err := config.LoadFile(&cfg, *configPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load config file: %v\n", err)
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *printerName != "" {
		cfg.Printer.Name = *printerName
	}
	if *ppdPath != "" {
		cfg.Printer.PPDPath = *ppdPath
	}
	if *bleName != "" {
		cfg.BLE.TargetName = *bleName
	}
	if *bleAddress != "" {
		cfg.BLE.Address = *bleAddress
	}
	if *blackLevel >= 0 {
		cfg.BLE.BlackLevel = *blackLevel
	}
	if *debugImages != "" {
		cfg.Raster.DebugImagesDir = *debugImages
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	log := newLogger(cfg.Log.Level, cfg.Log.Format)

	d := daemon.New(cfg, log)
	if err := d.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("daemon failed")
	}
}

func newLogger(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(level))
	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
