// Package daemon wires together the IPP transport, operation handler,
// raster pipeline, and BLE bridge into one running server, and owns
// the process's signal handling and shutdown sequence.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/ble"
	"github.com/cyra/thermal-ipp-bridge/internal/bridge"
	"github.com/cyra/thermal-ipp-bridge/internal/config"
	"github.com/cyra/thermal-ipp-bridge/internal/ipp"
	"github.com/cyra/thermal-ipp-bridge/internal/raster"
	"github.com/cyra/thermal-ipp-bridge/internal/transport"
)

// Daemon is the thermal-printer IPP bridge's top-level process: an
// IPP/HTTP front end backed by a raster pipeline and a serialized BLE
// job bridge.
type Daemon struct {
	cfg    config.Config
	server *transport.Server
	bridge *bridge.Bridge
	log    zerolog.Logger
}

// New builds a Daemon from cfg. The BLE connection itself is not
// opened until the first print job; New only wires the components
// together.
func New(cfg config.Config, log zerolog.Logger) *Daemon {
	pipeline := raster.NewPipeline(
		raster.NewGhostscriptRenderer(cfg.Raster.GhostscriptPath),
		raster.Tuning{
			BlackThreshold: cfg.Raster.BlackThreshold,
			DarkThreshold:  cfg.Raster.DarkThreshold,
			LightThreshold: cfg.Raster.LightThreshold,
			DeviceWidth:    cfg.Raster.DeviceWidth,
			RenderDPI:      cfg.Raster.RenderDPI,
		},
		log,
	)
	pipeline.DebugDir = cfg.Raster.DebugImagesDir

	bleClient := ble.NewClient(log)
	bleCfg := ble.Config{
		TargetName:  cfg.BLE.TargetName,
		Address:     cfg.BLE.Address,
		BlackLevel:  cfg.BLE.BlackLevel,
		ScanTimeout: cfg.BLE.ScanTimeout,
	}
	b := bridge.New(pipeline, bleClient, bleCfg, ble.DefaultPacing(), log)

	printer := ipp.PrinterConfig{
		URI:  fmt.Sprintf("ipp://%s/", cfg.Listen),
		Name: cfg.Printer.Name,
		UUID: cfg.Printer.UUID,
	}
	handler := ipp.NewHandler(printer, b, log)
	server := transport.NewServer(cfg.Listen, handler, cfg.Printer.PPDPath, log)

	return &Daemon{
		cfg:    cfg,
		server: server,
		bridge: b,
		log:    log.With().Str("component", "daemon").Logger(),
	}
}

// Run starts the IPP transport and blocks until ctx is cancelled or a
// termination signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info().Str("listen", d.cfg.Listen).Str("printer", d.cfg.Printer.Name).Msg("starting thermal IPP bridge")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		d.log.Info().Msg("context cancelled, shutting down")
	case sig := <-sigCh:
		d.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serveErr:
		d.bridge.Close()
		return fmt.Errorf("daemon: IPP transport: %w", err)
	}

	d.bridge.Close()
	return nil
}
