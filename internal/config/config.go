// Package config loads the daemon's configuration: built-in defaults,
// overridden by an optional YAML file, overridden again by command
// line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	Listen string // TCP listen address, default "0.0.0.0:6310"

	Printer struct {
		Name    string // default "Thermal Printer LX-D2 57mm 203 DPI"
		UUID    string // default "urn:uuid:884d7c0a-f449-45a7-8bbe-095e2943d313"
		PPDPath string // served verbatim for GET /*.ppd
	}

	Raster struct {
		BlackThreshold  int    // default 40
		DarkThreshold   int    // default 50
		LightThreshold  int    // default 200
		DeviceWidth     int    // default 384
		RenderDPI       int    // default 300
		GhostscriptPath string // empty uses "gs" on PATH
		DebugImagesDir  string // empty disables debug image artifacts
	}

	BLE struct {
		TargetName  string        // default "LX-D02"
		Address     string        // empty triggers scan-based discovery
		BlackLevel  int           // 0-9, default 7
		ScanTimeout time.Duration // default 10s
	}

	Log struct {
		Level  string // debug, info, warn, error
		Format string // "json" or "console"
	}
}

// Default returns the built-in defaults.
func Default() Config {
	var c Config
	c.Listen = "0.0.0.0:6310"
	c.Printer.Name = "Thermal Printer LX-D2 57mm 203 DPI"
	c.Printer.UUID = "urn:uuid:884d7c0a-f449-45a7-8bbe-095e2943d313"

	c.Raster.BlackThreshold = 40
	c.Raster.DarkThreshold = 50
	c.Raster.LightThreshold = 200
	c.Raster.DeviceWidth = 384
	c.Raster.RenderDPI = 300

	c.BLE.TargetName = "LX-D02"
	c.BLE.BlackLevel = 7
	c.BLE.ScanTimeout = 10 * time.Second

	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

// fileConfig mirrors Config's shape for YAML unmarshaling; only
// fields with a non-zero value in the file override Config's current
// values. A field set to its zero value (e.g. black_level: 0) is
// treated as absent and leaves the current value in place.
type fileConfig struct {
	Listen string `yaml:"listen"`

	Printer struct {
		Name    string `yaml:"name"`
		UUID    string `yaml:"uuid"`
		PPDPath string `yaml:"ppd_path"`
	} `yaml:"printer"`

	Raster struct {
		BlackThreshold  int    `yaml:"black_threshold"`
		DarkThreshold   int    `yaml:"dark_threshold"`
		LightThreshold  int    `yaml:"light_threshold"`
		DeviceWidth     int    `yaml:"device_width"`
		RenderDPI       int    `yaml:"render_dpi"`
		GhostscriptPath string `yaml:"ghostscript_path"`
		DebugImagesDir  string `yaml:"debug_images_dir"`
	} `yaml:"raster"`

	BLE struct {
		TargetName  string `yaml:"target_name"`
		Address     string `yaml:"address"`
		BlackLevel  int    `yaml:"black_level"`
		ScanTimeout string `yaml:"scan_timeout"`
	} `yaml:"ble"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFile reads a YAML file and applies its present fields onto c.
// A missing file returns the underlying os error unchanged, so callers
// can tell it apart with os.IsNotExist.
func LoadFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Listen != "" {
		c.Listen = fc.Listen
	}
	if fc.Printer.Name != "" {
		c.Printer.Name = fc.Printer.Name
	}
	if fc.Printer.UUID != "" {
		c.Printer.UUID = fc.Printer.UUID
	}
	if fc.Printer.PPDPath != "" {
		c.Printer.PPDPath = fc.Printer.PPDPath
	}

	if fc.Raster.BlackThreshold != 0 {
		c.Raster.BlackThreshold = fc.Raster.BlackThreshold
	}
	if fc.Raster.DarkThreshold != 0 {
		c.Raster.DarkThreshold = fc.Raster.DarkThreshold
	}
	if fc.Raster.LightThreshold != 0 {
		c.Raster.LightThreshold = fc.Raster.LightThreshold
	}
	if fc.Raster.DeviceWidth != 0 {
		c.Raster.DeviceWidth = fc.Raster.DeviceWidth
	}
	if fc.Raster.RenderDPI != 0 {
		c.Raster.RenderDPI = fc.Raster.RenderDPI
	}
	if fc.Raster.GhostscriptPath != "" {
		c.Raster.GhostscriptPath = fc.Raster.GhostscriptPath
	}
	if fc.Raster.DebugImagesDir != "" {
		c.Raster.DebugImagesDir = fc.Raster.DebugImagesDir
	}

	if fc.BLE.TargetName != "" {
		c.BLE.TargetName = fc.BLE.TargetName
	}
	if fc.BLE.Address != "" {
		c.BLE.Address = fc.BLE.Address
	}
	if fc.BLE.BlackLevel != 0 {
		c.BLE.BlackLevel = fc.BLE.BlackLevel
	}
	if fc.BLE.ScanTimeout != "" {
		if d, err := time.ParseDuration(fc.BLE.ScanTimeout); err == nil {
			c.BLE.ScanTimeout = d
		}
	}

	if fc.Log.Level != "" {
		c.Log.Level = fc.Log.Level
	}
	if fc.Log.Format != "" {
		c.Log.Format = fc.Log.Format
	}
	return nil
}
