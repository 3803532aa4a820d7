package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// commandTimeout bounds the ack wait after a command write; the
// printer normally acks within a few hundred milliseconds.
const commandTimeout = 10 * time.Second

const commandPollInterval = 200 * time.Millisecond

// Client owns one BLE connection to the printer: discovery, the GATT
// write/notify characteristics, and the in-memory notification
// signals the streaming loop consumes. Not safe for concurrent use;
// the job bridge serializes access.
type Client struct {
	adapter *bluetooth.Adapter
	device  *bluetooth.Device
	write   bluetooth.DeviceCharacteristic
	notify  bluetooth.DeviceCharacteristic

	signals *signals
	log     zerolog.Logger
}

// Config configures discovery and the printer's init parameters.
type Config struct {
	TargetName  string // advertised name to scan for; DefaultTargetName if empty
	Address     string // pre-configured BLE address; skips scanning if set
	BlackLevel  int    // 0-9
	ScanTimeout time.Duration
}

func NewClient(log zerolog.Logger) *Client {
	return &Client{
		adapter: bluetooth.DefaultAdapter,
		signals: newSignals(),
		log:     log.With().Str("component", "ble").Logger(),
	}
}

// Connect discovers (unless cfg.Address is set) and connects to the
// printer, discovers its characteristics, and subscribes to
// notifications. The subscription must be live before any write, or
// the first ack is lost.
func (c *Client) Connect(ctx context.Context, cfg Config) error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	addr, err := c.resolveAddress(ctx, cfg)
	if err != nil {
		return err
	}

	device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("ble: connect: %w", err)
	}
	c.device = &device

	writeChar, notifyChar, err := discoverCharacteristics(&device)
	if err != nil {
		_ = device.Disconnect()
		c.device = nil
		return err
	}
	c.write = writeChar
	c.notify = notifyChar

	if err := c.notify.EnableNotifications(c.onNotification); err != nil {
		_ = device.Disconnect()
		c.device = nil
		return fmt.Errorf("ble: enable notifications: %w", err)
	}

	return nil
}

// Disconnect tears down the GATT connection. Safe to call on an
// already-disconnected client.
func (c *Client) Disconnect() error {
	if c.device == nil {
		return nil
	}
	err := c.device.Disconnect()
	c.device = nil
	if err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// Characteristic writes occasionally fail transiently on busy
// adapters; retry a few times before giving up.
const writeRetryCount = 3
const writeRetryDelay = 10 * time.Millisecond

func writeWithRetry(w lineWriter, data []byte) error {
	var lastErr error
	for i := 0; i < writeRetryCount; i++ {
		if _, err := w.WriteWithoutResponse(data); err == nil {
			return nil
		} else {
			lastErr = err
			time.Sleep(writeRetryDelay)
		}
	}
	return fmt.Errorf("ble: write failed after %d attempts: %w", writeRetryCount, lastErr)
}

func (c *Client) onNotification(value []byte) {
	c.signals.handle(value)
	if classifyNotification(value) == notificationStatus {
		st := c.signals.lastStatus()
		c.log.Debug().Int("battery_percent", st.BatteryPercent).Bool("charging", st.Charging).Msg("printer status")
		return
	}
	c.log.Debug().Hex("notification", value).Msg("received BLE notification")
}

func (c *Client) resolveAddress(ctx context.Context, cfg Config) (bluetooth.Address, error) {
	if cfg.Address != "" {
		mac, err := bluetooth.ParseMAC(cfg.Address)
		if err != nil {
			return bluetooth.Address{}, fmt.Errorf("ble: parse configured address %q: %w", cfg.Address, err)
		}
		return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
	}

	targetName := cfg.TargetName
	if targetName == "" {
		targetName = DefaultTargetName
	}
	scanTimeout := cfg.ScanTimeout
	if scanTimeout == 0 {
		scanTimeout = 10 * time.Second
	}

	type result struct {
		addr bluetooth.Address
		err  error
	}
	found := make(chan result, 1)

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, device bluetooth.ScanResult) {
		if device.LocalName() == targetName {
			adapter.StopScan()
			select {
			case found <- result{addr: device.Address}:
			default:
			}
		}
	})
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: start scan: %w", err)
	}

	select {
	case r := <-found:
		return r.addr, r.err
	case <-time.After(scanTimeout):
		_ = c.adapter.StopScan()
		return bluetooth.Address{}, fmt.Errorf("ble: no device named %q found within %s", targetName, scanTimeout)
	case <-ctx.Done():
		_ = c.adapter.StopScan()
		return bluetooth.Address{}, ctx.Err()
	}
}

func discoverCharacteristics(device *bluetooth.Device) (write, notify bluetooth.DeviceCharacteristic, err error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return write, notify, fmt.Errorf("ble: discover services: %w", err)
	}

	var haveWrite, haveNotify bool
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for _, ch := range chars {
			switch ch.UUID().String() {
			case WriteCharacteristicUUID:
				write = ch
				haveWrite = true
			case NotifyCharacteristicUUID:
				notify = ch
				haveNotify = true
			}
		}
	}

	if !haveWrite || !haveNotify {
		return write, notify, fmt.Errorf("ble: write/notify characteristics not found")
	}
	return write, notify, nil
}

// sendCommand writes cmd then polls the latest notification at
// commandPollInterval until it starts with expectedPrefix or
// commandTimeout elapses.
func (c *Client) sendCommand(ctx context.Context, cmd []byte, expectedPrefix []byte) error {
	if err := writeWithRetry(c.write, cmd); err != nil {
		return fmt.Errorf("ble: write command: %w", err)
	}

	deadline := time.Now().Add(commandTimeout)
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		if hasPrefix(c.signals.latestBytes(), expectedPrefix) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ble: timed out waiting for ack prefix % x", expectedPrefix)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if data[i] != b {
			return false
		}
	}
	return true
}

// Initialize runs the one-time init handshake: the fixed init command,
// then the black-level parameter.
func (c *Client) Initialize(ctx context.Context, blackLevel int) error {
	if err := c.sendCommand(ctx, initCommand, prefixInitAck); err != nil {
		return fmt.Errorf("ble: init command: %w", err)
	}
	cmd, err := blackLevelCommand(blackLevel)
	if err != nil {
		return err
	}
	if err := c.sendCommand(ctx, cmd, prefixBlackLevel); err != nil {
		return fmt.Errorf("ble: black-level command: %w", err)
	}
	return nil
}

// StartJob runs the per-job start handshake. Both commands must be
// acked before the first line is streamed.
func (c *Client) StartJob(ctx context.Context) error {
	if err := c.sendCommand(ctx, jobStartCommand1, prefixJobStartAck); err != nil {
		return fmt.Errorf("ble: job-start command 1: %w", err)
	}
	if err := c.sendCommand(ctx, jobStartCommand2, prefixLineAck); err != nil {
		return fmt.Errorf("ble: job-start command 2: %w", err)
	}
	return nil
}

// PrintLines frames lines with sequence numbers, streams them with
// paced writes and pause handling, and waits for the completion
// notification.
func (c *Client) PrintLines(ctx context.Context, lines [][]byte, pacing Pacing) error {
	framed := FrameLines(lines)
	s := newStreamer(c.write, c.signals, pacing)
	if err := s.Stream(ctx, framed); err != nil {
		return err
	}
	return c.waitForCompletion(ctx)
}

func (c *Client) waitForCompletion(ctx context.Context) error {
	deadline := time.Now().Add(commandTimeout)
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		if c.signals.takePrintCompleted() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ble: timed out waiting for print completion")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LastStatus returns the most recently observed battery/charging
// status, for logging.
func (c *Client) LastStatus() Status {
	return c.signals.lastStatus()
}
