package ble

import (
	"context"
	"fmt"
	"time"
)

// lineWriter is the minimal GATT write surface the streamer needs; it
// is satisfied by *bluetooth.DeviceCharacteristic and by test doubles.
type lineWriter interface {
	WriteWithoutResponse(data []byte) (int, error)
}

// Pacing holds the sleep durations the streaming loop observes.
// Production code uses DefaultPacing; tests zero them out to run
// instantly.
type Pacing struct {
	AfterHeader time.Duration
	BetweenLine time.Duration
	PauseHonor  time.Duration
	AfterFooter time.Duration
}

// DefaultPacing is the timing the printer firmware expects: 100ms
// after the header, 40ms between lines, 590ms to honor a pause
// request, 100ms after the footer.
func DefaultPacing() Pacing {
	return Pacing{
		AfterHeader: 100 * time.Millisecond,
		BetweenLine: 40 * time.Millisecond,
		PauseHonor:  590 * time.Millisecond,
		AfterFooter: 100 * time.Millisecond,
	}
}

// streamer writes framed device lines to a characteristic with
// header/footer control frames and pause-aware pacing.
type streamer struct {
	write   lineWriter
	signals *signals
	pacing  Pacing
	sleep   func(time.Duration)
}

func newStreamer(write lineWriter, sig *signals, pacing Pacing) *streamer {
	return &streamer{write: write, signals: sig, pacing: pacing, sleep: time.Sleep}
}

// Stream writes header, then every line (honoring a pending pause
// request before each write), then footer. lines must already be
// sequence-framed (see FrameLines).
func (s *streamer) Stream(ctx context.Context, lines [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeWithRetry(s.write, headerFrame(len(lines))); err != nil {
		return fmt.Errorf("ble: write header: %w", err)
	}
	s.sleep(s.pacing.AfterHeader)

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.signals.takePauseRequired() {
			s.sleep(s.pacing.PauseHonor)
		}
		if err := writeWithRetry(s.write, line); err != nil {
			return fmt.Errorf("ble: write line: %w", err)
		}
		s.sleep(s.pacing.BetweenLine)
	}

	if err := writeWithRetry(s.write, footerFrame(len(lines))); err != nil {
		return fmt.Errorf("ble: write footer: %w", err)
	}
	s.sleep(s.pacing.AfterFooter)

	return nil
}
