// Package ble implements the BLE packet protocol that drives the
// physical printer: discovery, connection, the init and per-job
// start handshakes, and paced line streaming.
package ble

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// GATT characteristic UUIDs exposed by the printer.
const (
	WriteCharacteristicUUID  = "0000ffe1-0000-1000-8000-00805f9b34fb"
	NotifyCharacteristicUUID = "0000ffe2-0000-1000-8000-00805f9b34fb"
)

// DefaultTargetName is the advertised device name scanned for when no
// address is preconfigured.
const DefaultTargetName = "LX-D02"

var (
	prefixInitAck     = []byte{0x5a, 0x01, 0x00, 0x03, 0xc0, 0x00, 0x00, 0x00, 0x1b, 0x96, 0x5a, 0x00}
	prefixBlackLevel  = []byte{0x5a, 0x0c}
	prefixPause       = []byte{0x5a, 0x07, 0x14}
	prefixReady       = []byte{0x5a, 0x0b, 0x01}
	prefixCompleted   = []byte{0x5a, 0x06}
	prefixJobStartAck = []byte{0x5a, 0x0a}
	prefixLineAck     = []byte{0x5a, 0x0b}
)

// initCommand is the fixed first command of the init handshake.
var initCommand = []byte{0x5a, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// blackLevelCommand builds the init-sequence step-2 command for a
// black-level nibble 0-9.
func blackLevelCommand(level int) ([]byte, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("ble: black level %d out of range [0,9]", level)
	}
	return []byte{0x5a, 0x0c, 0x00 | byte(level)}, nil
}

// Fixed per-job start commands, sent before any line is streamed.
var (
	jobStartCommand1 = []byte{0x5a, 0x0a, 0x2e, 0x58, 0xf6, 0x18, 0x1b, 0x79, 0xf1, 0x07, 0x5d, 0xc3}
	jobStartCommand2 = []byte{0x5a, 0x0b, 0xde, 0xfb, 0x0c, 0x26, 0xfe, 0x2d, 0x15, 0x9b, 0x82, 0x2c}
)

// notificationKind classifies an incoming notification payload by its
// prefix bytes.
type notificationKind int

const (
	notificationUnknown notificationKind = iota
	notificationInitAck
	notificationStatus
	notificationPause
	notificationReady
	notificationCompleted
	notificationBlackLevelAck
	notificationJobStartAck
)

func classifyNotification(data []byte) notificationKind {
	switch {
	case bytes.Equal(data, prefixInitAck):
		return notificationInitAck
	case bytes.HasPrefix(data, prefixPause):
		return notificationPause
	case bytes.HasPrefix(data, prefixReady):
		return notificationReady
	// Completion frames match on the high nibble of the third byte:
	// the wire prefix is 5a060, half a byte short of a full octet.
	case len(data) >= 3 && bytes.HasPrefix(data, prefixCompleted) && data[2]>>4 == 0:
		return notificationCompleted
	case bytes.HasPrefix(data, prefixBlackLevel):
		return notificationBlackLevelAck
	case bytes.HasPrefix(data, []byte{0x5a, 0x02}):
		return notificationStatus
	case bytes.HasPrefix(data, prefixJobStartAck), bytes.HasPrefix(data, prefixLineAck):
		return notificationJobStartAck
	default:
		return notificationUnknown
	}
}

// Status is a decoded 0x5a02 battery/charging notification.
type Status struct {
	BatteryPercent int
	Charging       bool
}

// parseStatus decodes a `5a02 BB .. CC ..` notification: BB is battery
// 0..0x64 mapped to 0..100%, and the byte at offset 4 being 0x01
// means charging.
func parseStatus(data []byte) (Status, error) {
	if len(data) < 5 || !bytes.HasPrefix(data, []byte{0x5a, 0x02}) {
		return Status{}, errors.New("ble: malformed status notification")
	}
	raw := int(data[2])
	if raw > 0x64 {
		raw = 0x64
	}
	return Status{
		BatteryPercent: raw * 100 / 0x64,
		Charging:       data[4] == 0x01,
	}, nil
}

// headerFrame builds the `5a04 <n+1:u16be> 0000` control frame that
// precedes a line stream.
func headerFrame(lineCount int) []byte {
	return controlFrame(lineCount, 0x00, 0x00)
}

// footerFrame builds the `5a04 <n+1:u16be> 0100` control frame that
// follows a line stream.
func footerFrame(lineCount int) []byte {
	return controlFrame(lineCount, 0x01, 0x00)
}

func controlFrame(lineCount int, b3, b4 byte) []byte {
	frame := make([]byte, 6)
	frame[0] = 0x5a
	frame[1] = 0x04
	binary.BigEndian.PutUint16(frame[2:4], uint16(lineCount+1))
	frame[4] = b3
	frame[5] = b4
	return frame
}

// frameLine wraps (or rewrites) a packed payload into the `0x55 <seq:u16be>
// payload 0x00` framing with the given zero-based sequence number: if
// payload is already framed but disagrees with seq, the sequence
// number is corrected in place; naked payloads are wrapped fresh.
func frameLine(payload []byte, seq uint16) []byte {
	if len(payload) >= 4 && payload[0] == 0x55 && payload[len(payload)-1] == 0x00 {
		out := make([]byte, len(payload))
		copy(out, payload)
		binary.BigEndian.PutUint16(out[1:3], seq)
		return out
	}
	out := make([]byte, 0, len(payload)+4)
	out = append(out, 0x55)
	out = append(out, byte(seq>>8), byte(seq))
	out = append(out, payload...)
	out = append(out, 0x00)
	return out
}

// FrameLines applies frameLine across an entire line list, guaranteeing
// monotonic, zero-based sequence numbers regardless of upstream
// framing.
func FrameLines(lines [][]byte) [][]byte {
	framed := make([][]byte, len(lines))
	for i, l := range lines {
		framed[i] = frameLine(l, uint16(i))
	}
	return framed
}

// ExtractSequenceNumber returns the sequence number embedded in a
// framed line, for tests and diagnostics.
func ExtractSequenceNumber(framed []byte) (uint16, bool) {
	if len(framed) < 4 || framed[0] != 0x55 || framed[len(framed)-1] != 0x00 {
		return 0, false
	}
	return binary.BigEndian.Uint16(framed[1:3]), true
}
