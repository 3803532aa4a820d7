package ble

import (
	"context"
	"encoding/hex"
	"testing"
	"time"
)

func zeroPacing() Pacing {
	return Pacing{}
}

// recordingWriter is a lineWriter double that records every write.
type recordingWriter struct {
	writes [][]byte
}

func (r *recordingWriter) WriteWithoutResponse(data []byte) (int, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	r.writes = append(r.writes, cp)
	return len(data), nil
}

func isHeaderOrFooter(frame []byte) bool {
	return len(frame) >= 2 && frame[0] == 0x5a && frame[1] == 0x04
}

func TestStreamWritesHeaderLinesFooterInOrder(t *testing.T) {
	w := &recordingWriter{}
	sig := newSignals()
	s := newStreamer(w, sig, zeroPacing())
	s.sleep = func(time.Duration) {}

	lines := FrameLines([][]byte{{0x01, 0x02}, {0x03, 0x04}, {0x05, 0x06}})

	if err := s.Stream(context.Background(), lines); err != nil {
		t.Fatalf("stream: %v", err)
	}

	if len(w.writes) != 5 { // header + 3 lines + footer
		t.Fatalf("write count = %d, want 5", len(w.writes))
	}
	if !isHeaderOrFooter(w.writes[0]) {
		t.Fatalf("first write is not a header frame: % x", w.writes[0])
	}
	if !isHeaderOrFooter(w.writes[4]) {
		t.Fatalf("last write is not a footer frame: % x", w.writes[4])
	}
	for i, want := range lines {
		if string(w.writes[i+1]) != string(want) {
			t.Fatalf("line %d = % x, want % x", i, w.writes[i+1], want)
		}
	}
}

func TestStreamHonorsPauseRequiredBeforeEachLine(t *testing.T) {
	w := &recordingWriter{}
	sig := newSignals()
	var slept []time.Duration
	s := newStreamer(w, sig, Pacing{PauseHonor: 590 * time.Millisecond})
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	sig.handle([]byte{0x5a, 0x07, 0x14})

	lines := FrameLines([][]byte{{0xaa}})
	if err := s.Stream(context.Background(), lines); err != nil {
		t.Fatalf("stream: %v", err)
	}

	found := false
	for _, d := range slept {
		if d == 590*time.Millisecond {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 590ms pause-honor sleep, got %v", slept)
	}
}

func TestFrameLinesAreSequentialFromZero(t *testing.T) {
	lines := make([][]byte, 5)
	for i := range lines {
		lines[i] = []byte{byte(i), byte(i), byte(i)}
	}
	framed := FrameLines(lines)
	for i, f := range framed {
		seq, ok := ExtractSequenceNumber(f)
		if !ok {
			t.Fatalf("line %d not framed: % x", i, f)
		}
		if int(seq) != i {
			t.Fatalf("line %d sequence = %d, want %d", i, seq, i)
		}
	}
}

func TestFrameLinesCorrectsDisagreeingSequenceNumber(t *testing.T) {
	payload := make([]byte, 0, 4)
	payload = append(payload, 0x55, 0x00, 0x63)
	payload = append(payload, 0x00)
	framed := FrameLines([][]byte{payload})
	seq, ok := ExtractSequenceNumber(framed[0])
	if !ok || seq != 0 {
		t.Fatalf("expected corrected sequence 0, got %d ok=%v", seq, ok)
	}
}

func TestSingleLineControlFrames(t *testing.T) {
	payloadHex := "ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00"
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	framed := FrameLines([][]byte{payload})
	seq, ok := ExtractSequenceNumber(framed[0])
	if !ok || seq != 0 {
		t.Fatalf("expected sequence 0, got %d ok=%v", seq, ok)
	}

	header := headerFrame(1)
	footer := footerFrame(1)
	if string(header) != string([]byte{0x5a, 0x04, 0x00, 0x02, 0x00, 0x00}) {
		t.Fatalf("header = % x, want 5a04 0002 0000", header)
	}
	if string(footer) != string([]byte{0x5a, 0x04, 0x00, 0x02, 0x01, 0x00}) {
		t.Fatalf("footer = % x, want 5a04 0002 0100", footer)
	}
}
