package ipp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func testPrinter() PrinterConfig {
	return PrinterConfig{
		URI:  "ipp://printer.local:6310/",
		Name: "Thermal Printer LX-D2 57mm 203 DPI",
		UUID: "urn:uuid:884d7c0a-f449-45a7-8bbe-095e2943d313",
	}
}

type recordingSink struct {
	jobID uint16
	doc   []byte
	calls int
	err   error
}

func (s *recordingSink) SubmitPrintJob(jobID uint16, document []byte) error {
	s.jobID = jobID
	s.doc = document
	s.calls++
	return s.err
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

var errBLEDown = errors.New("printer unreachable")

func TestHandleGetPrinterAttributes(t *testing.T) {
	h := NewHandler(testPrinter(), nil, zerolog.Nop())

	req := NewMessage(OpGetPrinterAttributes, 1)
	req.AddString(GroupOperation, "attributes-charset", TagCharset, "utf-8")
	req.AddString(GroupOperation, "attributes-natural-language", TagNaturalLang, "en")

	resp := h.Handle(req, nil)

	if resp.Code != StatusOK {
		t.Fatalf("status = %#x, want OK", resp.Code)
	}
	if resp.RequestID != 1 {
		t.Fatalf("request-id = %d, want 1", resp.RequestID)
	}
	if got := resp.String(GroupPrinter, "printer-uri-supported"); got != testPrinter().URI {
		t.Fatalf("printer-uri-supported = %q", got)
	}
	if got := resp.Values(GroupPrinter, "media-supported"); len(got) != 1 || string(got[0]) != "roll_57mm" {
		t.Fatalf("media-supported = %v", got)
	}
}

func TestHandlePrintJobEmptyBody(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(testPrinter(), sink, zerolog.Nop())

	req := NewMessage(OpPrintJob, 2)
	resp := h.Handle(req, nil)

	if resp.Code != StatusOK {
		t.Fatalf("status = %#x, want OK", resp.Code)
	}
	jobIDValues := resp.Values(GroupJob, "job-id")
	if len(jobIDValues) != 1 {
		t.Fatalf("expected one job-id value")
	}
	stateValues := resp.Values(GroupJob, "job-state")
	if len(stateValues) != 1 {
		t.Fatalf("expected one job-state value")
	}
	reasons := resp.Values(GroupJob, "job-state-reasons")
	found := false
	for _, r := range reasons {
		if string(r) == "job-incoming" {
			found = true
		}
	}
	if !found {
		t.Fatalf("job-state-reasons missing job-incoming: %v", reasons)
	}
	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
	if len(sink.doc) != 0 {
		t.Fatalf("expected zero-page/empty document, got %d bytes", len(sink.doc))
	}
}

func TestHandlePrintJobSinkErrorStillRespondsOK(t *testing.T) {
	sink := &recordingSink{err: errBLEDown}
	h := NewHandler(testPrinter(), sink, zerolog.Nop())

	resp := h.Handle(NewMessage(OpPrintJob, 3), []byte("%PDF-1.4"))

	if resp.Code != StatusOK {
		t.Fatalf("status = %#x, want OK even when the sink fails", resp.Code)
	}
	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
}

func TestHandleSpuriousOperation(t *testing.T) {
	h := NewHandler(testPrinter(), nil, zerolog.Nop())
	req := NewMessage(opSpurious, 9)
	resp := h.Handle(req, nil)
	if resp.Code != StatusServerErrorInternalError {
		t.Fatalf("status = %#x, want internal-error", resp.Code)
	}
}

func TestHandleUnknownOperation(t *testing.T) {
	h := NewHandler(testPrinter(), nil, zerolog.Nop())
	req := NewMessage(0x9999, 4)
	resp := h.Handle(req, nil)
	if resp.Code != StatusServerErrorOperationNotSupported {
		t.Fatalf("status = %#x, want operation-not-supported", resp.Code)
	}
}

func TestHandleCancelJobAlwaysOK(t *testing.T) {
	h := NewHandler(testPrinter(), nil, zerolog.Nop())
	req := NewMessage(OpCancelJob, 5)
	resp := h.Handle(req, nil)
	if resp.Code != StatusOK {
		t.Fatalf("status = %#x, want OK", resp.Code)
	}
}

func TestHandleGetJobAttributesSyntheticCompleted(t *testing.T) {
	h := NewHandler(testPrinter(), nil, zerolog.Nop())
	req := NewMessage(OpGetJobAttributes, 6)
	resp := h.Handle(req, nil)
	states := resp.Values(GroupJob, "job-state")
	if len(states) != 1 {
		t.Fatalf("expected one job-state")
	}
	if !bytes.Equal(states[0], encodeInt32(int32(JobCompleted))) {
		t.Fatalf("job-state = %v, want completed", states[0])
	}
}
