package ipp

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Operation codes dispatched by Handler.
const (
	OpPrintJob             uint16 = 0x0002
	OpValidateJob          uint16 = 0x0004
	OpCancelJob            uint16 = 0x0008
	OpGetJobAttributes     uint16 = 0x0009
	OpGetJobs              uint16 = 0x000A
	OpGetPrinterAttributes uint16 = 0x000B
	OpCupsGetDefault       uint16 = 0x4001
	OpCupsListAllPrinters  uint16 = 0x4002
	opSpurious             uint16 = 0x0D0A // the bytes "\r\n" misread as an op code
)

// PrinterConfig is the static, configured identity of the printer
// advertised over IPP.
type PrinterConfig struct {
	URI  string
	Name string
	UUID string
}

// JobSink receives the document bytes attached to a Print-Job request
// and returns once the job has been rasterized and transmitted (or
// failed). The handler blocks on it before writing its response, so
// the connection stays open for the duration of the print.
type JobSink interface {
	SubmitPrintJob(jobID uint16, document []byte) error
}

// Handler dispatches decoded IPP requests to responses, implementing
// the minimal operation set a driverless OS print dialog needs.
type Handler struct {
	printer PrinterConfig
	sink    JobSink
	jobIDs  *jobIDSource
	log     zerolog.Logger
}

// NewHandler builds a Handler. sink may be nil only in tests that
// don't exercise Print-Job.
func NewHandler(printer PrinterConfig, sink JobSink, log zerolog.Logger) *Handler {
	return &Handler{
		printer: printer,
		sink:    sink,
		jobIDs:  newJobIDSource(),
		log:     log.With().Str("component", "ipp-handler").Logger(),
	}
}

// Handle dispatches a decoded request to its response. document holds
// whatever bytes followed the IPP message in the request body (the
// attached file, for Print-Job).
func (h *Handler) Handle(msg *Message, document []byte) *Message {
	switch msg.Code {
	case OpPrintJob:
		return h.handlePrintJob(msg, document)
	case OpValidateJob:
		return h.minimalOK(msg.RequestID)
	case OpCancelJob:
		return h.handleCancelJob(msg.RequestID)
	case OpGetJobAttributes:
		return h.handleGetJobAttributes(msg.RequestID)
	case OpGetJobs:
		return h.minimalOK(msg.RequestID)
	case OpGetPrinterAttributes, OpCupsGetDefault, OpCupsListAllPrinters:
		return h.handleGetPrinterAttributes(msg.RequestID)
	case opSpurious:
		h.log.Error().Msg("spurious operation code 0x0D0A: transport framing misread")
		return h.errorResponse(msg.RequestID, StatusServerErrorInternalError)
	default:
		h.log.Warn().Uint16("operation", msg.Code).Msg("unsupported IPP operation")
		return h.errorResponse(msg.RequestID, StatusServerErrorOperationNotSupported)
	}
}

func (h *Handler) baseResponse(requestID uint32, status uint16) *Message {
	m := NewMessage(status, requestID)
	m.AddString(GroupOperation, "attributes-charset", TagCharset, "utf-8")
	m.AddString(GroupOperation, "attributes-natural-language", TagNaturalLang, "en")
	return m
}

func (h *Handler) minimalOK(requestID uint32) *Message {
	return h.baseResponse(requestID, StatusOK)
}

func (h *Handler) errorResponse(requestID uint32, status uint16) *Message {
	return h.baseResponse(requestID, status)
}

func (h *Handler) handlePrintJob(msg *Message, document []byte) *Message {
	jobID := h.jobIDs.Next()
	h.log.Info().Uint16("job_id", jobID).Int("document_bytes", len(document)).Msg("Print-Job")

	if h.sink != nil {
		// The response below still reports pending/job-incoming even on
		// failure; the printer has no job status a client could poll, so
		// failures surface only in the log.
		if err := h.sink.SubmitPrintJob(jobID, document); err != nil {
			h.log.Error().Uint16("job_id", jobID).Err(err).Msg("print job failed")
		}
	}

	resp := h.minimalOK(msg.RequestID)
	resp.AddString(GroupJob, "job-uri", TagURI, fmt.Sprintf("%sjob/%d", h.printer.URI, jobID))
	resp.AddInteger(GroupJob, "job-id", TagInteger, int32(jobID))
	resp.AddInteger(GroupJob, "job-state", TagEnum, int32(JobPending))
	resp.Add(GroupJob, "job-state-reasons", TagKeyword, []byte("job-incoming"))
	resp.Add(GroupJob, "job-state-reasons", TagKeyword, []byte("job-data-insufficient"))
	resp.AddString(GroupJob, "job-printer-uri", TagURI, h.printer.URI)
	resp.AddString(GroupJob, "job-name", TagNameWoLang, fmt.Sprintf("Print job %d", jobID))
	resp.AddString(GroupJob, "job-originating-user-name", TagNameWoLang, "job-originating-user-name")
	resp.AddInteger(GroupJob, "time-at-creation", TagInteger, 0)
	resp.AddInteger(GroupJob, "time-at-processing", TagInteger, 0)
	resp.AddInteger(GroupJob, "time-at-completed", TagInteger, 0)
	resp.AddInteger(GroupJob, "job-printer-up-time", TagInteger, h.upTime())
	return resp
}

func (h *Handler) handleCancelJob(requestID uint32) *Message {
	// Always OK regardless of job state: the printer protocol has no
	// mid-print abort command, so there is nothing to cancel.
	return h.minimalOK(requestID)
}

func (h *Handler) handleGetJobAttributes(requestID uint32) *Message {
	resp := h.minimalOK(requestID)
	resp.AddInteger(GroupJob, "job-state", TagEnum, int32(JobCompleted))
	resp.Add(GroupJob, "job-state-reasons", TagKeyword, []byte("none"))
	return resp
}

func (h *Handler) handleGetPrinterAttributes(requestID uint32) *Message {
	resp := h.minimalOK(requestID)
	p := h.printer

	resp.AddString(GroupPrinter, "printer-uri-supported", TagURI, p.URI)
	resp.Add(GroupPrinter, "uri-authentication-supported", TagKeyword, []byte("none"))
	resp.Add(GroupPrinter, "uri-security-supported", TagKeyword, []byte("none"))
	resp.AddString(GroupPrinter, "printer-name", TagNameWoLang, p.Name)
	resp.AddString(GroupPrinter, "printer-info", TagTextWoLang, p.Name)
	resp.AddString(GroupPrinter, "printer-make-and-model", TagTextWoLang, p.Name)
	resp.AddInteger(GroupPrinter, "printer-state", TagEnum, 3) // idle
	resp.Add(GroupPrinter, "printer-state-reasons", TagKeyword, []byte("none"))
	resp.Add(GroupPrinter, "ipp-versions-supported", TagKeyword, []byte("1.1"))

	ops := []uint16{OpPrintJob, OpValidateJob, OpCancelJob, OpGetJobAttributes, OpGetPrinterAttributes}
	for _, op := range ops {
		resp.AddInteger(GroupPrinter, "operations-supported", TagEnum, int32(op))
	}

	resp.AddBoolean(GroupPrinter, "multiple-document-jobs-supported", false)
	resp.Add(GroupPrinter, "charset-configured", TagCharset, []byte("utf-8"))
	resp.Add(GroupPrinter, "charset-supported", TagCharset, []byte("utf-8"))
	resp.Add(GroupPrinter, "natural-language-configured", TagNaturalLang, []byte("en"))
	resp.Add(GroupPrinter, "generated-natural-language-supported", TagNaturalLang, []byte("en"))
	resp.Add(GroupPrinter, "document-format-default", TagMimeMedia, []byte("application/pdf"))
	resp.Add(GroupPrinter, "document-format-supported", TagMimeMedia, []byte("application/pdf"))
	resp.AddBoolean(GroupPrinter, "printer-is-accepting-jobs", true)
	resp.AddInteger(GroupPrinter, "queued-job-count", TagInteger, 0)
	resp.Add(GroupPrinter, "pdl-override-supported", TagKeyword, []byte("not-attempted"))
	resp.AddInteger(GroupPrinter, "printer-up-time", TagInteger, h.upTime())
	resp.Add(GroupPrinter, "compression-supported", TagKeyword, []byte("none"))
	resp.Add(GroupPrinter, "media-supported", TagKeyword, []byte("roll_57mm"))
	resp.Add(GroupPrinter, "media-default", TagKeyword, []byte("roll_57mm"))
	resp.AddString(GroupPrinter, "printer-uuid", TagURI, p.UUID)

	return resp
}

func (h *Handler) upTime() int32 {
	return int32(time.Now().Unix())
}
