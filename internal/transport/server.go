// Package transport implements the one-shot HTTP/1.1 front end that
// carries IPP requests and responses. It is deliberately not built on
// net/http: IPP needs explicit control over chunked-body reassembly,
// 100-continue, and connection-per-request framing that would
// otherwise be hidden behind net/http's request body reader.
package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/ipp"
)

// IPPHandler is the subset of ipp.Handler the transport depends on.
type IPPHandler interface {
	Handle(msg *ipp.Message, document []byte) *ipp.Message
}

// Server is the one-shot HTTP/IPP front end: one handler goroutine per
// accepted connection, connection closed after the response is sent.
type Server struct {
	listenAddr string
	handler    IPPHandler
	ppdPath    string
	log        zerolog.Logger
}

// NewServer builds a Server. ppdPath, if non-empty, is served verbatim
// for any GET request whose path ends in ".ppd".
func NewServer(listenAddr string, handler IPPHandler, ppdPath string, log zerolog.Logger) *Server {
	return &Server{
		listenAddr: listenAddr,
		handler:    handler,
		ppdPath:    ppdPath,
		log:        log.With().Str("component", "transport").Logger(),
	}
}

// ListenAndServe accepts connections until the listener is closed or
// an unrecoverable accept error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.listenAddr, err)
	}
	defer ln.Close()

	s.log.Info().Str("addr", s.listenAddr).Msg("IPP transport listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("transport: accept: %w", err)
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	requestLine, err := readLine(r)
	if err != nil {
		if err != io.EOF {
			s.log.Debug().Err(err).Msg("failed to read request line")
		}
		return
	}

	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) != 3 {
		s.writeSimple(conn, 400, "text/plain", []byte("Bad Request"))
		return
	}
	method, path := parts[0], parts[1]

	headers, err := readHeaders(r)
	if err != nil {
		s.log.Debug().Err(err).Msg("failed to read headers")
		return
	}

	switch method {
	case "GET":
		s.handleGet(conn, path)
	case "POST":
		s.handlePost(conn, r, headers)
	default:
		s.writeSimple(conn, 405, "text/plain", []byte("Method Not Allowed"))
	}
}

func (s *Server) handleGet(conn net.Conn, path string) {
	if path == "/" {
		s.writeSimple(conn, 200, "text/plain", []byte("IPP server is running ..."))
		return
	}
	if strings.HasSuffix(strings.ToLower(path), ".ppd") && s.ppdPath != "" {
		data, err := os.ReadFile(s.ppdPath)
		if err != nil {
			s.log.Warn().Err(err).Str("path", s.ppdPath).Msg("failed to read PPD file")
			s.writeSimple(conn, 404, "text/plain", []byte("Not Found"))
			return
		}
		s.writeSimple(conn, 200, "text/plain", bytes.ToValidUTF8(data, []byte("�")))
		return
	}
	s.writeSimple(conn, 404, "text/plain", []byte("Not Found"))
}

func (s *Server) handlePost(conn net.Conn, r *bufio.Reader, headers map[string]string) {
	if strings.Contains(strings.ToLower(headers["expect"]), "100-continue") {
		_, _ = conn.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
	}

	var body []byte
	var err error
	if strings.Contains(strings.ToLower(headers["transfer-encoding"]), "chunked") {
		body, err = decodeChunkedBody(r)
	} else if cl, ok := headers["content-length"]; ok {
		var n int
		n, err = strconv.Atoi(strings.TrimSpace(cl))
		if err == nil {
			buf := make([]byte, n)
			_, err = io.ReadFull(r, buf)
			body = buf
		}
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read request body")
		s.writeSimple(conn, 400, "text/plain", []byte("Bad Request"))
		return
	}

	msg, msgLen, err := ipp.DecodeWithLength(bytes.NewReader(body))
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to decode IPP message")
		s.writeSimple(conn, 400, "text/plain", []byte("Bad Request"))
		return
	}

	var document []byte
	if msgLen < len(body) {
		document = body[msgLen:]
	}

	resp := s.handler.Handle(msg, document)

	var respBuf bytes.Buffer
	if err := resp.Encode(&respBuf); err != nil {
		s.log.Error().Err(err).Msg("failed to encode IPP response")
		s.writeSimple(conn, 500, "text/plain", []byte("Internal Server Error"))
		return
	}
	s.writeSimple(conn, 200, "application/ipp", respBuf.Bytes())
}

func (s *Server) writeSimple(conn net.Conn, status int, contentType string, body []byte) {
	statusText := httpStatusText(status)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, statusText)
	fmt.Fprintf(&buf, "Server: ipp-server\r\n")
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(http1Date))
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(&buf, "Connection: close\r\n\r\n")
	buf.Write(body)
	_, _ = conn.Write(buf.Bytes())
}

const http1Date = "Mon, 02 Jan 2006 15:04:05 GMT"

func httpStatusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	default:
		return "Internal Server Error"
	}
}

func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		headers[key] = val
	}
}
