// Package ipp implements the binary IPP/1.1 wire protocol: attribute
// encoding and decoding, and operation dispatch for a minimal printer
// that only needs to satisfy a driverless OS print dialog.
package ipp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Group identifies one of the IPP attribute-group delimiter tags.
type Group byte

const (
	GroupOperation   Group = 0x01
	GroupJob         Group = 0x02
	groupEnd         Group = 0x03
	GroupPrinter     Group = 0x04
	GroupUnsupported Group = 0x05
)

// groupOrder is the canonical encode order: operation, job, printer,
// unsupported.
var groupOrder = []Group{GroupOperation, GroupJob, GroupPrinter, GroupUnsupported}

// Value tags, per RFC 8010.
const (
	TagInteger          byte = 0x21
	TagBoolean          byte = 0x22
	TagEnum             byte = 0x23
	TagOctetStr         byte = 0x30
	TagDateTime         byte = 0x31
	TagResolution       byte = 0x32
	TagRangeOfInt       byte = 0x33
	TagTextLang         byte = 0x35
	TagNameLang         byte = 0x36
	TagTextWoLang       byte = 0x41
	TagNameWoLang       byte = 0x42
	TagKeyword          byte = 0x44
	TagURI              byte = 0x45
	TagURIScheme        byte = 0x46
	TagCharset          byte = 0x47
	TagNaturalLang      byte = 0x48
	TagMimeMedia        byte = 0x49
	TagUnsupportedValue byte = 0x10
	TagUnknown          byte = 0x12
	TagNoValue          byte = 0x13
)

// Status codes used by the operation handler.
const (
	StatusOK                               uint16 = 0x0000
	StatusClientErrorNotPossible           uint16 = 0x0409
	StatusServerErrorInternalError         uint16 = 0x0500
	StatusServerErrorOperationNotSupported uint16 = 0x0501
)

// attrKey identifies one attribute within a group: its name and the
// value tag shared by every value in the list.
type attrKey struct {
	group Group
	name  string
	tag   byte
}

// Message is a decoded or to-be-encoded IPP message: the fixed header
// plus an ordered multimap of attributes, keyed by (group, name, tag).
//
// Values are stored as raw encoded payload bytes — the codec does not
// interpret them semantically beyond what's needed to read/write the
// wire format losslessly.
type Message struct {
	VersionMajor byte
	VersionMinor byte
	Code         uint16 // operation-id on request, status-code on response
	RequestID    uint32

	// keys preserves first-insertion order within each group so that
	// Get-Jobs-style iteration is deterministic; attrs holds the values.
	keys  []attrKey
	attrs map[attrKey][][]byte
}

// NewMessage creates an empty message with the given code/request-id.
func NewMessage(code uint16, requestID uint32) *Message {
	return &Message{
		VersionMajor: 1,
		VersionMinor: 1,
		Code:         code,
		RequestID:    requestID,
		attrs:        make(map[attrKey][][]byte),
	}
}

// Add appends one raw value to the named attribute in the given group.
// A second Add with the same (group, name, tag) appends an additional
// value under the same key (IPP "1setOf"); these are emitted on the
// wire as a continuation entry with zero-length name.
func (m *Message) Add(group Group, name string, tag byte, value []byte) {
	if m.attrs == nil {
		m.attrs = make(map[attrKey][][]byte)
	}
	k := attrKey{group, name, tag}
	if _, ok := m.attrs[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.attrs[k] = append(m.attrs[k], value)
}

// AddInteger, AddBoolean, AddString are convenience wrappers for the
// common tagged value shapes used throughout the operation handler;
// enums go through AddInteger with TagEnum.
func (m *Message) AddInteger(group Group, name string, tag byte, v int32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	m.Add(group, name, tag, buf)
}

func (m *Message) AddBoolean(group Group, name string, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	m.Add(group, name, TagBoolean, []byte{b})
}

func (m *Message) AddString(group Group, name string, tag byte, v string) {
	m.Add(group, name, tag, []byte(v))
}

// Values returns the raw value list for (group, name), regardless of
// tag, or nil if absent. Used by handlers reading an incoming request.
func (m *Message) Values(group Group, name string) [][]byte {
	for k, v := range m.attrs {
		if k.group == group && k.name == name {
			return v
		}
	}
	return nil
}

// String returns the first string value for (group, name), or "".
func (m *Message) String(group Group, name string) string {
	if v := m.Values(group, name); len(v) > 0 {
		return string(v[0])
	}
	return ""
}

// Decode parses a full IPP message from r. It does not consume bytes
// beyond the terminating group-end tag (0x03); any trailing bytes in
// r (the attached document, for Print-Job) are left for the caller to
// read.
func Decode(r io.Reader) (*Message, error) {
	m, _, err := decode(r)
	return m, err
}

// DecodeWithLength decodes exactly as Decode does, additionally
// reporting how many bytes of r's backing buffer the IPP message
// occupied so the caller can slice off a trailing document payload.
func DecodeWithLength(r *bytes.Reader) (*Message, int, error) {
	before := r.Len()
	m, _, err := decode(r)
	if err != nil {
		return nil, 0, err
	}
	consumed := before - r.Len()
	return m, consumed, nil
}

func decode(r io.Reader) (*Message, int, error) {
	br := newByteReader(r)

	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, 0, fmt.Errorf("ipp: read header: %w", err)
	}

	m := &Message{
		VersionMajor: hdr[0],
		VersionMinor: hdr[1],
		Code:         binary.BigEndian.Uint16(hdr[2:4]),
		RequestID:    binary.BigEndian.Uint32(hdr[4:8]),
		attrs:        make(map[attrKey][][]byte),
	}

	var currentGroup Group
	haveGroup := false
	lastName := map[Group]string{}

	for {
		tagByte, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, 0, errors.New("ipp: truncated message: missing end-of-attributes tag")
			}
			return nil, 0, err
		}

		if tagByte&0xF0 == 0x00 {
			// Section delimiter.
			if tagByte == byte(groupEnd) {
				return m, 0, nil
			}
			currentGroup = Group(tagByte)
			haveGroup = true
			continue
		}

		if !haveGroup {
			return nil, 0, errors.New("ipp: value attribute before any group delimiter")
		}

		nameLen, err := readUint16(br)
		if err != nil {
			return nil, 0, fmt.Errorf("ipp: read name length: %w", err)
		}

		var name string
		if nameLen == 0 {
			name = lastName[currentGroup]
			if name == "" {
				return nil, 0, errors.New("ipp: zero-length name with no preceding attribute in group")
			}
		} else {
			nameBuf := make([]byte, nameLen)
			if _, err := io.ReadFull(br, nameBuf); err != nil {
				return nil, 0, fmt.Errorf("ipp: read name: %w", err)
			}
			name = string(nameBuf)
			lastName[currentGroup] = name
		}

		valueLen, err := readUint16(br)
		if err != nil {
			return nil, 0, fmt.Errorf("ipp: read value length: %w", err)
		}
		valueBuf := make([]byte, valueLen)
		if valueLen > 0 {
			if _, err := io.ReadFull(br, valueBuf); err != nil {
				return nil, 0, fmt.Errorf("ipp: read value: %w", err)
			}
		}

		m.Add(currentGroup, name, tagByte, valueBuf)
	}
}

// Encode writes m to w: version, code, request-id, then each
// non-empty group in ascending tag order, each group tag emitted
// once, attribute name emitted on the first value of a key and
// omitted (zero length) on subsequent values of the same key.
func (m *Message) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	buf.WriteByte(m.VersionMajor)
	buf.WriteByte(m.VersionMinor)
	writeUint16(buf, m.Code)
	writeUint32(buf, m.RequestID)

	for _, group := range groupOrder {
		keysInGroup := make([]attrKey, 0)
		for _, k := range m.keys {
			if k.group == group {
				keysInGroup = append(keysInGroup, k)
			}
		}
		if len(keysInGroup) == 0 {
			continue
		}
		buf.WriteByte(byte(group))
		for _, k := range keysInGroup {
			values := m.attrs[k]
			for i, v := range values {
				buf.WriteByte(k.tag)
				if i == 0 {
					writeUint16(buf, uint16(len(k.name)))
					buf.WriteString(k.name)
				} else {
					writeUint16(buf, 0)
				}
				writeUint16(buf, uint16(len(v)))
				buf.Write(v)
			}
		}
	}
	buf.WriteByte(byte(groupEnd))

	_, err := w.Write(buf.Bytes())
	return err
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// byteReader adapts an io.Reader to io.ByteReader without requiring
// the caller to pass a *bufio.Reader; Decode only ever reads forward,
// never more than one byte at a time for tags.
type byteReader struct {
	io.Reader
	one [1]byte
}

func newByteReader(r io.Reader) *byteReader {
	if br, ok := r.(*byteReader); ok {
		return br
	}
	return &byteReader{Reader: r}
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.Reader, b.one[:]); err != nil {
		return 0, err
	}
	return b.one[0], nil
}

func (b *byteReader) Read(p []byte) (int, error) {
	return b.Reader.Read(p)
}
