package protocol

import (
	"bytes"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	// PayloadSize is the fixed size of the payload area of every envelope.
	PayloadSize = 2048

	// EnvelopeSize is the number of bytes one envelope occupies on the wire.
	EnvelopeSize = 4 + PayloadSize

	// TextCapacity is the longest status, error or content string a payload
	// can carry, leaving room for the terminator.
	TextCapacity = PayloadSize - 1
)

// Kind discriminates the payload carried by an envelope. The numeric values
// are part of the wire contract.
type Kind uint32

const (
	KindRegisterNode Kind = iota
	KindRegisterAck
	KindClientCommand
	KindCoordinatorResponse
	KindNodeCommand
	KindNodeResponse
	KindError
	KindFileListPush
)

var kindNames = map[Kind]string{
	KindRegisterNode:        "RegisterNode",
	KindRegisterAck:         "RegisterAck",
	KindClientCommand:       "ClientCommand",
	KindCoordinatorResponse: "CoordinatorResponse",
	KindNodeCommand:         "NodeCommand",
	KindNodeResponse:        "NodeResponse",
	KindError:               "Error",
	KindFileListPush:        "FileListPush",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// IsSuccess reports whether the kind is a non-error reply.
func (k Kind) IsSuccess() bool {
	return k == KindCoordinatorResponse || k == KindNodeResponse || k == KindRegisterAck
}

// Envelope is one message on the wire.
type Envelope struct {
	Kind    Kind
	Payload [PayloadSize]byte
}

type wireEnvelope struct {
	Kind    uint32
	Payload [PayloadSize]byte
}

// Marshal encodes the envelope into exactly EnvelopeSize bytes.
func Marshal(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(EnvelopeSize)
	w := wireEnvelope{Kind: uint32(env.Kind), Payload: env.Payload}
	if _, err := xdr.Marshal(&buf, &w); err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Kind, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes one envelope from data, which must hold at least
// EnvelopeSize bytes.
func Unmarshal(data []byte) (Envelope, error) {
	if len(data) < EnvelopeSize {
		return Envelope{}, ErrPeerClosed
	}
	var w wireEnvelope
	if _, err := xdr.Unmarshal(bytes.NewReader(data[:EnvelopeSize]), &w); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return Envelope{Kind: Kind(w.Kind), Payload: w.Payload}, nil
}

// ErrFieldTooLong is returned when a value does not fit its fixed-size field.
var ErrFieldTooLong = errors.New("field exceeds capacity")

// FieldError names the field that failed the length check.
type FieldError struct {
	Field    string
	Length   int
	Capacity int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %d bytes does not fit in %d", e.Field, e.Length, e.Capacity-1)
}

func (e *FieldError) Unwrap() error { return ErrFieldTooLong }

// putField copies value into dst, leaving at least one trailing zero byte.
func putField(dst []byte, field, value string) error {
	if len(value) >= len(dst) {
		return &FieldError{Field: field, Length: len(value), Capacity: len(dst)}
	}
	n := copy(dst, value)
	clear(dst[n:])
	return nil
}

// getField returns the bytes of src up to the first zero byte.
func getField(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// encodePayload XDR-encodes v into the payload area of env.
func encodePayload(env *Envelope, v any) error {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", env.Kind, err)
	}
	if buf.Len() > PayloadSize {
		return &FieldError{Field: "payload", Length: buf.Len(), Capacity: PayloadSize + 1}
	}
	copy(env.Payload[:], buf.Bytes())
	return nil
}

func decodePayload(env Envelope, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(env.Payload[:]), v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}
	return nil
}
