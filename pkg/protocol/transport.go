package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var (
	// ErrPeerClosed is returned when fewer than EnvelopeSize bytes arrive.
	ErrPeerClosed = errors.New("peer closed connection")

	ErrDial    = errors.New("dial failed")
	ErrSend    = errors.New("send failed")
	ErrReceive = errors.New("receive failed")

	ErrUnexpectedKind = errors.New("unexpected message kind")
)

// UnexpectedKindError reports an envelope of the wrong kind.
type UnexpectedKindError struct {
	Want Kind
	Got  Kind
}

func (e *UnexpectedKindError) Error() string {
	return fmt.Sprintf("unexpected message kind %s, want %s", e.Got, e.Want)
}

func (e *UnexpectedKindError) Is(target error) bool { return target == ErrUnexpectedKind }

// ReadEnvelope reads exactly one envelope from r.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	buf := make([]byte, EnvelopeSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}
	return Unmarshal(buf)
}

// WriteEnvelope writes exactly one envelope to w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Expect reads one envelope and checks its kind.
func Expect(r io.Reader, kind Kind) (Envelope, error) {
	env, err := ReadEnvelope(r)
	if err != nil {
		return Envelope{}, err
	}
	if env.Kind != kind {
		return env, &UnexpectedKindError{Want: kind, Got: env.Kind}
	}
	return env, nil
}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Exchange dials addr, sends req, reads one reply and closes the connection.
// Failures wrap ErrDial, ErrSend or ErrReceive. An ioTimeout of zero means no
// deadline. Cancelling ctx aborts a blocked exchange.
func Exchange(ctx context.Context, d Dialer, addr string, req Envelope, ioTimeout time.Duration) (Envelope, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrDial, addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if ioTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
			return Envelope{}, fmt.Errorf("%w: %s: %w", ErrSend, addr, err)
		}
	}

	if err := WriteEnvelope(conn, req); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrSend, addr, err)
	}

	resp, err := ReadEnvelope(conn)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrReceive, addr, err)
	}
	return resp, nil
}
