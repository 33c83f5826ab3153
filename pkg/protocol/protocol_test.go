package protocol

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"flatstore/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSize(t *testing.T) {
	data, err := Marshal(NewAck())
	require.NoError(t, err)
	assert.Len(t, data, EnvelopeSize)
	assert.Equal(t, 2052, EnvelopeSize)
}

func TestKindNumbering(t *testing.T) {
	// The numbering is shared by every role on the wire.
	assert.Equal(t, Kind(0), KindRegisterNode)
	assert.Equal(t, Kind(3), KindCoordinatorResponse)
	assert.Equal(t, Kind(6), KindError)
	assert.Equal(t, Kind(7), KindFileListPush)
	assert.Equal(t, "NodeCommand", KindNodeCommand.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())

	assert.True(t, KindNodeResponse.IsSuccess())
	assert.True(t, KindCoordinatorResponse.IsSuccess())
	assert.False(t, KindError.IsSuccess())
}

func TestCommandRoundTrip(t *testing.T) {
	env, err := NewCommand(KindClientCommand, Command{Verb: "write", Path: "/notes.txt", Data: "hello"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, env))
	assert.Equal(t, EnvelopeSize, buf.Len())

	got, err := ReadEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindClientCommand, got.Kind)

	cmd, err := got.Command()
	require.NoError(t, err)
	assert.Equal(t, types.VerbWrite, cmd.Verb)
	assert.Equal(t, "/notes.txt", cmd.Path)
	assert.Equal(t, "hello", cmd.Data)
}

func TestCommandRejectsWrongKind(t *testing.T) {
	_, err := NewCommand(KindError, Command{Verb: types.VerbRead})
	assert.Error(t, err)

	_, err = NewAck().Command()
	var kindErr *UnexpectedKindError
	assert.ErrorAs(t, err, &kindErr)
}

func TestFieldLengthChecks(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		field string
	}{
		{"verb", Command{Verb: types.Verb(strings.Repeat("V", VerbCapacity)), Path: "/a"}, "verb"},
		{"path", Command{Verb: types.VerbRead, Path: "/" + strings.Repeat("p", PathCapacity)}, "path"},
		{"data", Command{Verb: types.VerbWrite, Path: "/a", Data: strings.Repeat("d", DataCapacity)}, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommand(KindNodeCommand, tt.cmd)
			require.ErrorIs(t, err, ErrFieldTooLong)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}

	// Exactly at capacity minus the terminator fits.
	_, err := NewCommand(KindNodeCommand, Command{Verb: types.VerbWrite, Path: "/a", Data: strings.Repeat("d", DataCapacity-1)})
	assert.NoError(t, err)
}

func TestNodeIdentityRoundTrip(t *testing.T) {
	addr := types.NodeAddress{Host: "10.0.0.7", Port: 9101}
	env, err := NewRegisterNode(addr)
	require.NoError(t, err)

	got, err := env.NodeIdentity()
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = NewRegisterNode(types.NodeAddress{Host: strings.Repeat("h", HostCapacity), Port: 1})
	assert.ErrorIs(t, err, ErrFieldTooLong)

	_, err = NewRegisterNode(types.NodeAddress{Host: "h", Port: 0})
	assert.Error(t, err)
}

func TestFileListPush(t *testing.T) {
	env, err := NewFileListPush([]string{"/a.txt", "/b.txt"})
	require.NoError(t, err)

	push, err := env.FileList()
	require.NoError(t, err)
	assert.Equal(t, 2, push.Count)
	assert.Equal(t, []string{"/a.txt", "/b.txt"}, push.Paths)

	empty, err := NewFileListPush(nil)
	require.NoError(t, err)
	push, err = empty.FileList()
	require.NoError(t, err)
	assert.Empty(t, push.Paths)
}

func TestFitFileList(t *testing.T) {
	name := "/" + strings.Repeat("f", 99) // 101 bytes per line with newline
	var paths []string
	for i := 0; i < 40; i++ {
		paths = append(paths, name)
	}

	_, err := NewFileListPush(paths)
	require.ErrorIs(t, err, ErrFieldTooLong)

	fitted := FitFileList(paths)
	assert.Len(t, fitted, (FileListCapacity-1)/101)
	_, err = NewFileListPush(fitted)
	assert.NoError(t, err)
}

func TestText(t *testing.T) {
	env, err := NewText(KindNodeResponse, "hello\n")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", env.Text())

	_, err = NewText(KindNodeResponse, strings.Repeat("x", PayloadSize))
	assert.ErrorIs(t, err, ErrFieldTooLong)

	env, truncated := TruncatedText(KindCoordinatorResponse, strings.Repeat("x", PayloadSize+10))
	assert.True(t, truncated)
	assert.Len(t, env.Text(), TextCapacity)

	assert.Equal(t, MsgFileNotFound, NewError(MsgFileNotFound).Text())
	assert.Equal(t, KindError, NewError(MsgFileNotFound).Kind)
}

func TestShortReadIsPeerClosed(t *testing.T) {
	data, err := Marshal(NewAck())
	require.NoError(t, err)

	_, err = ReadEnvelope(bytes.NewReader(data[:EnvelopeSize-1]))
	assert.ErrorIs(t, err, ErrPeerClosed)

	_, err = ReadEnvelope(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestExpect(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnvelope(&buf, NewError("boom")))

	env, err := Expect(&buf, KindRegisterAck)
	var kindErr *UnexpectedKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, KindError, kindErr.Got)
	assert.Equal(t, "boom", env.Text())
}

func TestExchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := ReadEnvelope(conn)
		if err != nil {
			return
		}
		reply, _ := NewText(KindNodeResponse, "echo:"+req.Text())
		_ = WriteEnvelope(conn, reply)
	}()

	req, err := NewText(KindNodeCommand, "ping")
	require.NoError(t, err)

	resp, err := Exchange(context.Background(), &net.Dialer{}, ln.Addr().String(), req, 0)
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", resp.Text())
}

func TestExchangeFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Close without replying.
		_, _ = ReadEnvelope(conn)
		conn.Close()
	}()

	_, err = Exchange(context.Background(), &net.Dialer{}, addr, NewAck(), 0)
	assert.ErrorIs(t, err, ErrReceive)
	ln.Close()

	_, err = Exchange(context.Background(), &net.Dialer{}, addr, NewAck(), 0)
	assert.ErrorIs(t, err, ErrDial)
	assert.False(t, errors.Is(err, ErrReceive))
}
