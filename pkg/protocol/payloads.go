package protocol

import (
	"fmt"
	"strings"

	"flatstore/pkg/types"
)

// Field capacities, terminator included.
const (
	VerbCapacity     = 16
	PathCapacity     = 256
	DataCapacity     = 1024
	HostCapacity     = 64
	FileListCapacity = PayloadSize - 4
)

// Application error messages sent in Error envelopes.
const (
	MsgFileNotFound             = "File not found"
	MsgDirectoryNotFound        = "Directory not found"
	MsgNoStorageServers         = "No storage servers available"
	MsgStorageServerUnavailable = "Storage server unavailable"
	MsgReceiveFailed            = "Failed to receive response from storage server"
	MsgUnknownCommand           = "Unknown command"
	MsgWriteFailed              = "Failed to open file for writing"
	MsgRequestTooLarge          = "Request too large"
	MsgWriteSuccessful          = "Write successful"
)

// Command is the payload of ClientCommand and NodeCommand envelopes.
type Command struct {
	Verb types.Verb
	Path string
	Data string
}

type wireCommand struct {
	Verb [VerbCapacity]byte
	Path [PathCapacity]byte
	Data [DataCapacity]byte
}

// NewCommand builds a ClientCommand or NodeCommand envelope. The verb is
// canonicalized to upper case.
func NewCommand(kind Kind, cmd Command) (Envelope, error) {
	if kind != KindClientCommand && kind != KindNodeCommand {
		return Envelope{}, fmt.Errorf("%s cannot carry a command", kind)
	}
	var w wireCommand
	if err := putField(w.Verb[:], "verb", string(types.CanonicalVerb(string(cmd.Verb)))); err != nil {
		return Envelope{}, err
	}
	if err := putField(w.Path[:], "path", cmd.Path); err != nil {
		return Envelope{}, err
	}
	if err := putField(w.Data[:], "data", cmd.Data); err != nil {
		return Envelope{}, err
	}
	env := Envelope{Kind: kind}
	if err := encodePayload(&env, &w); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Command decodes a command payload.
func (e Envelope) Command() (Command, error) {
	if e.Kind != KindClientCommand && e.Kind != KindNodeCommand {
		return Command{}, &UnexpectedKindError{Want: KindClientCommand, Got: e.Kind}
	}
	var w wireCommand
	if err := decodePayload(e, &w); err != nil {
		return Command{}, err
	}
	return Command{
		Verb: types.CanonicalVerb(getField(w.Verb[:])),
		Path: getField(w.Path[:]),
		Data: getField(w.Data[:]),
	}, nil
}

type wireNodeIdentity struct {
	Host [HostCapacity]byte
	Port uint32
}

// NewRegisterNode builds the envelope a storage node sends to announce itself.
func NewRegisterNode(addr types.NodeAddress) (Envelope, error) {
	var w wireNodeIdentity
	if err := putField(w.Host[:], "host", addr.Host); err != nil {
		return Envelope{}, err
	}
	if addr.Port <= 0 || addr.Port > 65535 {
		return Envelope{}, fmt.Errorf("invalid port %d", addr.Port)
	}
	w.Port = uint32(addr.Port)
	env := Envelope{Kind: KindRegisterNode}
	if err := encodePayload(&env, &w); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// NodeIdentity decodes a RegisterNode payload.
func (e Envelope) NodeIdentity() (types.NodeAddress, error) {
	if e.Kind != KindRegisterNode {
		return types.NodeAddress{}, &UnexpectedKindError{Want: KindRegisterNode, Got: e.Kind}
	}
	var w wireNodeIdentity
	if err := decodePayload(e, &w); err != nil {
		return types.NodeAddress{}, err
	}
	return types.NodeAddress{Host: getField(w.Host[:]), Port: int(w.Port)}, nil
}

// FileListPush is the inventory a storage node pushes after registering.
// Count mirrors len(Paths) on encode and is informational on decode.
type FileListPush struct {
	Count int
	Paths []string
}

type wireFileList struct {
	Count int32
	Paths [FileListCapacity]byte
}

// NewFileListPush builds a FileListPush envelope. It fails with
// ErrFieldTooLong if the joined list does not fit; see FitFileList.
func NewFileListPush(paths []string) (Envelope, error) {
	var w wireFileList
	w.Count = int32(len(paths))
	if err := putField(w.Paths[:], "file list", joinLines(paths)); err != nil {
		return Envelope{}, err
	}
	env := Envelope{Kind: KindFileListPush}
	if err := encodePayload(&env, &w); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// FitFileList returns the longest prefix of paths whose newline-joined form
// fits a FileListPush payload.
func FitFileList(paths []string) []string {
	size := 0
	for i, p := range paths {
		size += len(p) + 1
		if size >= FileListCapacity {
			return paths[:i]
		}
	}
	return paths
}

// FileList decodes a FileListPush payload. Empty lines are skipped.
func (e Envelope) FileList() (FileListPush, error) {
	if e.Kind != KindFileListPush {
		return FileListPush{}, &UnexpectedKindError{Want: KindFileListPush, Got: e.Kind}
	}
	var w wireFileList
	if err := decodePayload(e, &w); err != nil {
		return FileListPush{}, err
	}
	var paths []string
	for _, line := range strings.Split(getField(w.Paths[:]), "\n") {
		if line != "" {
			paths = append(paths, line)
		}
	}
	return FileListPush{Count: int(w.Count), Paths: paths}, nil
}

// NewText builds an envelope whose payload is a single string. It fails with
// ErrFieldTooLong if text exceeds TextCapacity.
func NewText(kind Kind, text string) (Envelope, error) {
	env := Envelope{Kind: kind}
	if err := putField(env.Payload[:], "text", text); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// TruncatedText is NewText that cuts text to TextCapacity instead of failing.
// It reports whether anything was cut.
func TruncatedText(kind Kind, text string) (Envelope, bool) {
	truncated := false
	if len(text) > TextCapacity {
		text = text[:TextCapacity]
		truncated = true
	}
	env := Envelope{Kind: kind}
	copy(env.Payload[:], text)
	return env, truncated
}

// NewError builds an Error envelope carrying msg.
func NewError(msg string) Envelope {
	env, _ := TruncatedText(KindError, msg)
	return env
}

// NewAck builds an empty RegisterAck.
func NewAck() Envelope {
	return Envelope{Kind: KindRegisterAck}
}

// Text returns the payload read as a null-terminated string.
func (e Envelope) Text() string {
	return getField(e.Payload[:])
}

func joinLines(lines []string) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
