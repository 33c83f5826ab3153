package node

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flatstore/pkg/protocol"
	"flatstore/pkg/types"

	"go.uber.org/zap"
)

// tempPrefix marks in-progress writes; such files are hidden from listings.
const tempPrefix = ".flatstore-tmp-"

// Handle executes one command against the root directory and returns the
// single reply to send.
func (n *Node) Handle(cmd protocol.Command, logger *zap.Logger) protocol.Envelope {
	verb := types.CanonicalVerb(string(cmd.Verb))
	logger = logger.With(zap.String("verb", string(verb)), zap.String("path", cmd.Path))

	switch verb {
	case types.VerbRead:
		return n.read(cmd.Path, logger)
	case types.VerbWrite:
		return n.write(cmd.Path, cmd.Data, logger)
	case types.VerbList:
		return n.list(cmd.Path, logger)
	}
	logger.Debug("Unknown command")
	return protocol.NewError(protocol.MsgUnknownCommand)
}

// cleanPath maps a request path to a rooted, cleaned form. ".." cannot climb
// above the root.
func cleanPath(p string) string {
	return filepath.Clean("/" + p)
}

func (n *Node) resolve(p string) string {
	return filepath.Join(n.rootDir, cleanPath(p))
}

func (n *Node) read(path string, logger *zap.Logger) protocol.Envelope {
	key := cleanPath(path)
	n.locks.RLock(key)
	defer n.locks.RUnlock(key)

	f, err := os.Open(n.resolve(path))
	if err != nil {
		return protocol.NewError(protocol.MsgFileNotFound)
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil || info.IsDir() {
		return protocol.NewError(protocol.MsgFileNotFound)
	}

	// Content beyond one payload is dropped.
	data, err := io.ReadAll(io.LimitReader(f, protocol.TextCapacity))
	if err != nil {
		logger.Warn("Read failed", zap.Error(err))
		return protocol.NewError(protocol.MsgFileNotFound)
	}

	env, _ := protocol.TruncatedText(protocol.KindNodeResponse, string(data))
	logger.Debug("Read file", zap.Int("bytes", len(data)))
	return env
}

func (n *Node) write(path, data string, logger *zap.Logger) protocol.Envelope {
	key := cleanPath(path)
	n.locks.Lock(key)
	defer n.locks.Unlock(key)

	if err := writeFileAtomic(n.resolve(path), []byte(data+"\n")); err != nil {
		logger.Warn("Write failed", zap.Error(err))
		return protocol.NewError(protocol.MsgWriteFailed)
	}

	logger.Debug("Wrote file", zap.Int("bytes", len(data)+1))
	env, _ := protocol.NewText(protocol.KindNodeResponse, protocol.MsgWriteSuccessful)
	return env
}

// writeFileAtomic writes to a temp file next to target and renames it over
// target, so readers see either the old or the new content.
func writeFileAtomic(target string, content []byte) error {
	dir := filepath.Dir(target)
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return errors.New("target is a directory")
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

func (n *Node) list(path string, logger *zap.Logger) protocol.Envelope {
	entries, err := os.ReadDir(n.resolve(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("List failed", zap.Error(err))
		}
		return protocol.NewError(protocol.MsgDirectoryNotFound)
	}

	names := []string{".", ".."}
	var rest []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		rest = append(rest, e.Name())
	}
	sort.Strings(rest)
	names = append(names, rest...)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}

	env, truncated := protocol.TruncatedText(protocol.KindNodeResponse, sb.String())
	if truncated {
		logger.Warn("Listing truncated", zap.Int("entries", len(names)))
	}
	return env
}
