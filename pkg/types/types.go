package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NodeAddress identifies a registered storage node.
type NodeAddress struct {
	Host string
	Port int
}

func (a NodeAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseNodeAddress parses "host:port". An empty host becomes 127.0.0.1.
func ParseNodeAddress(s string) (NodeAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("invalid node address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return NodeAddress{}, fmt.Errorf("invalid port in node address %q", s)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return NodeAddress{Host: host, Port: port}, nil
}

// FileLocation maps a path to the node that owns it.
type FileLocation struct {
	Path  string
	Owner NodeAddress
}

type Verb string

const (
	VerbRead  Verb = "READ"
	VerbWrite Verb = "WRITE"
	VerbList  Verb = "LIST"
)

// CanonicalVerb upper-cases and trims raw input. The result may not be a known verb.
func CanonicalVerb(s string) Verb {
	return Verb(strings.ToUpper(strings.TrimSpace(s)))
}

func (v Verb) Valid() bool {
	switch v {
	case VerbRead, VerbWrite, VerbList:
		return true
	}
	return false
}
