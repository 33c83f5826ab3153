package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeAddress(t *testing.T) {
	addr, err := ParseNodeAddress("10.0.0.5:9100")
	require.NoError(t, err)
	assert.Equal(t, NodeAddress{Host: "10.0.0.5", Port: 9100}, addr)
	assert.Equal(t, "10.0.0.5:9100", addr.String())

	addr, err = ParseNodeAddress(":9100")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr.Host)

	v6 := NodeAddress{Host: "::1", Port: 9100}
	assert.Equal(t, "[::1]:9100", v6.String())
	back, err := ParseNodeAddress(v6.String())
	require.NoError(t, err)
	assert.Equal(t, v6, back)

	for _, bad := range []string{"", "host", "host:0", "host:70000", "host:abc"} {
		_, err := ParseNodeAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestCanonicalVerb(t *testing.T) {
	assert.Equal(t, VerbRead, CanonicalVerb(" read "))
	assert.Equal(t, VerbWrite, CanonicalVerb("Write"))
	assert.True(t, CanonicalVerb("list").Valid())
	assert.False(t, CanonicalVerb("delete").Valid())
	assert.False(t, Verb("").Valid())
}
