package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LocalInterfaceAddrDefaultsToAny(t *testing.T) {
	ip, err := localInterfaceAddr("")
	require.NoError(t, err)
	assert.True(t, ip.IsUnspecified())
}

func Test_GatewaysOfDedup(t *testing.T) {
	a := Gateway{Host: []byte{192, 168, 0, 10}, Port: 3671, Source: "search"}
	b := Gateway{Host: []byte{192, 168, 0, 10}, Port: 3671, Source: "description"}

	seen := map[string]Gateway{}
	seen[a.Key()] = a
	seen[b.Key()] = b // same key, overwrites

	gws := gatewaysOf(seen)
	require.Len(t, gws, 1)
	assert.Equal(t, "description", gws[0].Source)
}
