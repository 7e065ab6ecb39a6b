package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_FirstIPv4PrefersV4(t *testing.T) {
	v6 := net.ParseIP("fe80::1")
	v4 := net.ParseIP("192.168.1.20")

	got := firstIPv4([]net.IP{v6, v4})
	assert.Equal(t, v4.To4(), got)
}

func Test_FirstIPv4FallsBackWhenNoneV4(t *testing.T) {
	v6 := net.ParseIP("fe80::1")

	got := firstIPv4([]net.IP{v6})
	assert.Equal(t, v6, got)
}
