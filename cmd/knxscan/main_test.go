package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_expandTargetsSingleIP(t *testing.T) {
	targets, err := expandTargets([]string{"10.0.0.5"})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "10.0.0.5", targets[0].Host.String())
	assert.Equal(t, uint16(3671), targets[0].Port)
}

func Test_expandTargetsCIDR(t *testing.T) {
	targets, err := expandTargets([]string{"192.168.1.0/30"})
	require.NoError(t, err)
	require.Len(t, targets, 4)
	assert.Equal(t, "192.168.1.0", targets[0].Host.String())
	assert.Equal(t, "192.168.1.3", targets[3].Host.String())
}

func Test_expandTargetsRejectsGarbage(t *testing.T) {
	_, err := expandTargets([]string{"not-an-ip"})
	assert.Error(t, err)
}

func Test_expandTargetsSkipsBlank(t *testing.T) {
	targets, err := expandTargets([]string{"", "  ", "10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, targets, 1)
}
