package knx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_ParseAddress(t *testing.T) {
	a, err := ParseAddress("1.1.1")
	require.NoError(t, err)
	assert.Equal(t, Address(0x1101), a)
	assert.Equal(t, "1.1.1", a.String())

	_, err = ParseAddress("16.0.0")
	assert.Error(t, err, "area 16 is out of range")

	_, err = ParseAddress("1.1")
	assert.Error(t, err, "missing a field")
}

func Test_PackParseAddressRoundTrip(t *testing.T) {
	// spec.md §8 invariant 5: pack(parse(x)) == x for all valid x.
	rapid.Check(t, func(t *rapid.T) {
		area := rapid.IntRange(1, 15).Draw(t, "area")
		line := rapid.IntRange(0, 15).Draw(t, "line")
		device := rapid.IntRange(0, 255).Draw(t, "device")

		a := PackAddress(area, line, device)

		parsed, err := ParseAddress(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	})
}

func Test_ExpandRange(t *testing.T) {
	// spec.md §8 scenario (e).
	addrs, err := ExpandRange("1.1.1", "1.1.3")
	require.NoError(t, err)

	want := []Address{
		PackAddress(1, 1, 1),
		PackAddress(1, 1, 2),
		PackAddress(1, 1, 3),
	}
	assert.Equal(t, want, addrs)
}

func Test_ExpandRangeCount(t *testing.T) {
	// spec.md §8 invariant 6.
	rapid.Check(t, func(t *rapid.T) {
		fArea := rapid.IntRange(1, 15).Draw(t, "fArea")
		fLine := rapid.IntRange(0, 15).Draw(t, "fLine")
		fDevice := rapid.IntRange(0, 255).Draw(t, "fDevice")

		from := PackAddress(fArea, fLine, fDevice)

		span := rapid.IntRange(0, 300).Draw(t, "span")
		toVal := int(from) + span
		if toVal > 0xffff {
			toVal = 0xffff
		}

		to := Address(toVal)

		addrs, err := ExpandRange(from.String(), to.String())
		require.NoError(t, err)
		assert.Equal(t, int(to)-int(from)+1, len(addrs))

		for i, a := range addrs {
			assert.Equal(t, from+Address(i), a)
		}
	})
}

func Test_ParseTargetRange(t *testing.T) {
	addrs, err := ParseTargetRange("1.1.1-1.1.3")
	require.NoError(t, err)
	assert.Len(t, addrs, 3)

	single, err := ParseTargetRange("2.3.4")
	require.NoError(t, err)
	assert.Equal(t, []Address{PackAddress(2, 3, 4)}, single)
}

func Test_ParseGroupAddress(t *testing.T) {
	g, err := ParseGroupAddress("1/2/3")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Levels)
	assert.Equal(t, "1/2/3", g.String())

	g2, err := ParseGroupAddress("1/2000")
	require.NoError(t, err)
	assert.Equal(t, 2, g2.Levels)
	assert.Equal(t, "1/2000", g2.String())

	_, err = ParseGroupAddress("99/1")
	assert.Error(t, err)
}
