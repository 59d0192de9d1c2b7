package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPathIndexed(t *testing.T) {
	payload := map[string]any{
		"patient": map[string]any{
			"addresses": []any{
				map[string]any{"city": "Springfield"},
				map[string]any{"city": "Shelbyville"},
			},
		},
	}

	v, ok := getPath(payload, "patient.addresses[1].city")
	require.True(t, ok)
	assert.Equal(t, "Shelbyville", v)

	_, ok = getPath(payload, "patient.addresses[5].city")
	assert.False(t, ok, "index out of range")

	_, ok = getPath(payload, "patient.name.first")
	assert.False(t, ok, "missing segment")

	_, ok = getPath(payload, "patient.addresses.city")
	assert.False(t, ok, "array where an object is expected")
}

func TestSetPathGrowsArrays(t *testing.T) {
	out := map[string]any{}
	require.NoError(t, setPath(out, "lines[2].sku", "A-1"))

	lines := out["lines"].([]any)
	require.Len(t, lines, 3)
	assert.Nil(t, lines[0])
	assert.Nil(t, lines[1])
	assert.Equal(t, "A-1", lines[2].(map[string]any)["sku"])

	require.NoError(t, setPath(out, "lines[0].sku", "B-2"))
	assert.Equal(t, "B-2", out["lines"].([]any)[0].(map[string]any)["sku"])
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, path := range []string{"", "a[", "a[x]", "a[-1]", "[0]", "a..b"} {
		_, err := parsePath(path)
		assert.Error(t, err, path)
	}
}

func TestSplitEach(t *testing.T) {
	prefix, suffix, ok, err := splitEach("items[].code")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "items", prefix)
	assert.Equal(t, "code", suffix)

	_, _, ok, err = splitEach("items.code")
	require.NoError(t, err)
	assert.False(t, ok, "no marker")

	_, _, _, err = splitEach("a[].b[].c")
	assert.Error(t, err, "one fan-out per path")

	_, _, _, err = splitEach("[].code")
	assert.Error(t, err)
}
