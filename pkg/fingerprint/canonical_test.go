package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysAtEveryDepth(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"z": 1,
		"a": map[string]any{"y": true, "b": []string{"q", "p"}},
		"m": WebGLInfo{Vendor: "v", Render: "r"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":["q","p"],"y":true},"m":{"render":"r","vendor":"v"},"z":1}`, string(got))
}

func TestCanonicalizePreservesNumbers(t *testing.T) {
	got, err := Canonicalize(Components{"deviceMemory": 0.5, "colorDepth": 24, "timezoneOffset": -60})
	require.NoError(t, err)
	assert.Equal(t, `{"colorDepth":24,"deviceMemory":0.5,"timezoneOffset":-60}`, string(got))
}
