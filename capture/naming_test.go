package capture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaming(t *testing.T) {
	t.Run("single node", func(t *testing.T) {
		n := Naming{Prefix: "shot", AddNodeName: true, NodeID: 2, Nodes: 1}
		assert.Equal(t, "shot_win0_000042.png", n.Filename(42, Window{}, Mono, PNG))
	})
	t.Run("cluster with node name", func(t *testing.T) {
		n := Naming{Path: "/tmp/out", Prefix: "shot", AddNodeName: true, NodeID: 2, Nodes: 3}
		assert.Equal(t, filepath.Join("/tmp/out", "shot_node2_front_L_000007.tga"),
			n.Filename(7, Window{ID: 1, Name: "front"}, LeftEye, TGA))
	})
	t.Run("no prefix", func(t *testing.T) {
		n := Naming{}
		assert.Equal(t, "win3_R_1234567.jpg", n.Filename(1234567, Window{ID: 3}, RightEye, JPEG))
	})
}

func TestLimits(t *testing.T) {
	l := Limits{Begin: 10, End: 12}
	assert.False(t, l.Contains(9))
	assert.True(t, l.Contains(10))
	assert.True(t, l.Contains(11))
	assert.False(t, l.Contains(12))
	assert.True(t, Limits{}.Contains(1 << 40))
}

func TestParseFormat(t *testing.T) {
	for input, expected := range map[string]Format{
		"png": PNG, ".JPG": JPEG, "jpeg": JPEG, "tga": TGA, "bmp": BMP, "tiff": TIFF, "": PNG,
	} {
		f, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, f, input)
	}
	_, err := ParseFormat("exr")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
