package identity

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	i := Static("Render-01", " 192.0.2.1 ", "")
	assert.True(t, i.Matches("render-01"))
	assert.True(t, i.Matches("RENDER-01"))
	assert.True(t, i.Matches("192.0.2.1"))
	assert.False(t, i.Matches("192.0.2.2"))
	assert.Equal(t, []string{"192.0.2.1", "render-01"}, i.Names())
}

func TestLocal(t *testing.T) {
	i, err := Local()
	require.NoError(t, err)
	assert.True(t, i.Matches("127.0.0.1"))
	assert.True(t, i.Matches("localhost"))
	hostname, err := os.Hostname()
	require.NoError(t, err)
	assert.True(t, i.Matches(strings.ToUpper(hostname)))
}

func TestGetRandomPort(t *testing.T) {
	port, err := GetRandomPort("127.0.0.1")
	require.NoError(t, err)
	assert.NotZero(t, port)
}
