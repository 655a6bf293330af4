package network

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationFromFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd := &cobra.Command{}
		v := viper.New()
		RegisterFlagsForService(cmd, v, "metrics", 9100)
		c, err := ConfigurationFromFlags(v, "metrics")
		require.NoError(t, err)
		assert.True(t, c.Enabled())
		assert.Equal(t, "0.0.0.0:9100", c.Address())
	})
	t.Run("flags", func(t *testing.T) {
		cmd := &cobra.Command{}
		v := viper.New()
		RegisterFlagsForService(cmd, v, "metrics", 9100)
		require.NoError(t, cmd.Flags().Parse([]string{"--metrics-bind-port", "0", "--metrics-bind-address", "127.0.0.1"}))
		c, err := ConfigurationFromFlags(v, "metrics")
		require.NoError(t, err)
		assert.False(t, c.Enabled())
		assert.Equal(t, "127.0.0.1", c.BindAddress())
	})
	t.Run("invalid address", func(t *testing.T) {
		cmd := &cobra.Command{}
		v := viper.New()
		RegisterFlagsForService(cmd, v, "metrics", 9100)
		require.NoError(t, cmd.Flags().Parse([]string{"--metrics-bind-address", "render-01"}))
		_, err := ConfigurationFromFlags(v, "metrics")
		require.Error(t, err)
	})
}
