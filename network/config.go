package network

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vx-labs/framelock/identity"
)

// Configuration is where a service of this process listens.
type Configuration struct {
	name        string
	bindAddress string
	bindPort    int
}

func (c *Configuration) Name() string {
	return c.name
}
func (c *Configuration) BindPort() int {
	return c.bindPort
}
func (c *Configuration) BindAddress() string {
	return c.bindAddress
}
func (c *Configuration) Enabled() bool {
	return c.bindPort > 0
}
func (c *Configuration) Address() string {
	return identity.NewAddress(c.bindAddress, c.bindPort).String()
}

func bindAddressFlagName(name string) string {
	return fmt.Sprintf("%s-bind-address", name)
}
func bindPortFlagName(name string) string {
	return fmt.Sprintf("%s-bind-port", name)
}

func (c Configuration) Describe() string {
	return fmt.Sprintf("service %s is running on %s:%d", c.name, c.bindAddress, c.bindPort)
}

// ConfigurationFromFlags reads the flags registered by
// RegisterFlagsForService. A zero port disables the service.
func ConfigurationFromFlags(v *viper.Viper, name string) (Configuration, error) {
	config := Configuration{
		name:        name,
		bindAddress: v.GetString(bindAddressFlagName(name)),
		bindPort:    v.GetInt(bindPortFlagName(name)),
	}
	if net.ParseIP(config.bindAddress) == nil {
		return config, errors.Errorf("invalid bind address specified for service %s: %q", name, config.bindAddress)
	}
	if config.bindPort < 0 || config.bindPort > 65535 {
		return config, errors.Errorf("invalid bind port specified for service %s: %d", name, config.bindPort)
	}
	return config, nil
}

func RegisterFlagsForService(cmd *cobra.Command, config *viper.Viper, name string, defaultPort int) {
	long := bindPortFlagName(name)
	longAddr := bindAddressFlagName(name)

	cmd.Flags().IntP(long, "", defaultPort, fmt.Sprintf("Start %s listener on this port (0 disables it)", name))
	config.BindPFlag(long, cmd.Flags().Lookup(long))

	cmd.Flags().StringP(longAddr, "", "0.0.0.0", fmt.Sprintf("Start %s listener on this address", name))
	config.BindPFlag(longAddr, cmd.Flags().Lookup(longAddr))
}
