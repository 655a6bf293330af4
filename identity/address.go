package identity

import (
	"net"
	"strconv"
)

// Address is a host and port pair. IPv6 hosts are bracketed when printed.
type Address struct {
	Host string
	Port int
}

func NewAddress(host string, port int) Address {
	return Address{Host: host, Port: port}
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
