package identity

import (
	"fmt"
	"net"
	"os"
	"strings"
)

func GetRandomPort(host string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:0", host))
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Local gathers the host name, its canonical names and every IPv4 address of
// the interfaces that are up. The loopback names are always part of it.
func Local() (Identity, error) {
	i := newIdentity("127.0.0.1", "localhost")
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	i.add(hostname)
	if cname, err := net.LookupCNAME(hostname); err == nil {
		i.add(strings.TrimSuffix(cname, "."))
	}
	if addrs, err := net.LookupHost(hostname); err == nil {
		for _, addr := range addrs {
			if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
				i.add(addr)
			}
		}
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, v := range ifaces {
		if v.Flags&net.FlagUp != net.FlagUp {
			continue
		}
		addresses, err := v.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addresses {
			ip := strings.Split(addr.String(), "/")[0]
			if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
				i.add(ip)
			}
		}
	}
	return i, nil
}
