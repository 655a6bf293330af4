package transport

import (
	"fmt"
	"net"
	"time"

	proxyproto "github.com/armon/go-proxyproto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func listen(host string, port int) (net.Listener, error) {
	tcp, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, err
	}
	return &proxyproto.Listener{Listener: tcp}, nil
}

// acceptLoop hands every accepted socket to handler, until the listener is
// closed.
func acceptLoop(listener net.Listener, logger *zap.Logger, handler func(net.Conn)) {
	var tempDelay time.Duration
	for {
		c, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				logger.Warn("accept error", zap.Error(err), zap.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			logger.Error("listener failed", zap.Error(err))
			listener.Close()
			return
		}
		tempDelay = 0
		handler(c)
	}
}
