package syslog

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultTimeout bounds dialing and each write.
const DefaultTimeout = 5 * time.Second

// DefaultUnixSocket is the local syslog socket used for UNIX transport when
// no path is configured.
const DefaultUnixSocket = "/dev/log"

// ErrClientClosed is returned by Send after Close.
var ErrClientClosed = errors.New("syslog client is closed")

// Client sends rendered messages to a syslog daemon. The connection is
// established lazily and dropped after any failure; the next Send redials.
// It is safe for concurrent use.
type Client struct {
	protocol Protocol
	addr     string
	timeout  time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewClient creates a client. For UDP and TCP, host and port form the
// remote address; for UNIX, host is the socket path and port is ignored.
func NewClient(protocol Protocol, host string, port int, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var addr string
	switch protocol {
	case UDP, TCP:
		if host == "" {
			host = "localhost"
		}
		addr = net.JoinHostPort(host, strconv.Itoa(port))
	case UNIX:
		addr = host
		if addr == "" {
			addr = DefaultUnixSocket
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, string(protocol))
	}

	return &Client{
		protocol: protocol,
		addr:     addr,
		timeout:  timeout,
		dial:     net.DialTimeout,
	}, nil
}

// Addr returns the remote address (or socket path).
func (c *Client) Addr() string {
	return c.addr
}

// Protocol returns the transport.
func (c *Client) Protocol() Protocol {
	return c.protocol
}

func (c *Client) network() string {
	switch c.protocol {
	case TCP:
		return "tcp"
	case UNIX:
		return "unixgram"
	default:
		return "udp"
	}
}

// Send writes one rendered message. TCP messages are newline framed.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	if c.conn == nil {
		conn, err := c.dial(c.network(), c.addr, c.timeout)
		if err != nil {
			return fmt.Errorf("dial %s %s: %w", c.network(), c.addr, err)
		}
		c.conn = conn
	}

	if c.protocol == TCP {
		framed := make([]byte, 0, len(payload)+1)
		framed = append(framed, payload...)
		payload = append(framed, '\n')
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(payload); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("write %s %s: %w", c.network(), c.addr, err)
	}
	return nil
}

// Close releases the connection. Further sends fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
