// Package timestamp is a client for the timestamp service that
// countersigns clip digests. The protocol is one TCP exchange: the client
// sends the hex digest and half-closes, the server answers "time\nsign".
package timestamp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultTimeout bounds one exchange.
const DefaultTimeout = time.Second

// maxReply bounds the server's answer.
const maxReply = 64 << 10

// ErrBadReply is returned when the server's answer is malformed.
var ErrBadReply = errors.New("timestamp: malformed reply")

// Stamp is the service's answer.
type Stamp struct {
	Time string
	Sign string
}

// Client talks to one timestamp service.
type Client struct {
	Addr    string
	Timeout time.Duration // Zero means DefaultTimeout
}

// Stamp asks the service to countersign digest.
func (c *Client) Stamp(ctx context.Context, digest string) (Stamp, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Stamp{}, fmt.Errorf("timestamp: dial %s: %w", c.Addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, digest); err != nil {
		return Stamp{}, fmt.Errorf("timestamp: send digest: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return Stamp{}, fmt.Errorf("timestamp: close write: %w", err)
		}
	}

	reply, err := io.ReadAll(io.LimitReader(conn, maxReply))
	if err != nil {
		return Stamp{}, fmt.Errorf("timestamp: read reply: %w", err)
	}
	t, sign, ok := strings.Cut(string(reply), "\n")
	if !ok {
		return Stamp{}, fmt.Errorf("%w: %q", ErrBadReply, reply)
	}
	t = strings.TrimSpace(t)
	sign = strings.TrimSpace(sign)
	if t == "" || strings.ContainsAny(sign, "\r\n") {
		return Stamp{}, fmt.Errorf("%w: %q", ErrBadReply, reply)
	}
	return Stamp{Time: t, Sign: sign}, nil
}
