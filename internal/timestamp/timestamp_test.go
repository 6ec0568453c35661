package timestamp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve accepts one connection, records what the client sent and answers
// with reply.
func serve(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		got <- string(data)
		io.WriteString(conn, reply)
	}()
	return ln.Addr().String(), got
}

func TestStamp(t *testing.T) {
	addr, got := serve(t, "20240102_030405\nc2lnbmF0dXJl\n")
	c := &Client{Addr: addr}

	s, err := c.Stamp(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, Stamp{Time: "20240102_030405", Sign: "c2lnbmF0dXJl"}, s)
	assert.Equal(t, "deadbeef", <-got)
}

func TestStamp_EmptySign(t *testing.T) {
	addr, _ := serve(t, "20240102_030405\n")
	s, err := (&Client{Addr: addr}).Stamp(context.Background(), "00")
	require.NoError(t, err)
	assert.Equal(t, "", s.Sign)
}

func TestStamp_BadReply(t *testing.T) {
	addr, _ := serve(t, "no newline")
	_, err := (&Client{Addr: addr}).Stamp(context.Background(), "00")
	assert.ErrorIs(t, err, ErrBadReply)
}

func TestStamp_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = (&Client{Addr: addr, Timeout: 200 * time.Millisecond}).Stamp(context.Background(), "00")
	assert.Error(t, err)
}

func TestStamp_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Never answer.
		time.Sleep(time.Second)
		conn.Close()
	}()

	start := time.Now()
	_, err = (&Client{Addr: ln.Addr().String(), Timeout: 100 * time.Millisecond}).Stamp(context.Background(), "00")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}
