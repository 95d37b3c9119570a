//go:build linux
// +build linux

package socket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	return client, server
}

func TestSetTCPOptions(t *testing.T) {
	client, server := tcpPair(t)
	defer client.Close()
	defer server.Close()

	require.NoError(t, SetTCPOptions(server, false, 30*time.Second))
	require.NoError(t, Control(server, func(fd int) error {
		v, err := unix.GetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
		assert.Zero(t, v)
		return err
	}))
	require.NoError(t, SetTCPOptions(server, true, 0))
	require.NoError(t, Control(server, func(fd int) error {
		v, err := unix.GetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
		assert.Equal(t, 1, v)
		return err
	}))

	p1, p2 := net.Pipe()
	defer p1.Close()
	defer p2.Close()
	assert.NoError(t, SetTCPOptions(p1, true, time.Second))
}

func TestDup(t *testing.T) {
	client, server := tcpPair(t)
	defer client.Close()

	fd, err := Dup(server)
	require.NoError(t, err)
	require.NoError(t, server.Close())

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	var n int
	for i := 0; i < 100; i++ {
		if n, err = unix.Read(fd, buf); err != unix.EAGAIN {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.NoError(t, unix.Close(fd))

	p1, p2 := net.Pipe()
	defer p1.Close()
	defer p2.Close()
	_, err = Dup(p1)
	assert.Error(t, err)
}
