//go:build linux
// +build linux

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollerOneShotReadiness(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	events := make(chan int, 8)
	done := make(chan error, 1)
	go func() {
		done <- p.Polling(func(fd int, ev uint32) {
			if ev&InEvents != 0 {
				events <- fd
			}
		})
	}()

	require.NoError(t, p.Add(fds[0], unix.EPOLLIN))
	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	select {
	case fd := <-events:
		assert.Equal(t, fds[0], fd)
	case <-time.After(time.Second):
		t.Fatal("no readiness event")
	}

	// Nothing was read, the descriptor is still readable but disarmed.
	select {
	case <-events:
		t.Fatal("one-shot descriptor fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Mod(fds[0], unix.EPOLLIN))
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("re-armed descriptor did not fire")
	}
	require.NoError(t, p.Delete(fds[0]))

	ran := make(chan struct{})
	require.NoError(t, p.Trigger(func(interface{}) error {
		close(ran)
		return nil
	}, nil))
	<-ran
	require.NoError(t, p.Trigger(func(interface{}) error { return ErrPollerClosed }, nil))
	assert.ErrorIs(t, <-done, ErrPollerClosed)
	assert.NoError(t, p.Close())
}
