// Copyright (c) 2024 The Gnet Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

// Package socket applies socket options to connections and hands out raw file descriptors.
package socket

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/gchannel/errors"
)

// SetNoDelay controls whether the operating system should delay
// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
//
// The default is true (no delay), meaning that data is
// sent as soon as possible after a Write.
func SetNoDelay(fd, noDelay int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, noDelay))
}

// SetKeepAlivePeriod sets whether the operating system should send
// keep-alive messages on the connection and sets period between TCP keep-alive probes.
func SetKeepAlivePeriod(fd, secs int) error {
	if secs <= 0 {
		return errors.New("invalid time duration")
	}
	if err := os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)); err != nil {
		return err
	}
	if err := os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs)); err != nil {
		return err
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs))
}

// Control runs fn with the file descriptor of conn.
func Control(conn net.Conn, fn func(fd int) error) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return errorx.ErrUnsupportedPlatform
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err = rc.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return err
	}
	return opErr
}

// SetTCPOptions applies TCP_NODELAY and, when keepAlive is positive, SO_KEEPALIVE to a TCP connection.
// Connections of other protocols are left untouched.
func SetTCPOptions(conn net.Conn, noDelay bool, keepAlive time.Duration) error {
	if _, ok := conn.(*net.TCPConn); !ok {
		return nil
	}
	return Control(conn, func(fd int) error {
		nd := 0
		if noDelay {
			nd = 1
		}
		if err := SetNoDelay(fd, nd); err != nil {
			return err
		}
		if keepAlive > 0 {
			secs := int(keepAlive / time.Second)
			if secs == 0 {
				secs = 1
			}
			return SetKeepAlivePeriod(fd, secs)
		}
		return nil
	})
}

// Dup duplicates the file descriptor of conn into a non-blocking descriptor owned by the caller,
// conn itself stays untouched and is still to be closed by the caller.
func Dup(conn net.Conn) (int, error) {
	var nfd int
	err := Control(conn, func(fd int) (err error) {
		nfd, err = unix.Dup(fd)
		return os.NewSyscallError("dup", err)
	})
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	if err = unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return nfd, nil
}
