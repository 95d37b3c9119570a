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

//go:build !linux
// +build !linux

package socket

import (
	"net"
	"time"

	errorx "github.com/panjf2000/gchannel/errors"
)

// SetTCPOptions applies TCP_NODELAY and, when keepAlive is positive, SO_KEEPALIVE to a TCP connection.
func SetTCPOptions(conn net.Conn, noDelay bool, keepAlive time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(noDelay); err != nil {
		return err
	}
	if keepAlive > 0 {
		if err := tc.SetKeepAlive(true); err != nil {
			return err
		}
		return tc.SetKeepAlivePeriod(keepAlive)
	}
	return nil
}

// Dup is only available on Linux.
func Dup(net.Conn) (int, error) {
	return -1, errorx.ErrUnsupportedPlatform
}
