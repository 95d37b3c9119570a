// Copyright (c) 2019 The Gnet Authors. All rights reserved.
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

// Package errors defines common errors for gchannel.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed occurs when an operation is attempted on a closed channel.
	ErrChannelClosed = errors.New("gchannel: channel is closed")
	// ErrChannelStarted occurs when Start is called on a channel that is already reading.
	ErrChannelStarted = errors.New("gchannel: channel has already been started")
	// ErrServerInShutdown occurs when attempting to shut the server down more than once.
	ErrServerInShutdown = errors.New("gchannel: server is already in shutdown")
	// ErrUnsupportedProtocol occurs when trying to use protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("gchannel: only unix, tcp/tcp4/tcp6, udp/udp4/udp6 are supported")
	// ErrUnsupportedPlatform occurs when running a platform-specific component on an unsupported platform.
	ErrUnsupportedPlatform = errors.New("gchannel: unsupported platform")
	// ErrInvalidNetConn occurs when trying to do something with an empty net.Conn or socket.
	ErrInvalidNetConn = errors.New("gchannel: the net.Conn is empty")
	// ErrReactorClosed occurs when registering a socket with a reactor that has been closed.
	ErrReactorClosed = errors.New("gchannel: reactor is closed")

	// ================================================= pool errors =================================================.

	// ErrPoolExhausted occurs when a chunk could not be allocated within the configured timeout.
	ErrPoolExhausted = errors.New("gchannel: chunk pool exhausted")
	// ErrChunkTooLarge occurs when the requested chunk size exceeds the capacity of the whole pool.
	ErrChunkTooLarge = errors.New("gchannel: chunk size exceeds pool capacity")
	// ErrInvalidChunkSize occurs when the requested chunk size is not positive.
	ErrInvalidChunkSize = errors.New("gchannel: chunk size must be positive")
	// ErrStaleChunk occurs when a released chunk handle is used or released again.
	ErrStaleChunk = errors.New("gchannel: stale chunk handle")

	// ================================================ writer errors ================================================.

	// ErrQueueFull occurs when the outbound queue has reached its capacity.
	ErrQueueFull = errors.New("gchannel: outbound queue is full")
	// ErrWriterClosed occurs when enqueuing to a closed outbound writer.
	ErrWriterClosed = errors.New("gchannel: outbound writer is closed")

	// =============================================== pipeline errors ===============================================.

	// ErrPipelineSealed occurs when adding handlers to a pipeline that has already been initialized.
	ErrPipelineSealed = errors.New("gchannel: pipeline is sealed")
	// ErrUnencodable occurs when a message reaches the head of the pipeline without being encoded into bytes.
	ErrUnencodable = errors.New("gchannel: message was not encoded into bytes")
	// ErrHandlerPanic occurs when a handler hook panics.
	ErrHandlerPanic = errors.New("gchannel: handler panicked")

	// ================================================= codec errors =================================================.

	// ErrInvalidFixedLength occurs when the output data have invalid fixed length.
	ErrInvalidFixedLength = errors.New("gchannel: invalid fixed length of bytes")
	// ErrUnsupportedLength occurs when unsupported lengthFieldLength is from input data.
	ErrUnsupportedLength = errors.New("gchannel: unsupported lengthFieldLength. (expected: 1, 2, 3, 4, or 8)")
	// ErrTooLessLength occurs when adjusted frame length is less than zero.
	ErrTooLessLength = errors.New("gchannel: adjusted frame length is less than zero")
	// ErrFrameTooLong occurs when a frame grows beyond the configured maximum without being completed.
	ErrFrameTooLong = errors.New("gchannel: frame exceeds the maximum length")
)

// PipelineInitError occurs when the handler chain of a channel fails to set up.
// The channel is torn down before this error reaches the caller.
type PipelineInitError struct {
	Err error
}

func (e *PipelineInitError) Error() string {
	return fmt.Sprintf("gchannel: pipeline initialization failed: %v", e.Err)
}

func (e *PipelineInitError) Unwrap() error { return e.Err }

// HandlerError wraps an error raised by a handler hook.
type HandlerError struct {
	Handler string
	Hook    string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("gchannel: handler %s failed in %s: %v", e.Handler, e.Hook, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TransportError wraps a failure of the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gchannel: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
