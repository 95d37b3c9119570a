// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pipeline"
)

// StringCodec turns inbound frames into strings and outbound strings into bytes.
type StringCodec struct {
	pipeline.BaseHandler
}

// NewStringCodec returns a StringCodec, it keeps no state and may be shared between channels.
func NewStringCodec() *StringCodec {
	return new(StringCodec)
}

// Decode converts []byte into string, other messages pass through.
func (*StringCodec) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	if b, ok := in.([]byte); ok {
		out.Add(string(b))
		return nil
	}
	out.Add(in)
	return nil
}

// Encode converts string into []byte, other messages pass through.
func (*StringCodec) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	if s, ok := msg.(string); ok {
		out.Add([]byte(s))
		return nil
	}
	out.Add(msg)
	return nil
}

// DatagramPacketEncoder sits at the head of the pipeline of a datagram channel: every datagram
// leaves the channel exactly as it was handed in, one write per datagram.
type DatagramPacketEncoder struct {
	pipeline.BaseHandler
}

// NewDatagramPacketEncoder returns a DatagramPacketEncoder.
func NewDatagramPacketEncoder() *DatagramPacketEncoder {
	return new(DatagramPacketEncoder)
}

// Encode passes []byte and string through and rejects everything else.
func (*DatagramPacketEncoder) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	switch msg.(type) {
	case []byte, string:
		out.Add(msg)
		return nil
	}
	return fmt.Errorf("%w: %T is not a datagram", errorx.ErrUnencodable, msg)
}
