// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package codec provides frame codecs and the idle state handler, all of them are pipeline handlers.
//
// The frame decoders cumulate the raw bytes of a channel until a frame is complete, so an instance
// keeps per-channel state and must not be shared between channels: create the handlers inside the
// pipeline.Initializer.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pipeline"
	"github.com/panjf2000/gchannel/pool/bytebuffer"
)

// DefaultMaxFrameLength bounds the bytes a decoder buffers while waiting for the end of a frame.
const DefaultMaxFrameLength = 1 << 20

// CRLFByte represents a byte of CRLF.
var CRLFByte = byte('\n')

// cumulator buffers the bytes of incomplete frames.
// Decode and OnClosed may run on different goroutines, mu serializes them.
type cumulator struct {
	mu             sync.Mutex
	buf            *bytebuffer.ByteBuffer
	maxFrameLength int
}

// SetMaxFrameLength changes the limit of buffered bytes, n <= 0 restores DefaultMaxFrameLength.
func (cu *cumulator) SetMaxFrameLength(n int) {
	cu.maxFrameLength = n
}

func (cu *cumulator) limit() int {
	if cu.maxFrameLength <= 0 {
		return DefaultMaxFrameLength
	}
	return cu.maxFrameLength
}

// cumulate appends in to the buffered bytes and returns all of them.
func (cu *cumulator) cumulate(in interface{}) ([]byte, error) {
	var data []byte
	switch v := in.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil, fmt.Errorf("codec: cannot decode %T", in)
	}
	if cu.buf == nil {
		cu.buf = bytebuffer.Get()
	}
	_, _ = cu.buf.Write(data)
	return cu.buf.B, nil
}

// consume drops the first n buffered bytes, which have been turned into frames.
func (cu *cumulator) consume(n int) error {
	if cu.buf == nil {
		return nil
	}
	bytebuffer.Discard(cu.buf, n)
	if cu.buf.Len() > cu.limit() {
		cu.buf.Reset()
		return errorx.ErrFrameTooLong
	}
	if cu.buf.Len() == 0 {
		cu.release()
	}
	return nil
}

func (cu *cumulator) release() {
	bytebuffer.Put(cu.buf)
	cu.buf = nil
}

func toBytes(msg interface{}) ([]byte, bool) {
	switch v := msg.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

func frame(b []byte) []byte {
	return append([]byte(nil), b...)
}

// LineBasedFrameCodec splits the stream on '\n', a trailing '\r' is stripped as well.
type LineBasedFrameCodec struct {
	pipeline.BaseHandler
	cumulator
}

// NewLineBasedFrameCodec instantiates and returns a codec splitting lines.
func NewLineBasedFrameCodec() *LineBasedFrameCodec {
	return new(LineBasedFrameCodec)
}

// Encode appends '\n' to every outgoing []byte or string.
func (cc *LineBasedFrameCodec) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	if buf, ok := toBytes(msg); ok {
		out.Add(append(frame(buf), CRLFByte))
		return nil
	}
	out.Add(msg)
	return nil
}

// Decode emits every complete line without its terminator.
func (cc *LineBasedFrameCodec) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	data, err := cc.cumulate(in)
	if err != nil {
		return err
	}
	var consumed int
	for {
		idx := bytes.IndexByte(data[consumed:], CRLFByte)
		if idx < 0 {
			break
		}
		line := data[consumed : consumed+idx]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		out.Add(frame(line))
		consumed += idx + 1
	}
	return cc.consume(consumed)
}

// OnClosed gives the cumulation buffer back.
func (cc *LineBasedFrameCodec) OnClosed(pipeline.Channel) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.release()
	return nil
}

// DelimiterBasedFrameCodec splits the stream on a delimiter byte.
type DelimiterBasedFrameCodec struct {
	pipeline.BaseHandler
	cumulator
	delimiter byte
}

// NewDelimiterBasedFrameCodec instantiates and returns a codec with a specific delimiter.
func NewDelimiterBasedFrameCodec(delimiter byte) *DelimiterBasedFrameCodec {
	return &DelimiterBasedFrameCodec{delimiter: delimiter}
}

// Encode appends the delimiter to every outgoing []byte or string.
func (cc *DelimiterBasedFrameCodec) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	if buf, ok := toBytes(msg); ok {
		out.Add(append(frame(buf), cc.delimiter))
		return nil
	}
	out.Add(msg)
	return nil
}

// Decode emits every complete frame without the delimiter.
func (cc *DelimiterBasedFrameCodec) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	data, err := cc.cumulate(in)
	if err != nil {
		return err
	}
	var consumed int
	for {
		idx := bytes.IndexByte(data[consumed:], cc.delimiter)
		if idx < 0 {
			break
		}
		out.Add(frame(data[consumed : consumed+idx]))
		consumed += idx + 1
	}
	return cc.consume(consumed)
}

// OnClosed gives the cumulation buffer back.
func (cc *DelimiterBasedFrameCodec) OnClosed(pipeline.Channel) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.release()
	return nil
}

// FixedLengthFrameCodec splits the stream into frames of a fixed length.
type FixedLengthFrameCodec struct {
	pipeline.BaseHandler
	cumulator
	frameLength int
}

// NewFixedLengthFrameCodec instantiates and returns a codec with fixed length.
func NewFixedLengthFrameCodec(frameLength int) *FixedLengthFrameCodec {
	return &FixedLengthFrameCodec{frameLength: frameLength}
}

// Encode checks that the outgoing bytes are made of whole frames.
func (cc *FixedLengthFrameCodec) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	if buf, ok := toBytes(msg); ok && len(buf)%cc.frameLength != 0 {
		return errorx.ErrInvalidFixedLength
	}
	out.Add(msg)
	return nil
}

// Decode emits every complete frame.
func (cc *FixedLengthFrameCodec) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.frameLength <= 0 {
		return errorx.ErrInvalidFixedLength
	}
	data, err := cc.cumulate(in)
	if err != nil {
		return err
	}
	var consumed int
	for len(data)-consumed >= cc.frameLength {
		out.Add(frame(data[consumed : consumed+cc.frameLength]))
		consumed += cc.frameLength
	}
	return cc.consume(consumed)
}

// OnClosed gives the cumulation buffer back.
func (cc *FixedLengthFrameCodec) OnClosed(pipeline.Channel) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.release()
	return nil
}

// EncoderConfig config for encoder.
type EncoderConfig struct {
	// ByteOrder is the ByteOrder of the length field.
	ByteOrder binary.ByteOrder
	// LengthFieldLength is the length of the length field.
	LengthFieldLength int
	// LengthAdjustment is the compensation value to add to the value of the length field
	LengthAdjustment int
	// LengthIncludesLengthFieldLength is true, the length of the prepended length field is added to the value of the prepended length field
	LengthIncludesLengthFieldLength bool
}

// DecoderConfig config for decoder.
type DecoderConfig struct {
	// ByteOrder is the ByteOrder of the length field.
	ByteOrder binary.ByteOrder
	// LengthFieldOffset is the offset of the length field
	LengthFieldOffset int
	// LengthFieldLength is the length of the length field
	LengthFieldLength int
	// LengthAdjustment is the compensation value to add to the value of the length field
	LengthAdjustment int
	// InitialBytesToStrip is the number of first bytes to strip out from the decoded frame
	InitialBytesToStrip int
}

// LengthFieldBasedFrameCodec is the codec in which the length of a frame is carried by a field of its header.
type LengthFieldBasedFrameCodec struct {
	pipeline.BaseHandler
	cumulator
	encoderConfig EncoderConfig
	decoderConfig DecoderConfig
}

// NewLengthFieldBasedFrameCodec instantiates and returns a codec based on the length field.
// It is the go implementation of netty LengthFieldBasedFrameDecoder and LengthFieldPrepender.
// you can see javadoc of them to learn more details.
func NewLengthFieldBasedFrameCodec(encoderConfig EncoderConfig, decoderConfig DecoderConfig) *LengthFieldBasedFrameCodec {
	return &LengthFieldBasedFrameCodec{encoderConfig: encoderConfig, decoderConfig: decoderConfig}
}

// Encode prepends the length field to every outgoing []byte or string.
func (cc *LengthFieldBasedFrameCodec) Encode(_ pipeline.Channel, msg interface{}, out *pipeline.Output) error {
	buf, ok := toBytes(msg)
	if !ok {
		out.Add(msg)
		return nil
	}

	length := len(buf) + cc.encoderConfig.LengthAdjustment
	if cc.encoderConfig.LengthIncludesLengthFieldLength {
		length += cc.encoderConfig.LengthFieldLength
	}
	if length < 0 {
		return errorx.ErrTooLessLength
	}

	var header []byte
	switch cc.encoderConfig.LengthFieldLength {
	case 1:
		if length >= 256 {
			return fmt.Errorf("length does not fit into a byte: %d", length)
		}
		header = []byte{byte(length)}
	case 2:
		if length >= 65536 {
			return fmt.Errorf("length does not fit into a short integer: %d", length)
		}
		header = make([]byte, 2)
		cc.encoderConfig.ByteOrder.PutUint16(header, uint16(length))
	case 3:
		if length >= 16777216 {
			return fmt.Errorf("length does not fit into a medium integer: %d", length)
		}
		header = writeUint24(cc.encoderConfig.ByteOrder, length)
	case 4:
		header = make([]byte, 4)
		cc.encoderConfig.ByteOrder.PutUint32(header, uint32(length))
	case 8:
		header = make([]byte, 8)
		cc.encoderConfig.ByteOrder.PutUint64(header, uint64(length))
	default:
		return errorx.ErrUnsupportedLength
	}

	out.Add(append(header, buf...))
	return nil
}

// Decode emits every complete frame, InitialBytesToStrip bytes are cut off its front.
func (cc *LengthFieldBasedFrameCodec) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	data, err := cc.cumulate(in)
	if err != nil {
		return err
	}
	dc := cc.decoderConfig
	headerLength := dc.LengthFieldOffset + dc.LengthFieldLength

	var consumed int
	for len(data)-consumed >= headerLength {
		rest := data[consumed:]
		frameLength, err := cc.unadjustedFrameLength(rest[dc.LengthFieldOffset:headerLength])
		if err != nil {
			_ = cc.consume(len(data))
			return err
		}
		total := int64(headerLength) + int64(frameLength) + int64(dc.LengthAdjustment)
		if total < int64(headerLength) {
			_ = cc.consume(len(data))
			return errorx.ErrTooLessLength
		}
		if total > int64(cc.limit()) {
			_ = cc.consume(len(data))
			return errorx.ErrFrameTooLong
		}
		if int64(len(rest)) < total {
			break
		}
		if dc.InitialBytesToStrip > int(total) {
			_ = cc.consume(len(data))
			return errorx.ErrTooLessLength
		}
		out.Add(frame(rest[dc.InitialBytesToStrip:total]))
		consumed += int(total)
	}
	return cc.consume(consumed)
}

func (cc *LengthFieldBasedFrameCodec) unadjustedFrameLength(lenBuf []byte) (uint64, error) {
	switch cc.decoderConfig.LengthFieldLength {
	case 1:
		return uint64(lenBuf[0]), nil
	case 2:
		return uint64(cc.decoderConfig.ByteOrder.Uint16(lenBuf)), nil
	case 3:
		return readUint24(cc.decoderConfig.ByteOrder, lenBuf), nil
	case 4:
		return uint64(cc.decoderConfig.ByteOrder.Uint32(lenBuf)), nil
	case 8:
		return cc.decoderConfig.ByteOrder.Uint64(lenBuf), nil
	default:
		return 0, errorx.ErrUnsupportedLength
	}
}

// OnClosed gives the cumulation buffer back.
func (cc *LengthFieldBasedFrameCodec) OnClosed(pipeline.Channel) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.release()
	return nil
}

func readUint24(byteOrder binary.ByteOrder, b []byte) uint64 {
	_ = b[2]
	if byteOrder == binary.LittleEndian {
		return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16
	}
	return uint64(b[2]) | uint64(b[1])<<8 | uint64(b[0])<<16
}

func writeUint24(byteOrder binary.ByteOrder, v int) []byte {
	b := make([]byte, 3)
	if byteOrder == binary.LittleEndian {
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
	} else {
		b[2] = byte(v)
		b[1] = byte(v >> 8)
		b[0] = byte(v >> 16)
	}
	return b
}
