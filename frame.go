package ctcp

import (
	"encoding/binary"
	"fmt"
)

// sizeHeader is the fixed cTCP header length in bytes: seqno(4) ackno(4)
// len(2) flags(2) window(2) cksum(2).
const sizeHeader = 16

// Frame is a thin, allocation-free view over a wire-format cTCP segment: a
// buffer plus typed accessor methods, all fields stored network-byte-order
// on the wire.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a Frame. buf must be at least sizeHeader bytes;
// callers should slice buf to the segment's declared Len before trusting
// Payload.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errBufferTooSmall
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) Seq() Value  { return Value(binary.BigEndian.Uint32(f.buf[0:4])) }
func (f Frame) Ack() Value  { return Value(binary.BigEndian.Uint32(f.buf[4:8])) }
func (f Frame) Len() uint16 { return binary.BigEndian.Uint16(f.buf[8:10]) }
func (f Frame) FlagBits() Flags {
	return Flags(binary.BigEndian.Uint16(f.buf[10:12]))
}
func (f Frame) Window() uint16 { return binary.BigEndian.Uint16(f.buf[12:14]) }
func (f Frame) CRC() uint16    { return binary.BigEndian.Uint16(f.buf[14:16]) }

func (f Frame) SetSeq(v Value)    { binary.BigEndian.PutUint32(f.buf[0:4], uint32(v)) }
func (f Frame) SetAck(v Value)    { binary.BigEndian.PutUint32(f.buf[4:8], uint32(v)) }
func (f Frame) SetLen(v uint16)   { binary.BigEndian.PutUint16(f.buf[8:10], v) }
func (f Frame) SetFlags(v Flags)  { binary.BigEndian.PutUint16(f.buf[10:12], uint16(v)) }
func (f Frame) SetWindow(v uint16) { binary.BigEndian.PutUint16(f.buf[12:14], v) }
func (f Frame) SetCRC(v uint16)   { binary.BigEndian.PutUint16(f.buf[14:16], v) }

// Payload returns the data bytes following the fixed header, up to the
// frame's declared Len. Panics if the buffer is shorter than Len; callers
// must check the buffer length against Len first, as decodeSegment does.
func (f Frame) Payload() []byte {
	return f.buf[sizeHeader:f.Len()]
}

// ClearHeader zeros the fixed header, used before checksum computation.
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

func (f Frame) String() string {
	return fmt.Sprintf("seq=%d ack=%d len=%d win=%d %s",
		f.Seq(), f.Ack(), f.Len(), f.Window(), f.FlagBits())
}

// computeChecksum returns the Internet (RFC 791 one's-complement) checksum
// of the frame's first Len bytes with the cksum field treated as zero.
func computeChecksum(buf []byte, length uint16) uint16 {
	f, _ := NewFrame(buf[:length])
	saved := f.CRC()
	f.SetCRC(0)
	sum := internetChecksum(f.buf[:length])
	f.SetCRC(saved)
	return sum
}

// encodeSegment serializes seg into buf (which must be at least
// sizeHeader+len(data) bytes), computes and stores the checksum, and
// returns the total wire length.
func encodeSegment(buf []byte, seg wireSegment, data []byte) (uint16, error) {
	total := sizeHeader + len(data)
	if total > len(buf) || total > 1<<16-1 {
		return 0, errShortBuffer
	}
	f, err := NewFrame(buf[:total])
	if err != nil {
		return 0, err
	}
	f.ClearHeader()
	f.SetSeq(seg.seq)
	f.SetAck(seg.ack)
	f.SetLen(uint16(total))
	f.SetFlags(seg.flags)
	f.SetWindow(seg.window)
	copy(f.buf[sizeHeader:], data)
	f.SetCRC(computeChecksum(f.buf, uint16(total)))
	return uint16(total), nil
}

// wireSegment is the parsed header of a received or about-to-be-sent
// segment, independent of where its bytes live (unlike [Frame], which is a
// view over a live buffer).
type wireSegment struct {
	seq    Value
	ack    Value
	flags  Flags
	window uint16
}

// decodeSegment validates and parses the first header of raw, which was
// received with actualLen bytes (possibly fewer than the segment's
// declared length, e.g. a truncated datagram). On success it returns the
// parsed header and the data payload slice (sharing raw's backing array).
func decodeSegment(raw []byte, actualLen int) (seg wireSegment, payload []byte, err error) {
	if actualLen < sizeHeader {
		return wireSegment{}, nil, errShortBuffer
	}
	f, err := NewFrame(raw[:actualLen])
	if err != nil {
		return wireSegment{}, nil, err
	}
	declared := f.Len()
	if actualLen < int(declared) || int(declared) < sizeHeader {
		return wireSegment{}, nil, errShortBuffer
	}
	gotCRC := f.CRC()
	wantCRC := computeChecksum(raw, declared)
	if gotCRC != wantCRC {
		return wireSegment{}, nil, errBadChecksum
	}
	seg = wireSegment{
		seq:    f.Seq(),
		ack:    f.Ack(),
		flags:  f.FlagBits(),
		window: f.Window(),
	}
	return seg, f.buf[sizeHeader:declared], nil
}
