package wsframe

import "encoding/binary"

// HeaderBuf is a fixed-size buffer large enough to hold any encoded frame
// header. EncodeHeader never allocates; it writes into one of these and
// returns how many of its bytes are in use.
type HeaderBuf [MaxHeaderLength]byte

// EncodeHeader writes fi's header fields into a HeaderBuf and returns the
// buffer along with the number of leading bytes that are actually part of
// the header. It never returns an error: this package's FrameSizeMode
// governs what the decoder accepts, not what the encoder can produce, and
// fi.PayloadLength's type (a uint64-backed PayloadLength) is always
// representable in the 64-bit extended length field if the caller chooses
// to use it.
func EncodeHeader(fi FrameInfo) (HeaderBuf, int) {
	var buf HeaderBuf
	n := 0

	byte0 := byte(fi.Opcode) & 0x0F
	if fi.Fin {
		byte0 |= 0x80
	}
	byte0 |= (fi.Reserved & 0x07) << 4
	buf[0] = byte0
	n++

	byte1 := byte(0)
	if fi.Masked {
		byte1 |= 0x80
	}

	switch {
	case fi.PayloadLength <= 125:
		byte1 |= byte(fi.PayloadLength)
		buf[1] = byte1
		n++
	case fi.PayloadLength <= 0xFFFF:
		byte1 |= 126
		buf[1] = byte1
		n++
		binary.BigEndian.PutUint16(buf[n:n+2], uint16(fi.PayloadLength))
		n += 2
	default:
		byte1 |= 127
		buf[1] = byte1
		n++
		binary.BigEndian.PutUint64(buf[n:n+8], uint64(fi.PayloadLength))
		n += 8
	}

	if fi.Masked {
		copy(buf[n:n+4], fi.Mask[:])
		n += 4
	}

	return buf, n
}
