package wsframe

import "encoding/binary"

// smallBuf is a fixed-capacity byte accumulator with a running length,
// used by Decoder to gather header fields that may arrive split across
// multiple AddData calls. It never allocates: its backing array is inline
// in the Decoder struct.
type smallBuf struct {
	data [8]byte
	len  int
	cap  int
}

func (b *smallBuf) reset(capacity int) {
	b.len = 0
	b.cap = capacity
}

// slurp copies as much of data as fits into the remaining capacity and
// returns how many bytes it took.
func (b *smallBuf) slurp(data []byte) int {
	n := b.cap - b.len
	if n > len(data) {
		n = len(data)
	}
	copy(b.data[b.len:], data[:n])
	b.len += n
	return n
}

func (b *smallBuf) full() bool {
	return b.len >= b.cap
}

func (b *smallBuf) bytes() []byte {
	return b.data[:b.len]
}

type decoderState int

const (
	decStateHeaderBeginning decoderState = iota
	decStatePayloadLength16
	decStatePayloadLength64
	decStateMaskingKey
	decStatePayloadData
)

// Decoder is a sans-I/O, allocation-free push parser for the WebSocket
// frame layer (RFC 6455 section 5.2). It holds no buffered payload: data
// bytes are unmasked in place in the caller's own slice and handed back as
// index ranges via AddData's return value, never copied or retained.
//
// The zero value is not usable; construct with NewDecoder.
type Decoder struct {
	mode FrameSizeMode

	state decoderState
	acc   smallBuf

	fin      bool
	reserved uint8
	opcode   Opcode
	masked   bool
	mask     [4]byte

	payloadLength uint64
	remaining     uint64
	phase         uint8

	latched Opcode
}

// NewDecoder constructs a Decoder ready to parse a new stream of frames.
// mode controls whether the 64-bit extended payload length tag is
// accepted.
func NewDecoder(mode FrameSizeMode) *Decoder {
	d := &Decoder{mode: mode}
	d.acc.reset(2)
	return d
}

// EOFValid reports whether the decoder is at a point where the underlying
// connection may be closed without that being a protocol violation: i.e.
// it has not consumed any bytes of a frame header yet.
func (d *Decoder) EOFValid() bool {
	return d.state == decStateHeaderBeginning && d.acc.len == 0
}

func (d *Decoder) currentFrameInfo() FrameInfo {
	return FrameInfo{
		Opcode:        d.opcode,
		PayloadLength: PayloadLength(d.payloadLength),
		Mask:          d.mask,
		Masked:        d.masked,
		Fin:           d.fin,
		Reserved:      d.reserved,
	}
}

// originalOpcodeForCurrentFrame resolves the opcode frame events should
// report: the frame's own opcode, except for Continuation frames, which
// report the opcode latched by the most recent fragment-starting data
// frame.
func (d *Decoder) originalOpcodeForCurrentFrame() Opcode {
	if d.opcode == OpcodeContinuation {
		return d.latched
	}
	return d.opcode
}

func (d *Decoder) onFrameStart() {
	if d.opcode != OpcodeContinuation && d.opcode.IsData() {
		d.latched = d.opcode
	}
}

func (d *Decoder) onFrameEnd() {
	if d.opcode.IsData() && d.fin {
		d.latched = OpcodeContinuation
	}
}

func (d *Decoder) startPayloadData() {
	d.remaining = d.payloadLength
	d.phase = 0
	d.state = decStatePayloadData
	d.onFrameStart()
}

// finishedHeaderFields is called once fin/reserved/opcode/masked/
// payloadLength are all known, to decide whether a MaskingKey step is
// still needed before payload data can begin.
func (d *Decoder) finishedHeaderFields() (startedPayload bool) {
	if d.masked {
		d.acc.reset(4)
		d.state = decStateMaskingKey
		return false
	}
	d.startPayloadData()
	return true
}

// AddData feeds input bytes into the decoder and reports how many of them
// were consumed along with, at most, one event. Call it repeatedly,
// advancing past ConsumedBytes each time, until it returns a result with
// ConsumedBytes == 0 and Event == nil, at which point more input is
// required before further progress can be made (except that EOFValid may
// then be checked to see whether stopping altogether is acceptable).
func (d *Decoder) AddData(data []byte) (AddDataResult, error) {
	if len(data) == 0 {
		if d.state == decStatePayloadData && d.remaining == 0 {
			return d.finishFrame(), nil
		}
		return AddDataResult{}, nil
	}

	switch d.state {
	case decStateHeaderBeginning:
		n := d.acc.slurp(data)
		if !d.acc.full() {
			return AddDataResult{ConsumedBytes: n}, nil
		}
		b0, b1 := d.acc.data[0], d.acc.data[1]
		d.fin = b0&0x80 != 0
		d.reserved = (b0 >> 4) & 0x07
		d.opcode = Opcode(b0 & 0x0F)
		d.masked = b1&0x80 != 0
		lengthTag := b1 & 0x7F

		switch {
		case lengthTag <= 125:
			d.payloadLength = uint64(lengthTag)
			if started := d.finishedHeaderFields(); started {
				return AddDataResult{ConsumedBytes: n, Event: d.startEvent()}, nil
			}
			return AddDataResult{ConsumedBytes: n}, nil
		case lengthTag == 126:
			d.acc.reset(2)
			d.state = decStatePayloadLength16
			return AddDataResult{ConsumedBytes: n}, nil
		default: // 127
			if d.mode == FrameSizeSmall {
				d.acc.reset(2)
				d.state = decStateHeaderBeginning
				return AddDataResult{ConsumedBytes: n}, ErrExceededFrameSize
			}
			d.acc.reset(8)
			d.state = decStatePayloadLength64
			return AddDataResult{ConsumedBytes: n}, nil
		}

	case decStatePayloadLength16:
		n := d.acc.slurp(data)
		if !d.acc.full() {
			return AddDataResult{ConsumedBytes: n}, nil
		}
		d.payloadLength = uint64(binary.BigEndian.Uint16(d.acc.bytes()))
		if started := d.finishedHeaderFields(); started {
			return AddDataResult{ConsumedBytes: n, Event: d.startEvent()}, nil
		}
		return AddDataResult{ConsumedBytes: n}, nil

	case decStatePayloadLength64:
		n := d.acc.slurp(data)
		if !d.acc.full() {
			return AddDataResult{ConsumedBytes: n}, nil
		}
		d.payloadLength = binary.BigEndian.Uint64(d.acc.bytes())
		if started := d.finishedHeaderFields(); started {
			return AddDataResult{ConsumedBytes: n, Event: d.startEvent()}, nil
		}
		return AddDataResult{ConsumedBytes: n}, nil

	case decStateMaskingKey:
		n := d.acc.slurp(data)
		if !d.acc.full() {
			return AddDataResult{ConsumedBytes: n}, nil
		}
		copy(d.mask[:], d.acc.bytes())
		d.startPayloadData()
		return AddDataResult{ConsumedBytes: n, Event: d.startEvent()}, nil

	case decStatePayloadData:
		if d.remaining == 0 {
			return d.finishFrame(), nil
		}
		maxLen := len(data)
		if uint64(maxLen) > d.remaining {
			maxLen = int(d.remaining)
		}
		chunk := data[:maxLen]
		if d.masked {
			d.phase = ApplyMask(d.mask, chunk, d.phase)
		}
		d.remaining -= uint64(maxLen)
		return AddDataResult{
			ConsumedBytes: maxLen,
			Event: &WebsocketFrameEvent{
				Kind:           FrameEventPayloadChunk,
				OriginalOpcode: d.originalOpcodeForCurrentFrame(),
			},
		}, nil
	}

	panic("wsframe: unreachable decoder state")
}

func (d *Decoder) startEvent() *WebsocketFrameEvent {
	return &WebsocketFrameEvent{
		Kind:           FrameEventStart,
		Info:           d.currentFrameInfo(),
		OriginalOpcode: d.originalOpcodeForCurrentFrame(),
	}
}

func (d *Decoder) finishFrame() AddDataResult {
	info := d.currentFrameInfo()
	orig := d.originalOpcodeForCurrentFrame()
	d.onFrameEnd()
	d.state = decStateHeaderBeginning
	d.acc.reset(2)
	return AddDataResult{
		Event: &WebsocketFrameEvent{
			Kind:           FrameEventEnd,
			Info:           info,
			OriginalOpcode: orig,
		},
	}
}
