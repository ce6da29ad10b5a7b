package wsframe

// MaskKeyGenerator supplies a fresh masking key for each frame a client
// role MessageEncoder writes. Typical implementations read from
// crypto/rand; tests may supply a fixed key.
type MaskKeyGenerator func() [4]byte

// MessageEncoder is a convenience layered on Encoder for writing whole
// data or control messages, optionally fragmented across several frames,
// without hand-assembling a FrameInfo at every call site. Like Encoder it
// performs no I/O and queues nothing: each method returns header bytes
// the caller is expected to write immediately, or mutates a payload slice
// in place for the caller to write immediately after.
//
// This type has no counterpart ported from anywhere: the original
// implementation's message-level encoder (message_encoding.rs) is an
// unfinished stub with todo!() bodies for nearly every event, so this is
// an original design built directly on top of Encoder and this package's
// message-level types.
type MessageEncoder struct {
	enc        Encoder
	maskKeyGen MaskKeyGenerator // nil for server role: frames go out unmasked.
}

// NewServerMessageEncoder returns a MessageEncoder that writes unmasked
// frames, as RFC 6455 requires of a server.
func NewServerMessageEncoder() *MessageEncoder {
	return &MessageEncoder{}
}

// NewClientMessageEncoder returns a MessageEncoder that masks every frame
// using a fresh key from gen, as RFC 6455 requires of a client.
func NewClientMessageEncoder(gen MaskKeyGenerator) *MessageEncoder {
	return &MessageEncoder{maskKeyGen: gen}
}

// StartMessage begins a new (possibly single-frame) data message and
// returns the header bytes for its first frame. Pass fin=false if the
// message will continue across one or more ContinueMessage calls.
func (e *MessageEncoder) StartMessage(opcode Opcode, payloadLength PayloadLength, fin bool) (HeaderBuf, int) {
	return e.startFrame(opcode, payloadLength, fin, 0)
}

// ContinueMessage starts a Continuation frame carrying the next fragment
// of a message previously begun with StartMessage(fin=false).
func (e *MessageEncoder) ContinueMessage(payloadLength PayloadLength, fin bool) (HeaderBuf, int) {
	return e.startFrame(OpcodeContinuation, payloadLength, fin, 0)
}

// StartControl begins a control frame (Close, Ping, or Pong). payloadLength
// must be at most MaxControlFramePayload.
func (e *MessageEncoder) StartControl(opcode Opcode, payloadLength PayloadLength) (HeaderBuf, int) {
	return e.startFrame(opcode, payloadLength, true, 0)
}

func (e *MessageEncoder) startFrame(opcode Opcode, payloadLength PayloadLength, fin bool, reserved uint8) (HeaderBuf, int) {
	fi := FrameInfo{
		Opcode:        opcode,
		PayloadLength: payloadLength,
		Fin:           fin,
		Reserved:      reserved,
	}
	if e.maskKeyGen != nil {
		fi.Masked = true
		fi.Mask = e.maskKeyGen()
	}
	return e.enc.StartFrame(fi)
}

// TransformPayload masks the current frame's payload in place (a no-op
// for a server-role encoder). Call it over the whole payload, or in
// successive chunks in order, before writing the bytes.
func (e *MessageEncoder) TransformPayload(data []byte) {
	e.enc.TransformFramePayload(data)
}

// RollbackPayloadTransform undoes the phase advancement of the most
// recent nBytes passed to TransformPayload that ended up not being
// written, matching Encoder.RollbackPayloadTransform.
func (e *MessageEncoder) RollbackPayloadTransform(nBytes int) {
	e.enc.RollbackPayloadTransform(nBytes)
}

// TransformNeeded reports whether TransformPayload does anything for the
// frame currently being written.
func (e *MessageEncoder) TransformNeeded() bool {
	return e.enc.TransformNeeded()
}
