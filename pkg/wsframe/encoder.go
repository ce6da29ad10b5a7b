package wsframe

// Encoder produces the wire bytes for WebSocket frames without performing
// any I/O itself. StartFrame returns the header bytes to write;
// TransformFramePayload masks (or, for unmasked frames, leaves alone) the
// payload in place so the caller can write the same buffer it was given.
//
// The zero value is not usable; construct with NewEncoder.
type Encoder struct {
	mask     [4]byte
	hasPhase bool
	phase    uint8
}

// NewEncoder constructs an Encoder with no frame in progress.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// StartFrame begins a new frame and returns its header bytes. fi.Masked
// must agree with whether the caller intends to call
// TransformFramePayload for this frame's payload: masked frames need it
// called over every payload byte before the bytes are written; unmasked
// frames do not need it called at all (though calling it is harmless,
// since TransformNeeded will report false and TransformFramePayload is a
// no-op in that case).
func (e *Encoder) StartFrame(fi FrameInfo) (HeaderBuf, int) {
	if fi.Masked {
		e.mask = fi.Mask
		e.hasPhase = true
		e.phase = 0
	} else {
		e.hasPhase = false
	}
	return EncodeHeader(fi)
}

// TransformNeeded reports whether the frame currently being written needs
// TransformFramePayload called over its payload bytes before they are
// written to the wire.
func (e *Encoder) TransformNeeded() bool {
	return e.hasPhase
}

// TransformFramePayload masks data in place, advancing the encoder's
// internal phase so a later call continues the mask pattern correctly.
// It may be called several times in a row over successive chunks of one
// frame's payload, in order.
func (e *Encoder) TransformFramePayload(data []byte) {
	if !e.hasPhase {
		return
	}
	e.phase = ApplyMask(e.mask, data, e.phase)
}

// RollbackPayloadTransform undoes the phase advancement from the most
// recent nBytes passed to TransformFramePayload, without needing to see
// those bytes again. It is for the case where TransformFramePayload was
// called and some of the resulting masked bytes were then never actually
// written (e.g. a short write): call this with the number of bytes that
// were transformed but not written, then pass the original plaintext of
// those bytes to TransformFramePayload again and write the result. The
// masking itself is not undone here — only the phase bookkeeping is;
// passing the already-masked bytes in again would unmask them instead,
// since XOR is its own inverse.
func (e *Encoder) RollbackPayloadTransform(nBytes int) {
	if !e.hasPhase {
		return
	}
	back := uint8(nBytes % 4)
	e.phase = (e.phase + 4 - back) % 4
}
