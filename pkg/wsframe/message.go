package wsframe

// MessageDecoder layers RFC 6455's message-level rules on top of a
// Decoder: reserved-bit rejection, masking-direction enforcement,
// fragmentation continuity, and control-frame constraints. It turns frame
// events into data-message and control-message events.
//
// The original frame decoder this package is built around never gained a
// finished message-decoding counterpart (its message_decoding.rs is an
// unfinished stub), so MessageDecoder's state machine below is this
// package's own design, built directly from RFC 6455's message-assembly
// rules rather than ported from anywhere.
type MessageDecoder struct {
	frame  *Decoder
	policy MaskingPolicy

	inFragmentedMessage bool
	fragmentedOpcode    Opcode
}

// NewMessageDecoder constructs a MessageDecoder wrapping a freshly
// constructed frame Decoder in the given FrameSizeMode, enforcing policy
// on every frame's masking direction.
func NewMessageDecoder(mode FrameSizeMode, policy MaskingPolicy) *MessageDecoder {
	return &MessageDecoder{
		frame:  NewDecoder(mode),
		policy: policy,
	}
}

// EOFValid delegates to the underlying frame Decoder.
func (m *MessageDecoder) EOFValid() bool {
	return m.frame.EOFValid()
}

// MessageAddDataResult is returned by MessageDecoder.AddData. Its
// ConsumedBytes contract is identical to Decoder.AddData's.
type MessageAddDataResult struct {
	ConsumedBytes int
	Event         *WebsocketMessageEvent
}

// AddData feeds input into the underlying frame decoder and reports at most
// one message event. While the frame decoder makes progress without a
// message event to report (a header split into several steps, or the End
// of an intermediate fragment, which has no message event of its own), it
// keeps feeding the rest of data, so a header that is complete in data
// reaches the message-level checks within one call.
func (m *MessageDecoder) AddData(data []byte) (MessageAddDataResult, error) {
	res, err := m.frame.AddData(data)
	if err != nil {
		return MessageAddDataResult{ConsumedBytes: res.ConsumedBytes}, &FrameError{Err: err}
	}
	if res.Event == nil {
		if res.ConsumedBytes > 0 && res.ConsumedBytes < len(data) {
			more, err := m.AddData(data[res.ConsumedBytes:])
			more.ConsumedBytes += res.ConsumedBytes
			return more, err
		}
		return MessageAddDataResult{ConsumedBytes: res.ConsumedBytes}, nil
	}

	ev, err := m.translate(*res.Event)
	if err != nil {
		return MessageAddDataResult{ConsumedBytes: res.ConsumedBytes}, err
	}
	if ev == nil {
		more, err := m.AddData(data[res.ConsumedBytes:])
		more.ConsumedBytes += res.ConsumedBytes
		return more, err
	}
	return MessageAddDataResult{ConsumedBytes: res.ConsumedBytes, Event: ev}, nil
}

func (m *MessageDecoder) translate(fev WebsocketFrameEvent) (*WebsocketMessageEvent, error) {
	switch fev.Kind {
	case FrameEventStart:
		return m.onFrameStart(fev.Info)
	case FrameEventPayloadChunk:
		return m.onFramePayloadChunk(fev.OriginalOpcode)
	case FrameEventEnd:
		return m.onFrameEnd(fev.Info, fev.OriginalOpcode)
	}
	panic("wsframe: unreachable frame event kind")
}

func (m *MessageDecoder) checkMaskingPolicy(masked bool) error {
	switch m.policy {
	case RequireMasked:
		if !masked {
			return &MaskingPolicyViolationError{Err: ErrMaskRequired}
		}
	case RequireUnmasked:
		if masked {
			return &MaskingPolicyViolationError{Err: ErrMaskNotAllowed}
		}
	}
	return nil
}

func (m *MessageDecoder) onFrameStart(info FrameInfo) (*WebsocketMessageEvent, error) {
	if info.Reserved != 0 {
		return nil, &ProtocolError{Err: ErrReservedBitsSet}
	}
	if err := m.checkMaskingPolicy(info.Masked); err != nil {
		return nil, err
	}
	if info.Opcode.IsControl() {
		if info.Opcode.IsReserved() {
			return nil, &ProtocolError{Err: ErrInvalidOpcode}
		}
		if !info.Fin {
			return nil, &ProtocolError{Err: ErrFragmentedControlFrame}
		}
		if info.PayloadLength > MaxControlFramePayload {
			return nil, &ProtocolError{Err: ErrControlFrameTooLarge}
		}
		ev := &WebsocketMessageEvent{
			Kind: MessageEventControl,
			Control: WebsocketControlMessageEvent{
				Kind:   ControlMessageStart,
				Opcode: info.Opcode,
			},
		}
		return ev, nil
	}

	// Data frame (including Continuation).
	switch info.Opcode {
	case OpcodeContinuation:
		if !m.inFragmentedMessage {
			return nil, &ProtocolError{Err: ErrUnexpectedContinuation}
		}
	case OpcodeText, OpcodeBinary:
		if m.inFragmentedMessage {
			return nil, &ProtocolError{Err: ErrContinuationExpected}
		}
		m.fragmentedOpcode = info.Opcode
	default:
		return nil, &ProtocolError{Err: ErrInvalidOpcode}
	}

	startOpcode := m.fragmentedOpcode
	if !m.inFragmentedMessage {
		// First frame of a (possibly single-frame) message.
		ev := &WebsocketMessageEvent{
			Kind: MessageEventData,
			Data: WebsocketDataMessageEvent{Kind: DataMessageStart, Opcode: startOpcode},
		}
		m.inFragmentedMessage = true
		return ev, nil
	}
	// A later fragment of an already-started message: let the caller
	// know more payload bytes are coming for the same logical message.
	return &WebsocketMessageEvent{
		Kind: MessageEventData,
		Data: WebsocketDataMessageEvent{Kind: DataMessageMorePayloadBytesWillFollow, Opcode: startOpcode},
	}, nil
}

func (m *MessageDecoder) onFramePayloadChunk(originalOpcode Opcode) (*WebsocketMessageEvent, error) {
	if originalOpcode.IsControl() {
		return &WebsocketMessageEvent{
			Kind: MessageEventControl,
			Control: WebsocketControlMessageEvent{
				Kind:   ControlMessagePayloadChunk,
				Opcode: originalOpcode,
			},
		}, nil
	}
	return &WebsocketMessageEvent{
		Kind: MessageEventData,
		Data: WebsocketDataMessageEvent{Kind: DataMessagePayloadChunk, Opcode: originalOpcode},
	}, nil
}

func (m *MessageDecoder) onFrameEnd(info FrameInfo, originalOpcode Opcode) (*WebsocketMessageEvent, error) {
	if info.Opcode.IsControl() {
		return &WebsocketMessageEvent{
			Kind: MessageEventControl,
			Control: WebsocketControlMessageEvent{
				Kind:   ControlMessageEnd,
				Opcode: originalOpcode,
			},
		}, nil
	}
	if !info.Fin {
		// An intermediate fragment ending: nothing to report yet. The
		// next frame's Start will surface as
		// DataMessageMorePayloadBytesWillFollow; the message itself
		// only ends with DataMessageEnd once a fin=true frame does.
		return nil, nil
	}
	m.inFragmentedMessage = false
	return &WebsocketMessageEvent{
		Kind: MessageEventData,
		Data: WebsocketDataMessageEvent{Kind: DataMessageEnd, Opcode: originalOpcode},
	}, nil
}
