package wsframe

import "testing"

func decodeAllMessages(t *testing.T, md *MessageDecoder, input []byte, chunkSize int) []WebsocketMessageEvent {
	t.Helper()
	var out []WebsocketMessageEvent
	feed := append([]byte(nil), input...)
	if chunkSize <= 0 {
		chunkSize = len(feed) + 1
	}
	for {
		var window []byte
		if len(feed) > chunkSize {
			window = feed[:chunkSize]
		} else {
			window = feed
		}
		res, err := md.AddData(window)
		if err != nil {
			t.Fatalf("AddData: %v", err)
		}
		if res.Event != nil {
			out = append(out, *res.Event)
		}
		feed = feed[res.ConsumedBytes:]
		if res.Event == nil && res.ConsumedBytes == 0 {
			if len(feed) == 0 {
				break
			}
			t.Fatalf("message decoder stalled with %d bytes remaining", len(feed))
		}
	}
	return out
}

func TestMessageDecoderSingleFrameText(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}
	events := decodeAllMessages(t, md, input, 0)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (Start, PayloadChunk, End)", len(events))
	}
	if events[0].Kind != MessageEventData || events[0].Data.Kind != DataMessageStart || events[0].Data.Opcode != OpcodeText {
		t.Fatalf("event 0 = %+v", events[0])
	}
	if events[1].Data.Kind != DataMessagePayloadChunk {
		t.Fatalf("event 1 = %+v", events[1])
	}
	if events[2].Data.Kind != DataMessageEnd {
		t.Fatalf("event 2 = %+v", events[2])
	}
}

func TestMessageDecoderFragmented(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{
		0x01, 0x03, 'H', 'e', 'l',
		0x80, 0x02, 'l', 'o',
	}
	events := decodeAllMessages(t, md, input, 0)

	var kinds []DataMessageEventKind
	for _, e := range events {
		if e.Kind == MessageEventData {
			kinds = append(kinds, e.Data.Kind)
		}
	}
	want := []DataMessageEventKind{
		DataMessageStart,
		DataMessagePayloadChunk,
		DataMessageMorePayloadBytesWillFollow,
		DataMessagePayloadChunk,
		DataMessageEnd,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got kinds %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds[%d] = %v, want %v (full: %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestMessageDecoderRejectsReservedBits(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0xC1, 0x00} // RSV1 set, Text, fin
	_, err := md.AddData(input)
	if err == nil {
		t.Fatal("expected a protocol error for reserved bits set")
	}
}

func TestMessageDecoderRejectsFragmentedControl(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0x08, 0x00} // Close, not fin
	_, err := md.AddData(input)
	if err == nil {
		t.Fatal("expected a protocol error for a fragmented control frame")
	}
}

func TestMessageDecoderRejectsOversizedControl(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0x89, 0x7E, 0x00, 126} // Ping, extended length tag
	_, err := md.AddData(input)
	if err == nil {
		t.Fatal("expected a protocol error for an oversized control frame")
	}
}

func TestMessageDecoderRejectsUnexpectedContinuation(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0x80, 0x02, 'l', 'o'} // Continuation with no preceding fragment
	_, err := md.AddData(input)
	if err == nil {
		t.Fatal("expected a protocol error for an unexpected continuation frame")
	}
}

func TestMessageDecoderMaskingPolicy(t *testing.T) {
	unmasked := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}

	md := NewMessageDecoder(FrameSizeLarge, RequireMasked)
	if _, err := md.AddData(unmasked); err == nil {
		t.Fatal("expected a masking policy violation when RequireMasked sees an unmasked frame")
	}

	masked := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	md2 := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	if _, err := md2.AddData(masked); err == nil {
		t.Fatal("expected a masking policy violation when RequireUnmasked sees a masked frame")
	}

	md3 := NewMessageDecoder(FrameSizeLarge, AcceptEither)
	if _, err := md3.AddData(unmasked); err != nil {
		t.Fatalf("AcceptEither should accept unmasked frames, got %v", err)
	}
}

func TestMessageDecoderControlInterleavedPreservesFragmentation(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{
		0x01, 0x03, 'H', 'e', 'l', // Text, not fin
		0x89, 0x00, // Ping
		0x80, 0x02, 'l', 'o', // Continuation, fin
	}
	events := decodeAllMessages(t, md, input, 0)

	var dataKinds []DataMessageEventKind
	var controlKinds []ControlMessageEventKind
	for _, e := range events {
		switch e.Kind {
		case MessageEventData:
			dataKinds = append(dataKinds, e.Data.Kind)
		case MessageEventControl:
			controlKinds = append(controlKinds, e.Control.Kind)
		}
	}

	wantData := []DataMessageEventKind{
		DataMessageStart,
		DataMessagePayloadChunk,
		DataMessageMorePayloadBytesWillFollow,
		DataMessagePayloadChunk,
		DataMessageEnd,
	}
	if len(dataKinds) != len(wantData) {
		t.Fatalf("got data kinds %v, want %v", dataKinds, wantData)
	}
	for i := range wantData {
		if dataKinds[i] != wantData[i] {
			t.Fatalf("dataKinds[%d] = %v, want %v (full: %v)", i, dataKinds[i], wantData[i], dataKinds)
		}
	}

	wantControl := []ControlMessageEventKind{ControlMessageStart, ControlMessageEnd}
	if len(controlKinds) != len(wantControl) {
		t.Fatalf("got control kinds %v, want %v", controlKinds, wantControl)
	}
	for i := range wantControl {
		if controlKinds[i] != wantControl[i] {
			t.Fatalf("controlKinds[%d] = %v, want %v (full: %v)", i, controlKinds[i], wantControl[i], controlKinds)
		}
	}
}

func TestMessageDecoderControlMessage(t *testing.T) {
	md := NewMessageDecoder(FrameSizeLarge, RequireUnmasked)
	input := []byte{0x89, 0x04, 'p', 'i', 'n', 'g'}
	events := decodeAllMessages(t, md, input, 0)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Kind != MessageEventControl || events[0].Control.Kind != ControlMessageStart || events[0].Control.Opcode != OpcodePing {
		t.Fatalf("event 0 = %+v", events[0])
	}
	if events[1].Control.Kind != ControlMessagePayloadChunk {
		t.Fatalf("event 1 = %+v", events[1])
	}
	if events[2].Control.Kind != ControlMessageEnd {
		t.Fatalf("event 2 = %+v", events[2])
	}
}
