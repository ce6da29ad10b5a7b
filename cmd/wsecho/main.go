// Command wsecho is a small WebSocket echo server demonstrating how to
// drive pkg/wsframe's sans-I/O codec over a real net.Conn. It is not part
// of the codec's public contract: the HTTP upgrade handshake, socket I/O,
// and ping/pong handling it performs are exactly the "external
// collaborator" responsibilities pkg/wsframe leaves to its caller.
package main

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vi/websocket-sans-io/pkg/wsframe"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func computeAcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, v := range h[key] {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

var (
	errNotUpgrade   = errors.New("wsecho: not a websocket upgrade request")
	errBadVersion   = errors.New("wsecho: unsupported Sec-WebSocket-Version")
	errMissingKey   = errors.New("wsecho: missing Sec-WebSocket-Key")
	errCannotHijack = errors.New("wsecho: response writer does not support hijacking")
)

// upgrade validates an HTTP request as a RFC 6455 section 4.2.1 opening
// handshake, hijacks the connection, and writes the 101 response.
func upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	if r.Method != http.MethodGet {
		return nil, errNotUpgrade
	}
	if !headerContainsToken(r.Header, "Connection", "upgrade") || !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return nil, errNotUpgrade
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return nil, errBadVersion
	}
	clientKey := r.Header.Get("Sec-WebSocket-Key")
	if clientKey == "" {
		return nil, errMissingKey
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errCannotHijack
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, err
	}
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, err
	}

	accept := computeAcceptKey(clientKey)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := conn.Write([]byte(response)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// session drives the frame codec over conn until the connection closes.
// It assembles each data message fully (buffering is fine here: this is
// the demo layer, not pkg/wsframe itself) and echoes it back with the
// same opcode, replies to Ping with Pong, and acknowledges Close.
type session struct {
	conn    net.Conn
	log     zerolog.Logger
	decoder *wsframe.MessageDecoder
	encoder *wsframe.MessageEncoder

	dataBuf []byte
	dataOp  wsframe.Opcode
}

func newSession(conn net.Conn, logger zerolog.Logger) *session {
	return &session{
		conn:    conn,
		log:     logger,
		decoder: wsframe.NewMessageDecoder(wsframe.FrameSizeLarge, wsframe.RequireMasked),
		encoder: wsframe.NewServerMessageEncoder(),
	}
}

func (s *session) run() {
	defer s.conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Err(err).Msg("connection read ended")
			}
			return
		}
		offset := 0
		for {
			chunkStart := offset
			res, err := s.decoder.AddData(buf[offset:n])
			if err != nil {
				s.log.Warn().Err(err).Msg("protocol violation, closing connection")
				return
			}
			offset += res.ConsumedBytes
			if res.Event == nil {
				if res.ConsumedBytes == 0 {
					break
				}
				continue
			}
			chunk := buf[chunkStart:offset]
			if err := s.handleEvent(*res.Event, chunk); err != nil {
				s.log.Warn().Err(err).Msg("failed to handle message event")
				return
			}
		}
	}
}

func (s *session) handleEvent(ev wsframe.WebsocketMessageEvent, chunk []byte) error {
	switch ev.Kind {
	case wsframe.MessageEventData:
		return s.handleDataEvent(ev.Data, chunk)
	case wsframe.MessageEventControl:
		return s.handleControlEvent(ev.Control)
	}
	return nil
}

func (s *session) handleDataEvent(ev wsframe.WebsocketDataMessageEvent, chunk []byte) error {
	switch ev.Kind {
	case wsframe.DataMessageStart:
		s.dataBuf = s.dataBuf[:0]
		s.dataOp = ev.Opcode
	case wsframe.DataMessagePayloadChunk:
		// The chunk bytes already left the decoder unmasked in place;
		// we only need to read them out of our own input buffer
		// before it gets reused by the next conn.Read call.
		s.dataBuf = append(s.dataBuf, chunk...)
	case wsframe.DataMessageEnd:
		return s.echo(s.dataOp, s.dataBuf)
	}
	return nil
}

func (s *session) handleControlEvent(ev wsframe.WebsocketControlMessageEvent) error {
	if ev.Kind != wsframe.ControlMessageEnd {
		return nil
	}
	switch ev.Opcode {
	case wsframe.OpcodePing:
		return s.echo(wsframe.OpcodePong, nil)
	case wsframe.OpcodeClose:
		_ = s.echo(wsframe.OpcodeClose, nil)
		return errors.New("wsecho: peer closed the connection")
	}
	return nil
}

func (s *session) echo(opcode wsframe.Opcode, payload []byte) error {
	var header wsframe.HeaderBuf
	var n int
	if opcode.IsControl() {
		header, n = s.encoder.StartControl(opcode, wsframe.PayloadLength(len(payload)))
	} else {
		header, n = s.encoder.StartMessage(opcode, wsframe.PayloadLength(len(payload)), true)
	}
	if _, err := s.conn.Write(header[:n]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	out := append([]byte(nil), payload...)
	s.encoder.TransformPayload(out)
	_, err := s.conn.Write(out)
	return err
}

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:8080", "address to listen on")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Logger = logger

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrade(w, r)
		if err != nil {
			logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade rejected")
			http.Error(w, "expected a websocket upgrade", http.StatusBadRequest)
			return
		}
		connLogger := logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
		connLogger.Info().Msg("connection upgraded")
		go newSession(conn, connLogger).run()
	})

	logger.Info().Str("addr", *listenAddr).Msg("listening")
	server := &http.Server{Addr: *listenAddr, Handler: mux}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

