package hl7v2

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MLLP block characters: <VT> message <FS><CR>.
const (
	MLLPStartBlock     = 0x0B
	MLLPEndBlock       = 0x1C
	MLLPCarriageReturn = 0x0D
)

var mllpTrailer = []byte{MLLPEndBlock, MLLPCarriageReturn}

// MLLPOptions bounds the connections an MLLPServer accepts.
type MLLPOptions struct {
	// MaxMessageSize is the largest frame accepted; larger frames close the
	// connection.
	MaxMessageSize int
	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultMLLPOptions allows 1 MB messages, 30s idle and 10s writes.
func DefaultMLLPOptions() MLLPOptions {
	return MLLPOptions{
		MaxMessageSize: 1 << 20,
		IdleTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// MessageHandler is called with the unframed bytes of each received message
// and returns the response to frame back. A nil response with a nil error
// sends nothing. An error is logged and the connection is closed, so the
// peer sees the failure at once; later messages need a new connection.
type MessageHandler func(ctx context.Context, raw []byte) ([]byte, error)

// MLLPServer receives HL7 v2 messages over MLLP/TCP. Messages on one
// connection are handled in order; connections are served concurrently.
type MLLPServer struct {
	addr    string
	handler MessageHandler
	opts    MLLPOptions
	logger  zerolog.Logger

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewMLLPServer(addr string, handler MessageHandler, logger zerolog.Logger) *MLLPServer {
	return &MLLPServer{
		addr:    addr,
		handler: handler,
		opts:    DefaultMLLPOptions(),
		logger:  logger.With().Str("component", "mllp").Logger(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// WithOptions replaces the connection limits. Call before Start.
func (s *MLLPServer) WithOptions(opts MLLPOptions) *MLLPServer {
	s.opts = opts
	return s
}

// Start listens and serves in the background.
func (s *MLLPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.serve()
	return nil
}

// Stop closes the listener and every open connection, cancels in-flight
// handlers and waits for them to return.
func (s *MLLPServer) Stop() error {
	if s.ln == nil {
		return nil
	}
	s.cancel()
	err := s.ln.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr is the bound address, which differs from the configured one when
// listening on port 0.
func (s *MLLPServer) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *MLLPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("accept failed")
			}
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *MLLPServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), s.opts.MaxMessageSize)
	sc.Split(ScanFrames)

	for {
		conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		if !sc.Scan() {
			break
		}
		raw := append([]byte(nil), sc.Bytes()...)
		if !s.respond(conn, remote, raw) {
			return
		}
	}

	err := sc.Err()
	var netErr net.Error
	switch {
	case err == nil, s.ctx.Err() != nil:
	case errors.Is(err, bufio.ErrTooLong):
		s.logger.Warn().Str("remote", remote).Int("limit", s.opts.MaxMessageSize).Msg("message too large, closing connection")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Debug().Str("remote", remote).Msg("idle connection closed")
	default:
		s.logger.Warn().Err(err).Str("remote", remote).Msg("read failed")
	}
}

// respond handles one message and reports whether the connection stays open.
func (s *MLLPServer) respond(conn net.Conn, remote string, raw []byte) bool {
	resp, err := s.handler(s.ctx, raw)
	if err != nil {
		s.logger.Error().Err(err).Str("remote", remote).Msg("message rejected, closing connection")
		return false
	}
	if resp == nil {
		return true
	}

	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := conn.Write(FrameMessage(resp)); err != nil {
		s.logger.Error().Err(err).Str("remote", remote).Msg("write failed")
		return false
	}
	return true
}

// ScanFrames is a bufio.SplitFunc yielding the payload of each MLLP frame.
// Bytes outside a frame are discarded, as is an unterminated frame at EOF.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.IndexByte(data, MLLPStartBlock)
	if start < 0 {
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+1:], mllpTrailer)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + 1
	return end + len(mllpTrailer), data[start+1 : end], nil
}

// FrameMessage wraps data in an MLLP frame.
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	return append(frame, mllpTrailer...)
}

// UnframeMessage returns the payload of the first complete frame in data and
// the bytes after it. found is false when data holds no complete frame, in
// which case rest is data unchanged.
func UnframeMessage(data []byte) (message, rest []byte, found bool) {
	advance, token, _ := ScanFrames(data, false)
	if token == nil {
		return nil, data, false
	}
	return token, data[advance:], true
}

// SendMLLP delivers msg to addr and waits for one framed reply. The context
// deadline, if any, bounds the whole exchange.
func SendMLLP(ctx context.Context, addr string, msg []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mllp dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(FrameMessage(msg)); err != nil {
		return nil, fmt.Errorf("mllp send: %w", err)
	}

	sc := bufio.NewScanner(conn)
	sc.Split(ScanFrames)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("mllp read reply: %w", err)
		}
		return nil, errors.New("mllp: connection closed without a reply")
	}
	return append([]byte(nil), sc.Bytes()...), nil
}
