package hl7v2

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testADT = "MSH|^~\\&|EPIC|HOSP|GW|HOSP|20260227101500||ADT^A01|MSG001|P|2.3\rPID|1||PAT777||DOE^JANE"

func ackHandler(_ context.Context, raw []byte) ([]byte, error) {
	msg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return BuildACK(ResolveControlID(msg), time.Now()), nil
}

func startServer(t *testing.T, handler MessageHandler, opts ...MLLPOptions) *MLLPServer {
	t.Helper()
	s := NewMLLPServer("127.0.0.1:0", handler, zerolog.Nop())
	if len(opts) > 0 {
		s.WithOptions(opts[0])
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func send(t *testing.T, addr, msg string) *Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := SendMLLP(ctx, addr, []byte(msg))
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	ack, err := Parse(reply)
	if err != nil {
		t.Fatalf("failed to parse reply %q: %v", reply, err)
	}
	return ack
}

func TestFrameMessage(t *testing.T) {
	framed := FrameMessage([]byte("MSH|x"))
	want := []byte{MLLPStartBlock, 'M', 'S', 'H', '|', 'x', MLLPEndBlock, MLLPCarriageReturn}
	if !bytes.Equal(framed, want) {
		t.Errorf("expected % x, got % x", want, framed)
	}
}

func TestScanFrames(t *testing.T) {
	frame := func(s string) string { return string(FrameMessage([]byte(s))) }

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", frame("A"), []string{"A"}},
		{"back to back", frame("A") + frame("B"), []string{"A", "B"}},
		{"noise between frames", "junk" + frame("A") + "\r\n" + frame("B"), []string{"A", "B"}},
		{"empty frame", frame(""), []string{""}},
		{"unterminated tail dropped", frame("A") + "\x0bMSH|partial", []string{"A"}},
		{"no frames", "plain text", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := bufio.NewScanner(strings.NewReader(tt.input))
			sc.Split(ScanFrames)
			var got []string
			for sc.Scan() {
				got = append(got, sc.Text())
			}
			if err := sc.Err(); err != nil {
				t.Fatalf("scan error: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) || len(got) != len(tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUnframeMessage(t *testing.T) {
	data := append(FrameMessage([]byte("ONE")), FrameMessage([]byte("TWO"))...)

	first, rest, found := UnframeMessage(data)
	if !found || string(first) != "ONE" {
		t.Fatalf("expected ONE, got %q found=%v", first, found)
	}
	second, rest, found := UnframeMessage(rest)
	if !found || string(second) != "TWO" || len(rest) != 0 {
		t.Errorf("expected TWO with nothing left, got %q rest=%d", second, len(rest))
	}

	partial := []byte("\x0bMSH|partial")
	if _, rest, found := UnframeMessage(partial); found || !bytes.Equal(rest, partial) {
		t.Errorf("expected partial frame left untouched, got found=%v rest=%q", found, rest)
	}
}

func TestMLLPServer_StopWithoutStart(t *testing.T) {
	s := NewMLLPServer("127.0.0.1:0", ackHandler, zerolog.Nop())
	if err := s.Stop(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if s.Addr() != "127.0.0.1:0" {
		t.Errorf("expected configured addr before start, got %q", s.Addr())
	}
}

func TestMLLPServer_Acknowledges(t *testing.T) {
	s := startServer(t, ackHandler)

	ack := send(t, s.Addr(), testADT)
	if ack.Type != "ACK" {
		t.Errorf("expected ACK, got %q", ack.Type)
	}
	msa := ack.GetSegment("MSA")
	if msa == nil {
		t.Fatal("expected MSA segment")
	}
	if msa.GetField(1) != AckCodeAccept || msa.GetField(2) != "MSG001" {
		t.Errorf("expected MSA|AA|MSG001, got %s|%s", msa.GetField(1), msa.GetField(2))
	}

	ack = send(t, s.Addr(), "PID|1||PAT9||DOE^JOHN")
	if ack.ControlID != FallbackControlID {
		t.Errorf("expected fallback control id, got %q", ack.ControlID)
	}
}

func TestMLLPServer_OrderOnOneConnection(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, raw []byte) ([]byte, error) {
		msg, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		seen = append(seen, msg.ControlID)
		mu.Unlock()
		return ackHandler(ctx, raw)
	}
	s := startServer(t, handler)

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var batch []byte
	for _, id := range []string{"C1", "C2", "C3"} {
		batch = append(batch, FrameMessage([]byte("MSH|^~\\&|A|B|C|D|20260227||ADT^A01|"+id+"|P|2.3"))...)
	}
	if _, err := conn.Write(batch); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sc := bufio.NewScanner(conn)
	sc.Split(ScanFrames)
	for i := 0; i < 3; i++ {
		if !sc.Scan() {
			t.Fatalf("expected reply %d, got %v", i+1, sc.Err())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(seen, ",") != "C1,C2,C3" {
		t.Errorf("expected C1,C2,C3 in order, got %v", seen)
	}
}

func TestMLLPServer_ConcurrentConnections(t *testing.T) {
	s := startServer(t, ackHandler)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CONN%d", i)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reply, err := SendMLLP(ctx, s.Addr(), []byte("MSH|^~\\&|A|B|C|D|20260227||ADT^A01|"+id+"|P|2.3"))
			if err != nil {
				t.Errorf("%s: %v", id, err)
				return
			}
			if !bytes.Contains(reply, []byte("MSA|AA|"+id)) {
				t.Errorf("%s: unexpected reply %q", id, reply)
			}
		}(i)
	}
	wg.Wait()
}

func TestMLLPServer_RejectedMessageClosesConnection(t *testing.T) {
	s := startServer(t, ackHandler)
	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	payload := append(FrameMessage([]byte("not hl7")), FrameMessage([]byte(testADT))...)
	if _, err := conn.Write(payload); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sc := bufio.NewScanner(conn)
	sc.Split(ScanFrames)
	if sc.Scan() {
		t.Errorf("expected no reply after a rejected message, got %q", sc.Text())
	}
	if ne, ok := sc.Err().(net.Error); ok && ne.Timeout() {
		t.Error("expected the server to close the connection, got a client timeout")
	}

	ack := send(t, s.Addr(), testADT)
	if ack.ControlID != "MSG001" {
		t.Errorf("expected a new connection to be served, got %q", ack.ControlID)
	}
}

func TestMLLPServer_HandlerErrorFailsSenderFast(t *testing.T) {
	called := make(chan struct{}, 1)
	failing := func(context.Context, []byte) ([]byte, error) {
		called <- struct{}{}
		return nil, errors.New("store unavailable")
	}
	s := startServer(t, failing)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := SendMLLP(ctx, s.Addr(), []byte(testADT)); err == nil {
		t.Error("expected an error when the handler fails")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected the sender to fail fast, took %s", elapsed)
	}
	select {
	case <-called:
	default:
		t.Error("expected handler to be called")
	}
}

func TestMLLPServer_OversizedMessageClosesConnection(t *testing.T) {
	opts := DefaultMLLPOptions()
	opts.MaxMessageSize = 64
	s := startServer(t, ackHandler, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	big := strings.Repeat("X", 256)
	if _, err := SendMLLP(ctx, s.Addr(), []byte(big)); err == nil {
		t.Error("expected oversized message to be refused")
	}

	ack := send(t, s.Addr(), testADT)
	if ack.ControlID != "MSG001" {
		t.Errorf("expected server to keep serving, got %q", ack.ControlID)
	}
}

func TestMLLPServer_IdleTimeout(t *testing.T) {
	opts := DefaultMLLPOptions()
	opts.IdleTimeout = 100 * time.Millisecond
	s := startServer(t, ackHandler, opts)

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected idle connection to be closed")
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Error("expected server to close the connection before the client deadline")
	}
}

func TestSendMLLP_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := SendMLLP(context.Background(), addr, []byte(testADT)); err == nil {
		t.Error("expected dial error")
	}
}
