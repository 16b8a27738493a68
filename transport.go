package telnet

import (
	"context"
	"errors"
	"net"
	"strconv"
)

// Transport is the byte-stream endpoint the engine writes to and is driven
// by. The engine never dials or reads a socket itself - Connect asks a
// Transport to do it and waits for that Transport to call back into
// Engine.HandleInbound/HandleTransportClosed as bytes and lifecycle events
// arrive.
type Transport interface {
	// Dial establishes the connection. On success, the Transport must
	// begin delivering inbound bytes to the engine it was constructed
	// with; this is the one goroutine the engine's design allows, and it
	// belongs to the Transport, never the engine.
	Dial(ctx context.Context, host string, port int) error
	Write(data []byte) error
	Flush() error
	// SendUrgent transmits a single byte as TCP urgent data where the
	// platform supports it. defaultTransport cannot reach MSG_OOB through
	// net.Conn alone and degrades to an in-band send; see its doc comment.
	SendUrgent(b byte) error
	Close() error
}

// defaultTransport is the net.Conn-backed Transport used when
// EngineConfig.Transport is left nil. It owns exactly one goroutine per
// connection, started after a successful Dial, whose only job is turning
// net.Conn's blocking Read into calls to the owning engine's inbound entry
// points.
type defaultTransport struct {
	engine *Engine
	conn   net.Conn
}

func newDefaultTransport(engine *Engine) *defaultTransport {
	return &defaultTransport{engine: engine}
}

func (t *defaultTransport) Dial(ctx context.Context, host string, port int) error {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}

	t.conn = conn
	go t.readLoop()
	return nil
}

func (t *defaultTransport) readLoop() {
	buf := make([]byte, 4096)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.engine.HandleInbound(chunk)
		}

		if err != nil {
			t.engine.HandleTransportClosed(err)
			return
		}
	}
}

func (t *defaultTransport) Write(data []byte) error {
	if t.conn == nil {
		return errors.New("telnet: transport not connected")
	}

	_, err := t.conn.Write(data)
	return err
}

// Flush is a no-op: net.Conn writes go straight to the kernel socket
// buffer, so there's nothing here for the core's own flush semantics to
// wait on.
func (t *defaultTransport) Flush() error {
	return nil
}

// SendUrgent degrades to an in-band write of the single byte, since
// reaching TCP's MSG_OOB send path requires syscall-level access to the
// file descriptor that net.Conn doesn't expose portably. This is the
// documented deviation design note 4 anticipates.
func (t *defaultTransport) SendUrgent(b byte) error {
	return t.Write([]byte{b})
}

func (t *defaultTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
