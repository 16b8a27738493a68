package telnet

import (
	"context"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// nullTransport discards every write; these tests only care about
// parse-side events, never outbound bytes.
type nullTransport struct{}

func (nullTransport) Dial(ctx context.Context, host string, port int) error { return nil }
func (nullTransport) Write(data []byte) error                              { return nil }
func (nullTransport) Flush() error                                         { return nil }
func (nullTransport) SendUrgent(b byte) error                              { return nil }
func (nullTransport) Close() error                                         { return nil }

// capturingTransport records every Write, for tests that need to check the
// exact outbound reply rather than just that parsing completed.
type capturingTransport struct {
	written [][]byte
}

func (c *capturingTransport) Dial(ctx context.Context, host string, port int) error { return nil }
func (c *capturingTransport) Write(data []byte) error {
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}
func (c *capturingTransport) Flush() error        { return nil }
func (c *capturingTransport) SendUrgent(b byte) error { return nil }
func (c *capturingTransport) Close() error        { return nil }

func (c *capturingTransport) outbound() []byte {
	var all []byte
	for _, w := range c.written {
		all = append(all, w...)
	}
	return all
}

var _ = Describe("frameParser incrementality", func() {
	var messages []string

	newEngineForParsing := func(transport Transport) *Engine {
		messages = nil

		charset, err := NewCharset("")
		Expect(err).NotTo(HaveOccurred())

		e := &Engine{
			neg:       newNegotiator(),
			auth:      newAuthManager(nil),
			login:     newLoginAssistant(LoginConfig{}),
			charset:   charset,
			logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			state:     Connected,
			transport: transport,
		}
		e.parser = newFrameParser(e)
		e.message = NewPublisher[string]([]MessageHandler{
			func(_ *Engine, text string) { messages = append(messages, text) },
		})
		e.encounteredErr = NewPublisher[error, ErrorHandler](nil)
		e.stateChange = NewPublisher[ConnectionState, StateHandler](nil)
		e.connectionError = NewPublisher[ConnectionError, ConnectionErrorHandler](nil)
		e.loginRequired = newNotifyPublisher(nil)
		e.loginFailed = newNotifyPublisher(nil)
		e.loggedIn = newNotifyPublisher(nil)
		e.loggedOut = newNotifyPublisher(nil)
		return e
	}

	It("produces the same messages for a stream fed whole or split across arbitrary chunks", func() {
		stream := []byte("hello ")
		stream = append(stream, IAC, WILL, byte(OptionEcho))
		stream = append(stream, []byte("world\r\n")...)

		whole := newEngineForParsing(nullTransport{})
		whole.parser.feed(stream)
		wholeMessages := append([]string(nil), messages...)

		for split := 1; split < len(stream); split++ {
			e := newEngineForParsing(nullTransport{})
			e.parser.feed(stream[:split])
			e.parser.feed(stream[split:])

			Expect(messages).To(Equal(wholeMessages), "split at %d", split)
		}
	})

	It("pushes back a dangling suboption until its terminator arrives, regardless of split point", func() {
		stream := []byte{IAC, SB, byte(OptionTerminalType), 1, IAC, SE}
		want := []byte{IAC, SB, byte(OptionTerminalType), telOptIS, 'U', 'N', 'K', 'N', 'O', 'W', 'N', IAC, SE}

		for split := 1; split < len(stream); split++ {
			ct := &capturingTransport{}
			e := newEngineForParsing(ct)
			e.parser.feed(stream[:split])
			e.parser.feed(stream[split:])

			Expect(ct.outbound()).To(Equal(want), "split at %d", split)
		}
	})
})
