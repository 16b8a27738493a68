package telnet

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultTelnetPort is the well-known port Connect dials when the caller
// has no site-specific override.
const DefaultTelnetPort = 23

// ConnectionState is the engine's connection lifecycle.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Authenticating
	LoggedIn
	LoggedOut
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Authenticating:
		return "Authenticating"
	case LoggedIn:
		return "LoggedIn"
	case LoggedOut:
		return "LoggedOut"
	default:
		return "Unknown"
	}
}

// WindowSize is the terminal dimensions NAWS announces. Either dimension
// absent or non-positive makes the size invalid, withdrawing NAWS.
type WindowSize struct {
	Cols int
	Rows int
}

func (w WindowSize) valid() bool {
	return w.Cols > 0 && w.Rows > 0
}

// ControlKind is the public enum SendControl accepts, one entry per
// single-byte Telnet command the facade exposes.
type ControlKind int

const (
	GoAhead ControlKind = iota
	InterruptProcess
	AreYouThere
	AbortOutput
	EraseCharacter
	EraseLine
	Break
	EndOfFile
	Suspend
	Abort
)

var controlBytes = map[ControlKind]byte{
	GoAhead:          GA,
	InterruptProcess: IP,
	AreYouThere:      AYT,
	AbortOutput:      AO,
	EraseCharacter:   EC,
	EraseLine:        EL,
	Break:            BRK,
	EndOfFile:        CEOF,
	Suspend:          SUSP,
	Abort:            ABORT,
}

// controlSync names the control kinds that additionally transmit a SYNC
// (urgent DM) alongside their command byte.
var controlSync = map[ControlKind]bool{
	InterruptProcess: true,
	AreYouThere:      true,
	AbortOutput:      true,
}

// Telnet terminal-type/status suboption command bytes shared by the C4
// dispatch handlers below (distinct from auth.go's authIS/authSEND, which
// are scoped to the Authentication suboption's own constants of the same
// value).
const (
	telOptSend byte = 1
	telOptIS   byte = 0
)

// EngineConfig configures a new Engine. Every field is optional; the zero
// value yields an engine that speaks US-ASCII, announces no window size,
// injects no credentials, and dials through the default net.Conn
// transport.
type EngineConfig struct {
	Charset    string
	WindowSize WindowSize
	Login      LoginConfig
	Username   string
	Password   string

	AuthMechanisms map[byte]AuthMechanism
	Logger         *slog.Logger
	Transport      Transport
}

// Engine is the protocol core: it owns the receive buffer, the frame
// parser, the option negotiator, the active auth mechanism, and the login
// assistant, and exposes the public operations the application drives it
// with. It is single-threaded and cooperative - a mutex serializes calls
// arriving from the transport's read goroutine against calls arriving from
// application goroutines, so only one logical executor is ever inside the
// engine at a time. The mutex is a concession to having a concrete,
// goroutine-owning default Transport; it does not make the engine itself
// the owner of any thread.
type Engine struct {
	mu sync.Mutex

	transport Transport
	parser    *frameParser
	neg       *negotiator
	auth      *authManager
	login     *loginAssistant
	charset   *Charset
	logger    *slog.Logger

	state      ConnectionState
	window     WindowSize
	hasLoginRE bool

	message         *EventPublisher[string]
	encounteredErr  *EventPublisher[error]
	stateChange     *EventPublisher[ConnectionState]
	connectionError *EventPublisher[ConnectionError]

	loginRequired *notifyPublisher
	loginFailed   *notifyPublisher
	loggedIn      *notifyPublisher
	loggedOut     *notifyPublisher

	pending []func()
}

// queueEvent defers a hook invocation until the engine's mutex is released.
// Every Fire call reachable from inside e.mu goes through here instead of
// firing inline, so a hook that re-enters the engine (Login in response to
// login_required, SendData in response to message, ...) never deadlocks on
// the non-reentrant mutex. Must be called with e.mu held.
func (e *Engine) queueEvent(fn func()) {
	e.pending = append(e.pending, fn)
}

// drainPending takes ownership of the queued hook invocations, for a caller
// about to unlock e.mu and run them. Must be called with e.mu held.
func (e *Engine) drainPending() []func() {
	pending := e.pending
	e.pending = nil
	return pending
}

// dispatch runs queued hook invocations with e.mu released.
func (e *Engine) dispatch(pending []func()) {
	for _, fn := range pending {
		fn()
	}
}

// NewEngine constructs an Engine ready to Connect. hooks pre-populates the
// event publishers; more can be registered later with the RegisterXHook
// methods below.
func NewEngine(cfg EngineConfig, hooks EventHooks) (*Engine, error) {
	charset, err := NewCharset(cfg.Charset)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		neg:        newNegotiator(),
		auth:       newAuthManager(cfg.AuthMechanisms),
		login:      newLoginAssistant(cfg.Login),
		charset:    charset,
		logger:     cfg.Logger,
		state:      Disconnected,
		window:     cfg.WindowSize,
		hasLoginRE: cfg.Login.LoginPattern != nil || cfg.Login.PasswordPattern != nil,

		message:         NewPublisher[string](hooks.Message),
		encounteredErr:  NewPublisher[error](hooks.EncounteredErr),
		stateChange:     NewPublisher[ConnectionState](hooks.StateChange),
		connectionError: NewPublisher[ConnectionError](hooks.ConnectionError),

		loginRequired: newNotifyPublisher(hooks.LoginRequired),
		loginFailed:   newNotifyPublisher(hooks.LoginFailed),
		loggedIn:      newNotifyPublisher(hooks.LoggedIn),
		loggedOut:     newNotifyPublisher(hooks.LoggedOut),
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.parser = newFrameParser(e)

	if cfg.Username != "" || cfg.Password != "" {
		e.login.setCredentials(cfg.Username, cfg.Password)
	}

	e.transport = cfg.Transport
	if e.transport == nil {
		e.transport = newDefaultTransport(e)
	}

	return e, nil
}

// RegisterMessageHook will register an event to be called when decoded
// plaintext arrives from the peer.
func (e *Engine) RegisterMessageHook(hook MessageHandler) {
	e.message.Register(EventHook[string](hook))
}

// RegisterEncounteredErrHook will register an event to be called on a
// non-fatal error the engine recovered from on its own.
func (e *Engine) RegisterEncounteredErrHook(hook ErrorHandler) {
	e.encounteredErr.Register(EventHook[error](hook))
}

// RegisterStateChangeHook will register an event to be called whenever the
// connection lifecycle state transitions.
func (e *Engine) RegisterStateChangeHook(hook StateHandler) {
	e.stateChange.Register(EventHook[ConnectionState](hook))
}

// RegisterConnectionErrorHook will register an event to be called when the
// transport fails to connect or drops an established connection.
func (e *Engine) RegisterConnectionErrorHook(hook ConnectionErrorHandler) {
	e.connectionError.Register(EventHook[ConnectionError](hook))
}

func (e *Engine) RegisterLoginRequiredHook(hook NotifyHandler) { e.loginRequired.Register(hook) }
func (e *Engine) RegisterLoginFailedHook(hook NotifyHandler)   { e.loginFailed.Register(hook) }
func (e *Engine) RegisterLoggedInHook(hook NotifyHandler)      { e.loggedIn.Register(hook) }
func (e *Engine) RegisterLoggedOutHook(hook NotifyHandler)     { e.loggedOut.Register(hook) }

// State reports the engine's current connection lifecycle state.
func (e *Engine) State() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Charset returns the codec used to decode inbound plaintext. Outbound
// data is written as given and is not encoded through it.
func (e *Engine) Charset() *Charset {
	return e.charset
}

func (e *Engine) setState(s ConnectionState) {
	if e.state == s {
		return
	}
	e.state = s
	e.queueEvent(func() { e.stateChange.Fire(e, s) })
}

func (e *Engine) connected() bool {
	switch e.state {
	case Connected, Authenticating, LoggedIn:
		return true
	default:
		return false
	}
}

// Connect initiates the transport connection to host:port. It is a no-op
// if a connection is already up or in progress.
func (e *Engine) Connect(ctx context.Context, host string, port int) {
	e.mu.Lock()

	if e.state != Disconnected && e.state != LoggedOut {
		e.mu.Unlock()
		return
	}

	e.setState(Connecting)

	if err := e.transport.Dial(ctx, host, port); err != nil {
		e.queueEvent(func() { e.connectionError.Fire(e, ConnectionError{Kind: ConnectionErrorDialFailed, Err: err}) })
		e.setState(LoggedOut)
		pending := e.drainPending()
		e.mu.Unlock()
		e.dispatch(pending)
		return
	}

	e.handleConnected()

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// handleConnected runs the initial option negotiation once the transport
// reports it's up. Called with e.mu held.
func (e *Engine) handleConnected() {
	e.setState(Connected)

	for _, cmd := range e.neg.initialCommands(e.window.valid()) {
		e.writeCommand(cmd)
	}
}

// Login stores credentials for the login assistant to inject and resets
// its "have I tried this yet" flags. It may be called before or after a
// login_required event.
func (e *Engine) Login(username, password string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.login.setCredentials(username, password)
}

// SendData writes payload to the transport verbatim; it is a no-op unless
// the connection is at least Connected. No CR/LF is appended.
func (e *Engine) SendData(data []byte) {
	e.mu.Lock()

	if !e.connected() {
		e.mu.Unlock()
		return
	}

	if err := e.transport.Write(data); err != nil {
		e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
	}

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// SendControl transmits IAC cmd for the given control kind, following with
// a SYNC for the kinds that call for one.
func (e *Engine) SendControl(kind ControlKind) {
	e.mu.Lock()

	if !e.connected() {
		e.mu.Unlock()
		return
	}

	b, ok := controlBytes[kind]
	if !ok {
		e.mu.Unlock()
		return
	}

	e.writeCommand(Command{OpCode: b})

	if controlSync[kind] {
		e.sendSyncLocked()
	}

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// SendSync flushes pending writes and sends a single DM byte as TCP urgent
// data. No-op if disconnected.
func (e *Engine) SendSync() {
	e.mu.Lock()

	e.sendSyncLocked()

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

func (e *Engine) sendSyncLocked() {
	if !e.connected() {
		return
	}

	if err := e.transport.Flush(); err != nil {
		e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
		return
	}
	if err := e.transport.SendUrgent(DM); err != nil {
		e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
	}
}

// SetWindowSize updates the announced window size, issuing whatever
// negotiation the validity transition calls for.
func (e *Engine) SetWindowSize(cols, rows int) {
	e.mu.Lock()

	prev := e.window
	next := WindowSize{Cols: cols, Rows: rows}
	e.window = next

	if !e.connected() {
		e.mu.Unlock()
		return
	}

	switch {
	case prev.valid() && next.valid():
		if e.neg.enabled(OptionNAWS) {
			e.sendNAWS()
		}
	case !prev.valid() && next.valid():
		if e.neg.enabled(OptionNAWS) {
			e.sendNAWS()
		} else {
			cmd := Command{OpCode: WILL, Option: OptionNAWS}
			e.neg.track(cmd)
			e.writeCommand(cmd)
		}
	case prev.valid() && !next.valid():
		cmd := Command{OpCode: WONT, Option: OptionNAWS}
		e.neg.track(cmd)
		e.writeCommand(cmd)
	}

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

func (e *Engine) sendNAWS() {
	payload := []byte{
		byte(e.window.Cols >> 8), byte(e.window.Cols),
		byte(e.window.Rows >> 8), byte(e.window.Rows),
	}
	e.writeCommand(Command{OpCode: SB, Option: OptionNAWS, Subnegotiation: payload})
}

// Logout sends IAC DO Logout. The peer is expected to answer WONT Logout,
// which closes the connection (see handleNegotiation's special case).
func (e *Engine) Logout() {
	e.mu.Lock()

	if !e.connected() {
		e.mu.Unlock()
		return
	}

	cmd := Command{OpCode: DO, Option: OptionLogout}
	e.neg.track(cmd)
	e.writeCommand(cmd)

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// Close tears down the transport synchronously and emits logged_out.
func (e *Engine) Close() {
	e.mu.Lock()

	e.closeLocked()

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

func (e *Engine) closeLocked() {
	if e.state == Disconnected {
		return
	}

	if err := e.transport.Close(); err != nil {
		e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
	}

	e.transitionLoggedOut()
}

// SetSocket replaces the underlying transport. If a transport is already
// installed, a logout is issued on it first and it is flushed and
// discarded regardless of whether the peer ever acknowledges; the facade
// reverts to Disconnected either way.
func (e *Engine) SetSocket(transport Transport) {
	e.mu.Lock()

	if e.transport != nil {
		if e.connected() {
			cmd := Command{OpCode: DO, Option: OptionLogout}
			e.neg.track(cmd)
			e.writeCommand(cmd)
		}
		_ = e.transport.Flush()
		_ = e.transport.Close()
	}

	e.transport = transport
	e.state = Disconnected

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// writeCommand encodes a Command to wire bytes and writes it to the
// transport, surfacing a write failure as a non-fatal error event.
func (e *Engine) writeCommand(c Command) {
	var out []byte

	switch c.OpCode {
	case WILL, WONT, DO, DONT:
		out = []byte{IAC, c.OpCode, byte(c.Option)}
	case SB:
		out = make([]byte, 0, len(c.Subnegotiation)+5)
		out = append(out, IAC, SB, byte(c.Option))
		out = append(out, encodeIAC(c.Subnegotiation)...)
		out = append(out, IAC, SE)
	default:
		out = []byte{IAC, c.OpCode}
	}

	if err := e.transport.Write(out); err != nil {
		e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
	}
}

// HandleInbound is a Transport's entry point for delivering bytes read off
// the wire - the one place a transport's own goroutine crosses into the
// engine, which is why it takes the lock. A custom Transport (set via
// EngineConfig.Transport or SetSocket) calls this as its "ready_read"
// signal; the default transport calls it from its own read loop.
func (e *Engine) HandleInbound(chunk []byte) {
	e.mu.Lock()

	e.parser.feed(chunk)

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

// HandleTransportClosed is a Transport's entry point for reporting that the
// connection has ended, whether cleanly or with err set to a read failure.
func (e *Engine) HandleTransportClosed(err error) {
	e.mu.Lock()

	if err != nil {
		e.queueEvent(func() { e.connectionError.Fire(e, ConnectionError{Kind: ConnectionErrorReadFailed, Err: err}) })
	}
	e.transitionLoggedOut()

	pending := e.drainPending()
	e.mu.Unlock()
	e.dispatch(pending)
}

func (e *Engine) transitionLoggedOut() {
	if e.state == Disconnected || e.state == LoggedOut {
		return
	}
	e.setState(LoggedOut)
	e.queueEvent(func() { e.loggedOut.Fire(e) })
}

func (e *Engine) transitionAuthenticating() {
	if e.state == Connected {
		e.setState(Authenticating)
	}
}

func (e *Engine) transitionLoggedIn() {
	if e.state == LoggedIn {
		return
	}
	e.setState(LoggedIn)
	e.queueEvent(func() { e.loggedIn.Fire(e) })
}

// handleNegotiation is the frame parser's entry point for an inbound
// WILL/WONT/DO/DONT command.
func (e *Engine) handleNegotiation(c Command) {
	if c.OpCode == WONT && c.Option == OptionLogout {
		e.closeLocked()
		return
	}

	reply, nawsOn := e.neg.process(c, e.window.valid())
	if reply != nil {
		e.writeCommand(*reply)
	}
	if nawsOn {
		e.sendNAWS()
	}

	if c.OpCode == DONT && c.Option == OptionAuthentication {
		e.login.markNullAuthUsed()
		if !e.hasLoginRE {
			e.login.markSkipPromptCheck()
			e.transitionLoggedIn()
		}
	}
}

// handleCommand is the frame parser's entry point for a bare single-byte
// command (GA, NOP, and the like). None of these carry application-visible
// semantics in a client-role engine; they're only worth a debug trace.
func (e *Engine) handleCommand(c Command) {
	e.debug("received command", "command", c.String())
}

// handleSubnegotiation is the C4 dispatch switch: TerminalType, NAWS,
// Status, Authentication, and LineMode each get a handler; anything else
// is logged and discarded.
func (e *Engine) handleSubnegotiation(c Command) {
	switch c.Option {
	case OptionTerminalType:
		e.handleTerminalType(c.Subnegotiation)
	case OptionNAWS:
		// Inbound NAWS payloads are ignored: a client-role engine never
		// receives a window-size request from the peer.
	case OptionStatus:
		e.handleStatus(c.Subnegotiation)
	case OptionAuthentication:
		e.handleAuthentication(c.Subnegotiation)
	case OptionLineMode:
		e.debug("discarding linemode subnegotiation", "len", len(c.Subnegotiation))
	default:
		e.warn("unrecognized subnegotiation option", "option", c.Option)
	}
}

func (e *Engine) handleTerminalType(payload []byte) {
	if len(payload) == 0 || payload[0] != telOptSend {
		return
	}

	reply := append([]byte{telOptIS}, []byte("UNKNOWN")...)
	e.writeCommand(Command{OpCode: SB, Option: OptionTerminalType, Subnegotiation: reply})
}

// handleStatus answers an RFC 859 STATUS request with an empty body: the
// engine has no local option state worth reporting beyond its own
// sent-set, which isn't something STATUS exposes.
func (e *Engine) handleStatus(payload []byte) {
	if len(payload) == 0 || payload[0] != telOptSend {
		return
	}

	e.writeCommand(Command{OpCode: SB, Option: OptionStatus, Subnegotiation: []byte{telOptIS}})
}

func (e *Engine) handleAuthentication(payload []byte) {
	if e.state == Connected {
		e.transitionAuthenticating()
	}

	out := e.auth.handleSuboption(payload, e.hasLoginRE)

	if out.nullAuthUsed {
		e.login.markNullAuthUsed()
	}
	if out.skipPromptCheck {
		e.login.markSkipPromptCheck()
	}
	if len(out.reply) > 0 {
		e.writeCommand(Command{OpCode: SB, Option: OptionAuthentication, Subnegotiation: out.reply})
	}
	if out.loginRequired {
		if e.state == Connected {
			e.transitionAuthenticating()
		}
		e.queueEvent(func() { e.loginRequired.Fire(e) })
	}
	if out.loginFailed {
		e.queueEvent(func() { e.loginFailed.Fire(e) })
	}
	if out.loggedIn {
		e.transitionLoggedIn()
	}
}

// handlePlaintext is the frame parser's entry point for a decoded
// plaintext run. While the login assistant is active it gets first look;
// otherwise the text is surfaced as a message unmodified.
func (e *Engine) handlePlaintext(raw []byte) {
	text := e.charset.Decode(raw)
	if text == "" {
		return
	}

	if !e.login.active() {
		e.queueEvent(func() { e.message.Fire(e, text) })
		return
	}

	act := e.login.process(text)

	if act.loginRequired {
		if e.state == Connected {
			e.transitionAuthenticating()
		}
		e.queueEvent(func() { e.loginRequired.Fire(e) })
	}
	if len(act.send) > 0 {
		if err := e.transport.Write(act.send); err != nil {
			e.queueEvent(func() { e.encounteredErr.Fire(e, err) })
		}
	}
	if act.hasMessage {
		msg := act.message
		e.queueEvent(func() { e.message.Fire(e, msg) })
	}
	if act.loggedIn {
		e.transitionLoggedIn()
	}
}
