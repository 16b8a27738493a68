package telnet

// sentPair is one entry in the sent-negotiation multiset: a negotiation
// byte (WILL/WONT/DO/DONT) plus the option it concerns, transmitted by the
// engine and not yet matched to an inbound acknowledgment.
type sentPair struct {
	op  byte
	opt TelOptCode
}

// negotiator implements the per-option state table described for the
// engine's option negotiation: a single peer_enabled flag per option (set
// only by inbound DO/DONT, per the data model) and the FIFO sent-set used
// to recognize our own earlier offers being acknowledged and to prevent
// re-sending a negotiation that's already in flight.
type negotiator struct {
	peerEnabled map[TelOptCode]bool
	sentSet     *queue[sentPair]
}

func newNegotiator() *negotiator {
	return &negotiator{
		peerEnabled: make(map[TelOptCode]bool),
		sentSet:     newQueue[sentPair](8),
	}
}

func (n *negotiator) enabled(opt TelOptCode) bool {
	return n.peerEnabled[opt]
}

// supported reports whether the engine recognizes opt at all. NAWS is only
// supported while a window size has been configured; everything else not
// in this table is refused unconditionally.
func (n *negotiator) supported(opt TelOptCode, windowValid bool) bool {
	switch opt {
	case OptionAuthentication, OptionSuppressGA, OptionLineMode, OptionStatus, OptionLogout, OptionTerminalType:
		return true
	case OptionNAWS:
		return windowValid
	default:
		return false
	}
}

// oppositeReply computes the opposite-table response to an inbound
// negotiation command. DONT and WONT have no refusal branch: turning an
// option off can't be declined, so both columns agree.
func oppositeReply(c Command, allowed bool) Command {
	switch c.OpCode {
	case DO:
		if allowed {
			return Command{OpCode: WILL, Option: c.Option}
		}
		return Command{OpCode: WONT, Option: c.Option}
	case DONT:
		return Command{OpCode: WONT, Option: c.Option}
	case WILL:
		if allowed {
			return Command{OpCode: DO, Option: c.Option}
		}
		return Command{OpCode: DONT, Option: c.Option}
	case WONT:
		return Command{OpCode: DONT, Option: c.Option}
	default:
		return Command{OpCode: NOP}
	}
}

// process runs one inbound negotiation command through the full algorithm:
// redundant-ack suppression, the opposite table, sent-set loop breaking,
// and the peer_enabled update. It returns the command to transmit (nil if
// none) and whether peer_enabled[NAWS] just flipped to true under a valid
// window size, which the caller must follow with an immediate NAWS
// subnegotiation.
func (n *negotiator) process(c Command, windowValid bool) (reply *Command, nawsBecameEnabled bool) {
	opt := c.Option

	if c.IsLocalNegotiation() {
		requested := c.IsActivateNegotiation()
		if n.peerEnabled[opt] == requested {
			return nil, false
		}
	}

	allowed := n.supported(opt, windowValid)
	replyCmd := oppositeReply(c, allowed)
	pair := sentPair{op: replyCmd.OpCode, opt: opt}

	wasEnabled := n.peerEnabled[opt]
	alreadySent := n.sentSet.RemoveFirst(func(p sentPair) bool { return p == pair })
	if !alreadySent {
		n.sentSet.Queue(pair)
	}

	if c.IsLocalNegotiation() {
		n.peerEnabled[opt] = c.IsActivateNegotiation()
	}

	if opt == OptionNAWS && !wasEnabled && n.peerEnabled[opt] && windowValid {
		nawsBecameEnabled = true
	}

	if alreadySent {
		return nil, nawsBecameEnabled
	}
	return &replyCmd, nawsBecameEnabled
}

// track records a negotiation command the engine sent outside of inbound
// processing (initial negotiation, or a later WILL/WONT NAWS triggered by
// a window-size change) so a future acknowledgment is recognized instead
// of triggering a fresh reply.
func (n *negotiator) track(c Command) {
	n.sentSet.Queue(sentPair{op: c.OpCode, opt: c.Option})
}

// initialCommands returns the negotiations the engine announces as soon as
// the transport comes up, tracking each in the sent-set.
func (n *negotiator) initialCommands(windowValid bool) []Command {
	cmds := []Command{
		{OpCode: WILL, Option: OptionAuthentication},
		{OpCode: DO, Option: OptionSuppressGA},
		{OpCode: WILL, Option: OptionLineMode},
		{OpCode: DO, Option: OptionStatus},
	}
	if windowValid {
		cmds = append(cmds, Command{OpCode: WILL, Option: OptionNAWS})
	}

	for _, c := range cmds {
		n.track(c)
	}
	return cmds
}
