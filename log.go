package telnet

// warn emits a structured warning for a protocol-framing error the parser
// or negotiator recovered from on its own: a malformed suboption or an
// unknown command byte, per the error taxonomy's "logged as warnings, byte
// skipped, connection continues" rule. It never surfaces to the
// application as an error event - only transport failures do that.
func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

func (e *Engine) debug(msg string, args ...any) {
	e.logger.Debug(msg, args...)
}
