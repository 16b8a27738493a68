package telnet

import "regexp"

// LoginConfig carries the three regular expressions the login assistant
// watches plaintext for. Any of them may be nil, in which case that branch
// of the watcher never matches; this is how an application opts out of
// automatic credential injection entirely.
type LoginConfig struct {
	LoginPattern    *regexp.Regexp
	PasswordPattern *regexp.Regexp
	PromptPattern   *regexp.Regexp
}

// loginAction is everything a single process() call decided should happen,
// for the engine to carry out. Like authOutcome, the assistant never
// touches the transport or the event hooks itself.
type loginAction struct {
	hasMessage    bool
	message       string
	send          []byte
	loginRequired bool
	loggedIn      bool
}

// loginAssistant is the regex-driven watcher over plaintext described for
// credential injection, grounded on the username/password/prompt matching
// shape of a conventional telnet auto-login routine, restructured into a
// stateful per-run call instead of a single blocking login attempt.
type loginAssistant struct {
	cfg LoginConfig

	firstTry        bool
	triedLogin      bool
	triedPassword   bool
	skipPromptCheck bool
	nullAuthUsed    bool

	username []byte
	password []byte
}

func newLoginAssistant(cfg LoginConfig) *loginAssistant {
	return &loginAssistant{cfg: cfg, firstTry: true}
}

// setCredentials stores the username/password the assistant will inject
// and resets the two "have I tried this yet" flags, so a fresh pair of
// credentials gets its own attempt even mid-session.
func (a *loginAssistant) setCredentials(username, password string) {
	a.username = []byte(username)
	a.password = []byte(password)
	a.triedLogin = false
	a.triedPassword = false
}

func (a *loginAssistant) markNullAuthUsed() {
	a.nullAuthUsed = true
}

func (a *loginAssistant) markSkipPromptCheck() {
	a.skipPromptCheck = true
}

// active reports whether the assistant should inspect plaintext at all;
// outside of this window, plaintext is surfaced as a message unmodified.
func (a *loginAssistant) active() bool {
	return a.nullAuthUsed && !a.skipPromptCheck
}

// process runs one plaintext run through the watcher. Exactly one of the
// prompt/login/password branches can match; the login and password
// branches each run two independent checks - one delivers the prompt as a
// message and asks for credentials on the first sighting or a retry, the
// other sends whatever credentials are on hand the first time this prompt
// hasn't been answered yet - so a pre-supplied credential is sent on the
// very first sighting of its prompt, same call as the message.
func (a *loginAssistant) process(t string) loginAction {
	var act loginAction
	delivered := false

	if a.active() {
		switch {
		case a.cfg.PromptPattern != nil && a.cfg.PromptPattern.MatchString(t):
			act.loggedIn = true
			a.skipPromptCheck = true

		case a.cfg.LoginPattern != nil && a.cfg.LoginPattern.MatchString(t):
			if a.firstTry || a.triedLogin {
				act.hasMessage = true
				act.message = t
				act.loginRequired = true
				a.firstTry = false
				delivered = true
			}
			if !a.triedLogin {
				act.send = append([]byte(nil), a.username...)
				a.triedLogin = true
			}

		case a.cfg.PasswordPattern != nil && a.cfg.PasswordPattern.MatchString(t):
			if a.firstTry || a.triedPassword {
				act.hasMessage = true
				act.message = t
				act.loginRequired = true
				a.firstTry = false
				delivered = true
			}
			if !a.triedPassword {
				act.send = append([]byte(nil), a.password...)
				a.triedPassword = true

				for i := range a.password {
					a.password[i] = ' '
				}
				a.password = a.password[:0]
			}
		}
	}

	if !delivered && t != "" {
		act.hasMessage = true
		act.message = t
	}

	return act
}
