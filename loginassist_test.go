package telnet

import (
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("loginAssistant", func() {
	var a *loginAssistant

	BeforeEach(func() {
		a = newLoginAssistant(LoginConfig{
			LoginPattern:    regexp.MustCompile(`ogin:\s*$`),
			PasswordPattern: regexp.MustCompile(`assword:\s*$`),
			PromptPattern:   regexp.MustCompile(`\$\s*$`),
		})
		a.markNullAuthUsed()
	})

	It("is inactive until null auth has been used", func() {
		fresh := newLoginAssistant(LoginConfig{})
		Expect(fresh.active()).To(BeFalse())
	})

	It("is inactive once skip_prompt_check has been set", func() {
		a.markSkipPromptCheck()
		Expect(a.active()).To(BeFalse())
	})

	It("delivers the message and asks for credentials on first sighting of the login prompt", func() {
		act := a.process("login: ")

		Expect(act.hasMessage).To(BeTrue())
		Expect(act.message).To(Equal("login: "))
		Expect(act.loginRequired).To(BeTrue())
		Expect(act.send).To(BeNil())
		Expect(a.firstTry).To(BeFalse())
	})

	It("injects the username on the next sighting once credentials are set", func() {
		a.process("login: ")
		a.setCredentials("alice", "secret")

		act := a.process("login: ")

		Expect(act.send).To(Equal([]byte("alice")))
		Expect(act.loginRequired).To(BeFalse())
		Expect(a.triedLogin).To(BeTrue())
	})

	It("injects and then zeroes the password after it is sent", func() {
		a.process("login: ")
		a.setCredentials("alice", "secret")
		a.process("login: ")

		act := a.process("Password: ")

		Expect(act.send).To(Equal([]byte("secret")))
		Expect(a.password).To(BeEmpty())
	})

	It("declares logged in on a matching prompt and passes the text through", func() {
		act := a.process("guest@host:~$ ")

		Expect(act.loggedIn).To(BeTrue())
		Expect(a.skipPromptCheck).To(BeTrue())
		Expect(act.hasMessage).To(BeTrue())
		Expect(act.message).To(Equal("guest@host:~$ "))
	})

	It("delivers unmatched plaintext as a plain message", func() {
		act := a.process("random banner text\r\n")

		Expect(act.hasMessage).To(BeTrue())
		Expect(act.loginRequired).To(BeFalse())
		Expect(act.loggedIn).To(BeFalse())
	})
})
