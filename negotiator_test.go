package telnet

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("negotiator", func() {
	var n *negotiator

	BeforeEach(func() {
		n = newNegotiator()
	})

	Describe("oppositeReply", func() {
		It("maps DO to WILL when allowed and WONT when refused", func() {
			Expect(oppositeReply(Command{OpCode: DO, Option: OptionStatus}, true)).
				To(Equal(Command{OpCode: WILL, Option: OptionStatus}))
			Expect(oppositeReply(Command{OpCode: DO, Option: OptionStatus}, false)).
				To(Equal(Command{OpCode: WONT, Option: OptionStatus}))
		})

		It("maps DONT to WONT regardless of allowed", func() {
			Expect(oppositeReply(Command{OpCode: DONT, Option: OptionStatus}, true)).
				To(Equal(Command{OpCode: WONT, Option: OptionStatus}))
			Expect(oppositeReply(Command{OpCode: DONT, Option: OptionStatus}, false)).
				To(Equal(Command{OpCode: WONT, Option: OptionStatus}))
		})

		It("maps WILL to DO when allowed and DONT when refused", func() {
			Expect(oppositeReply(Command{OpCode: WILL, Option: OptionEcho}, true)).
				To(Equal(Command{OpCode: DO, Option: OptionEcho}))
			Expect(oppositeReply(Command{OpCode: WILL, Option: OptionEcho}, false)).
				To(Equal(Command{OpCode: DONT, Option: OptionEcho}))
		})

		It("maps WONT to DONT regardless of allowed", func() {
			Expect(oppositeReply(Command{OpCode: WONT, Option: OptionEcho}, true)).
				To(Equal(Command{OpCode: DONT, Option: OptionEcho}))
		})
	})

	Describe("process", func() {
		It("refuses an unsupported option", func() {
			reply, naws := n.process(Command{OpCode: WILL, Option: OptionEcho}, false)
			Expect(naws).To(BeFalse())
			Expect(reply).NotTo(BeNil())
			Expect(*reply).To(Equal(Command{OpCode: DONT, Option: OptionEcho}))
		})

		It("suppresses a redundant DO once peer_enabled already matches", func() {
			reply, _ := n.process(Command{OpCode: DO, Option: OptionSuppressGA}, false)
			Expect(reply).NotTo(BeNil())
			Expect(n.enabled(OptionSuppressGA)).To(BeTrue())

			reply, _ = n.process(Command{OpCode: DO, Option: OptionSuppressGA}, false)
			Expect(reply).To(BeNil())
		})

		It("matches a reply against the sent-set instead of re-sending", func() {
			n.track(Command{OpCode: WILL, Option: OptionAuthentication})

			reply, _ := n.process(Command{OpCode: DO, Option: OptionAuthentication}, false)
			Expect(reply).To(BeNil())
			Expect(n.sentSet.Len()).To(Equal(0))
		})

		It("requires a valid window size for NAWS to be supported", func() {
			reply, naws := n.process(Command{OpCode: WILL, Option: OptionNAWS}, false)
			Expect(*reply).To(Equal(Command{OpCode: DONT, Option: OptionNAWS}))
			Expect(naws).To(BeFalse())

			reply, naws = n.process(Command{OpCode: DO, Option: OptionNAWS}, true)
			Expect(*reply).To(Equal(Command{OpCode: WILL, Option: OptionNAWS}))
			Expect(naws).To(BeTrue())
		})
	})

	Describe("initialCommands", func() {
		It("omits NAWS when the window size is invalid", func() {
			cmds := n.initialCommands(false)
			for _, c := range cmds {
				Expect(c.Option).NotTo(Equal(OptionNAWS))
			}
			Expect(n.sentSet.Len()).To(Equal(len(cmds)))
		})

		It("includes WILL NAWS when the window size is valid", func() {
			cmds := n.initialCommands(true)
			Expect(cmds[len(cmds)-1]).To(Equal(Command{OpCode: WILL, Option: OptionNAWS}))
		})
	})
})
