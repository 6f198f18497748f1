package mcpcmder

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MCP Command", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("HOME", GinkgoT().TempDir())
	})

	It("rejects an invalid configuration before serving", func() {
		cmd := NewMCPCmd()
		cmd.SetArgs([]string{"--keep-alive", "whenever"})

		Expect(cmd.ExecuteContext(context.Background())).To(MatchError(ContainSubstring("keep_alive")))
	})

	It("does not accept positional arguments", func() {
		cmd := NewMCPCmd()
		cmd.SetArgs([]string{"extra"})

		Expect(cmd.ExecuteContext(context.Background())).To(HaveOccurred())
	})
})
