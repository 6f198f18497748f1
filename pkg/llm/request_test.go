package llm_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

var _ = Describe("ChatRequest", func() {
	Describe("Validate", func() {
		It("accepts a well-formed request", func() {
			req := &llm.ChatRequest{
				Model:    "llama3.2-vision",
				Messages: []llm.Message{llm.UserMessage("describe this image")},
			}

			Expect(req.Validate()).To(Succeed())
		})

		It("accepts every known role", func() {
			req := &llm.ChatRequest{
				Model: "llama3.2-vision",
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: "be brief"},
					{Role: llm.RoleUser, Content: "hi"},
					{Role: llm.RoleAssistant, Content: "hello"},
				},
			}

			Expect(req.Validate()).To(Succeed())
		})

		It("rejects an empty model", func() {
			req := &llm.ChatRequest{
				Messages: []llm.Message{llm.UserMessage("hi")},
			}

			err := req.Validate()
			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Reason).To(ContainSubstring("model"))
		})

		It("rejects an empty message list", func() {
			req := &llm.ChatRequest{Model: "llama3.2-vision"}

			err := req.Validate()
			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("rejects an unknown role", func() {
			req := &llm.ChatRequest{
				Model:    "llama3.2-vision",
				Messages: []llm.Message{{Role: "tool", Content: "42"}},
			}

			err := req.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(`unknown role "tool"`))
		})
	})
})

var _ = Describe("Options", func() {
	It("returns nil when nothing is set", func() {
		var o *llm.Options
		Expect(o.Map()).To(BeNil())
		Expect((&llm.Options{}).Map()).To(BeNil())
	})

	It("includes only the set parameters", func() {
		temp := 0.2
		seed := 7
		o := &llm.Options{Temperature: &temp, Seed: &seed, Stop: []string{"###"}}

		Expect(o.Map()).To(Equal(map[string]any{
			"temperature": 0.2,
			"seed":        7,
			"stop":        []string{"###"},
		}))
	})
})

var _ = Describe("ChatRequest.Resolve", func() {
	It("loads image files once and leaves the original untouched", func() {
		path := filepath.Join(GinkgoT().TempDir(), "frame.png")
		Expect(os.WriteFile(path, []byte("first"), 0o600)).To(Succeed())

		req := &llm.ChatRequest{
			Model: "llama3.2-vision",
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "be brief"},
				llm.UserMessage("describe", llm.ImageFromPath(path)),
			},
		}

		resolved, err := req.Resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, []byte("second"), 0o600)).To(Succeed())

		data, err := resolved.Messages[1].Images[0].Bytes()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("first"))
		Expect(resolved.Messages[1].Images[0].Path).To(Equal(path))
		Expect(req.Messages[1].Images[0].Data).To(BeNil())
	})

	It("fails with InvalidInputError for an unreadable image", func() {
		req := &llm.ChatRequest{
			Model:    "llama3.2-vision",
			Messages: []llm.Message{llm.UserMessage("describe", llm.ImageFromPath("/nonexistent/frame.png"))},
		}

		_, err := req.Resolve()
		var invalid llm.InvalidInputError
		Expect(errors.As(err, &invalid)).To(BeTrue())
	})
})

var _ = Describe("Errors", func() {
	It("unwraps to the underlying cause", func() {
		cause := errors.New("dial tcp: connection refused")
		err := error(llm.ConnectionError{Host: "http://127.0.0.1:11434", Err: cause})

		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(Equal("could not connect to http://127.0.0.1:11434: dial tcp: connection refused"))
	})

	It("names the missing model", func() {
		err := llm.ModelNotFoundError{Model: "llama3.2-vision"}
		Expect(err.Error()).To(Equal("model not found: llama3.2-vision"))
	})
})
