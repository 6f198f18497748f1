package describe_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/llm"
)

type fakeChatter struct {
	reply    string
	err      error
	requests []*llm.ChatRequest
}

func (f *fakeChatter) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Model:   req.Model,
		Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply},
		Done:    true,
	}, nil
}

var _ = Describe("Describer", func() {
	var (
		ctx     context.Context
		chatter *fakeChatter
	)

	BeforeEach(func() {
		ctx = context.Background()
		chatter = &fakeChatter{reply: "  A tabby cat asleep on a windowsill.\n"}
	})

	It("sends one user message carrying the prompt and the image", func() {
		d := describe.New(chatter, "llama3.2-vision")
		img := llm.ImageFromBytes([]byte("jpeg"))

		_, err := d.Describe(ctx, img)
		Expect(err).NotTo(HaveOccurred())

		Expect(chatter.requests).To(HaveLen(1))
		req := chatter.requests[0]
		Expect(req.Model).To(Equal("llama3.2-vision"))
		Expect(req.Messages).To(HaveLen(1))
		Expect(req.Messages[0].Role).To(Equal(llm.RoleUser))
		Expect(req.Messages[0].Content).To(Equal(describe.DefaultPrompt))
		Expect(req.Messages[0].Images).To(ConsistOf(img))
	})

	It("returns the trimmed assistant content", func() {
		d := describe.New(chatter, "llama3.2-vision")

		description, err := d.Describe(ctx, llm.ImageFromBytes([]byte("jpeg")))
		Expect(err).NotTo(HaveOccurred())
		Expect(description).To(Equal("A tabby cat asleep on a windowsill."))
	})

	It("uses a custom prompt", func() {
		d := describe.New(chatter, "llava", describe.WithPrompt("List the objects."))

		_, err := d.Describe(ctx, llm.ImageFromBytes([]byte("jpeg")))
		Expect(err).NotTo(HaveOccurred())
		Expect(chatter.requests[0].Messages[0].Content).To(Equal("List the objects."))
	})

	It("falls back to the configured prompt when a one-off prompt is blank", func() {
		d := describe.New(chatter, "llava")

		_, err := d.DescribeWithPrompt(ctx, llm.ImageFromBytes([]byte("jpeg")), "  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(chatter.requests[0].Messages[0].Content).To(Equal(describe.DefaultPrompt))
	})

	It("fails on an empty description", func() {
		chatter.reply = "   "
		d := describe.New(chatter, "llava")

		_, err := d.Describe(ctx, llm.ImageFromBytes([]byte("jpeg")))
		Expect(err).To(MatchError(describe.ErrEmptyDescription))
	})

	It("keeps the backend error type visible", func() {
		chatter.err = llm.ModelNotFoundError{Model: "llava"}
		d := describe.New(chatter, "llava")

		_, err := d.Describe(ctx, llm.ImageFromBytes([]byte("jpeg")))
		var notFound llm.ModelNotFoundError
		Expect(errors.As(err, &notFound)).To(BeTrue())
	})
})
