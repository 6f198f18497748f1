package mcpserver_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/mcpserver"
	"github.com/papercomputeco/glimpse/pkg/ollama"
	"github.com/papercomputeco/glimpse/pkg/ollama/ollamatest"
)

const model = "llama3.2-vision"

func text(result *mcp.CallToolResult) string {
	Expect(result.Content).To(HaveLen(1))
	content, ok := result.Content[0].(*mcp.TextContent)
	Expect(ok).To(BeTrue())
	return content.Text
}

var _ = Describe("Server", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		backend *ollamatest.Server
		session *mcp.ClientSession
		image   string
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		backend = ollamatest.NewServer(model)
		DeferCleanup(backend.Close)

		client, err := ollama.New(ollama.Config{Host: backend.URL}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		image = filepath.Join(GinkgoT().TempDir(), "image.png")
		Expect(os.WriteFile(image, []byte("png-bytes"), 0o600)).To(Succeed())

		server := mcpserver.New(describe.New(client, model), client, model, "test", zap.NewNop())
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		go func() {
			defer GinkgoRecover()
			_ = server.Serve(ctx, serverTransport)
		}()

		mcpClient := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
		session, err = mcpClient.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(session.Close)
	})

	It("lists both tools", func() {
		result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, 0, len(result.Tools))
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		Expect(names).To(ConsistOf("describe_image", "chat"))
	})

	It("describes an image file", func() {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "describe_image",
			Arguments: map[string]any{"path": image, "prompt": "what is this?"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())
		Expect(text(result)).To(Equal(ollamatest.DefaultReply))

		requests := backend.Requests()
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Messages[0].Content).To(Equal("what is this?"))
		Expect(requests[0].Messages[0].Images).To(HaveLen(1))
	})

	It("reports a missing image as a tool error without calling the backend", func() {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "describe_image",
			Arguments: map[string]any{"path": filepath.Join(GinkgoT().TempDir(), "missing.png")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
		Expect(text(result)).To(ContainSubstring("invalid input"))
		Expect(backend.Requests()).To(BeEmpty())
	})

	It("chats with attached images", func() {
		backend.SetReply("Two squares.")

		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "chat",
			Arguments: map[string]any{"prompt": "compare", "images": []string{image, image}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())
		Expect(text(result)).To(Equal("Two squares."))

		requests := backend.Requests()
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Model).To(Equal(model))
		Expect(requests[0].Messages[0].Images).To(HaveLen(2))
	})

	It("reports an unknown model as a tool error", func() {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "chat",
			Arguments: map[string]any{"prompt": "hello", "model": "missing-model"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
		Expect(text(result)).To(ContainSubstring("model not found"))
	})
})
