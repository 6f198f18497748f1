package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/merkle"
	"github.com/papercomputeco/glimpse/pkg/ollama/ollamatest"
)

const model = "llama3.2-vision"

var _ = Describe("Chat Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		backend *ollamatest.Server
		out     *bytes.Buffer
		image   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", tmpDir)
		GinkgoT().Setenv("OLLAMA_HOST", "")
		GinkgoT().Setenv("GLIMPSE_MODEL", "")

		backend = ollamatest.NewServer(model)
		DeferCleanup(backend.Close)

		out = &bytes.Buffer{}
		image = filepath.Join(tmpDir, "image.png")
		Expect(os.WriteFile(image, []byte("png-bytes"), 0o600)).To(Succeed())
	})

	execute := func(args ...string) error {
		cmd := NewChatCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--host", backend.URL}, args...))
		return cmd.ExecuteContext(ctx)
	}

	// split separates the printed response from the trailing elapsed line.
	split := func() (string, float64) {
		text := strings.TrimRight(out.String(), "\n")
		idx := strings.LastIndex(text, "\n")
		Expect(idx).To(BeNumerically(">", 0))

		minutes, err := strconv.ParseFloat(text[idx+1:], 64)
		Expect(err).NotTo(HaveOccurred())
		return text[:idx], minutes
	}

	It("prints the full response followed by the elapsed minutes", func() {
		Expect(execute("--image", image)).To(Succeed())

		body, minutes := split()
		Expect(minutes).To(BeNumerically(">=", 0))
		Expect(minutes).To(BeNumerically("<", 1))

		var resp llm.ChatResponse
		Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
		Expect(resp.Done).To(BeTrue())
		Expect(resp.Model).To(Equal(model))
		Expect(resp.Message.Role).To(Equal(llm.RoleAssistant))
		Expect(resp.Message.Content).To(Equal(ollamatest.DefaultReply))
	})

	It("sends the default prompt with the image attached", func() {
		Expect(execute("--image", image)).To(Succeed())

		requests := backend.Requests()
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Model).To(Equal(model))
		Expect(requests[0].Messages).To(HaveLen(1))
		Expect(requests[0].Messages[0].Role).To(Equal("user"))
		Expect(requests[0].Messages[0].Content).To(Equal("you are an expert at describing the following image"))
		Expect(requests[0].Messages[0].Images).To(HaveLen(1))
		Expect([]byte(requests[0].Messages[0].Images[0])).To(Equal([]byte("png-bytes")))
	})

	It("attaches every image in order and honours the prompt and system flags", func() {
		second := filepath.Join(tmpDir, "second.png")
		Expect(os.WriteFile(second, []byte("second"), 0o600)).To(Succeed())

		Expect(execute("-i", image, "-i", second, "-p", "compare", "--system", "be brief")).To(Succeed())

		requests := backend.Requests()
		Expect(requests).To(HaveLen(1))
		msgs := requests[0].Messages
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal("system"))
		Expect(msgs[1].Content).To(Equal("compare"))
		Expect(msgs[1].Images).To(HaveLen(2))
		Expect([]byte(msgs[1].Images[1])).To(Equal([]byte("second")))
	})

	It("sends the prompt alone for an empty --image", func() {
		Expect(execute("--image", "", "-p", "hello")).To(Succeed())

		requests := backend.Requests()
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Messages[0].Images).To(BeEmpty())
	})

	It("renders markdown when asked", func() {
		backend.SetReply("A **red** square.")
		Expect(execute("--image", image, "--markdown")).To(Succeed())

		body, _ := split()
		Expect(body).To(ContainSubstring("red"))
		Expect(body).To(ContainSubstring(model))
		Expect(body).NotTo(HavePrefix("{"))
	})

	It("fails with ModelNotFoundError for an unknown model", func() {
		err := execute("--image", image, "--model", "missing")

		var notFound llm.ModelNotFoundError
		Expect(errors.As(err, &notFound)).To(BeTrue())
		Expect(notFound.Model).To(Equal("missing"))
		Expect(out.String()).To(BeEmpty())
	})

	It("fails with InvalidInputError for a missing image without calling the backend", func() {
		err := execute("--image", filepath.Join(tmpDir, "missing.png"))

		var invalid llm.InvalidInputError
		Expect(errors.As(err, &invalid)).To(BeTrue())
		Expect(backend.Requests()).To(BeEmpty())
		Expect(out.String()).To(BeEmpty())
	})

	It("fails with ConnectionError when the backend is down", func() {
		backend.Close()
		err := execute("--image", image)

		var conn llm.ConnectionError
		Expect(errors.As(err, &conn)).To(BeTrue())
		Expect(out.String()).To(BeEmpty())
	})

	It("records the turn when --record is set", func() {
		dbPath := filepath.Join(tmpDir, "glimpse.db")
		Expect(execute("--image", image, "--record", dbPath)).To(Succeed())

		storer, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
	})
})
