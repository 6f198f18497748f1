package llm_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

var _ = Describe("Image", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("Bytes", func() {
		It("returns in-memory data without touching the filesystem", func() {
			img := llm.ImageFromBytes([]byte{0x89, 'P', 'N', 'G'})

			data, err := img.Bytes()
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{0x89, 'P', 'N', 'G'}))
		})

		It("reads a local file", func() {
			path := filepath.Join(tmpDir, "image.png")
			Expect(os.WriteFile(path, []byte("png bytes"), 0o600)).To(Succeed())

			data, err := llm.ImageFromPath(path).Bytes()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png bytes"))
		})

		It("fails with InvalidInputError for a missing file", func() {
			_, err := llm.ImageFromPath(filepath.Join(tmpDir, "missing.png")).Bytes()

			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})

		It("fails with InvalidInputError for an empty file", func() {
			path := filepath.Join(tmpDir, "empty.png")
			Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())

			_, err := llm.ImageFromPath(path).Bytes()
			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("fails with InvalidInputError for an empty reference", func() {
			_, err := llm.Image{}.Bytes()

			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
	})

	Describe("Digest", func() {
		It("is stable for the same bytes", func() {
			a, err := llm.ImageFromBytes([]byte("same")).Digest()
			Expect(err).NotTo(HaveOccurred())
			b, err := llm.ImageFromBytes([]byte("same")).Digest()
			Expect(err).NotTo(HaveOccurred())

			Expect(a).To(Equal(b))
			Expect(a).To(MatchRegexp("^[a-f0-9]{64}$"))
		})
	})

	Describe("JSON", func() {
		It("uses base64 on the wire", func() {
			msg := llm.UserMessage("hi", llm.ImageFromBytes([]byte("abc")))

			data, err := json.Marshal(msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`{"role":"user","content":"hi","images":["YWJj"]}`))
		})

		It("reads a path-only image when encoding", func() {
			path := filepath.Join(tmpDir, "image.png")
			Expect(os.WriteFile(path, []byte("abc"), 0o600)).To(Succeed())

			data, err := json.Marshal(llm.UserMessage("hi", llm.ImageFromPath(path)))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`{"role":"user","content":"hi","images":["YWJj"]}`))
		})

		It("fails to encode an unreadable image instead of dropping it", func() {
			_, err := json.Marshal(llm.UserMessage("hi", llm.ImageFromPath(filepath.Join(tmpDir, "missing.png"))))

			var invalid llm.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("decodes base64 into in-memory data", func() {
			var msg llm.Message
			Expect(json.Unmarshal([]byte(`{"role":"user","content":"hi","images":["YWJj"]}`), &msg)).To(Succeed())

			Expect(msg.Images).To(HaveLen(1))
			Expect(msg.Images[0].Data).To(Equal([]byte("abc")))
		})

		It("rejects invalid base64", func() {
			var msg llm.Message
			err := json.Unmarshal([]byte(`{"role":"user","content":"hi","images":["%%%"]}`), &msg)
			Expect(err).To(HaveOccurred())
		})
	})
})
