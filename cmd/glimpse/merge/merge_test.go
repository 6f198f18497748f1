package mergecmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/merkle"
)

var _ = Describe("Merge Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		srcPath string
		dstPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "glimpse-merge-test-*")
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv("HOME", tmpDir)
		srcPath = filepath.Join(tmpDir, "source.db")
		dstPath = filepath.Join(tmpDir, "target.db")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	makeNode := func(role, text string, parent *merkle.Node) *merkle.Node {
		return merkle.NewNode(merkle.Bucket{
			Type:    "message",
			Role:    role,
			Content: text,
			Model:   "test-model",
		}, parent)
	}

	seed := func(path string, nodes ...*merkle.Node) {
		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		for _, n := range nodes {
			_, err := s.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	count := func(path string) int {
		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		nodes, err := s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return len(nodes)
	}

	merge := func(args ...string) (string, error) {
		out := &bytes.Buffer{}
		cmd := NewMergeCmd()
		cmd.SetOut(out)
		cmd.SetArgs(append([]string{"--sqlite", dstPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("merges nodes from source into target", func() {
		nodeA := makeNode("user", "hello from source", nil)
		seed(srcPath, nodeA, makeNode("assistant", "hi back", nodeA))
		seed(dstPath, makeNode("user", "hello from target", nil))

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("2 new, 0 already existed"))

		Expect(count(dstPath)).To(Equal(3))
	})

	It("deduplicates when merging the same source twice", func() {
		seed(srcPath, makeNode("user", "dedup test", nil))

		_, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("0 new, 1 already existed"))

		Expect(count(dstPath)).To(Equal(1))
	})

	It("merges multiple sources", func() {
		src2Path := filepath.Join(tmpDir, "source2.db")
		seed(srcPath, makeNode("user", "from source 1", nil))
		seed(src2Path, makeNode("user", "from source 2", nil))

		out, err := merge(srcPath, src2Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Merged 2 new nodes from 2 sources"))

		Expect(count(dstPath)).To(Equal(2))
	})

	It("refuses nodes whose hash does not match their content", func() {
		tampered := makeNode("user", "original", nil)
		tampered.Content.Content = "changed"
		seed(srcPath, tampered)

		_, err := merge(srcPath)
		Expect(err).To(MatchError(ContainSubstring("does not match its content")))
		Expect(count(dstPath)).To(Equal(0))
	})
})
