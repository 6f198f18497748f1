package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glimpse/pkg/watch"
)

var _ = Describe("IsImage", func() {
	DescribeTable("matches by extension",
		func(path string, expected bool) {
			Expect(watch.IsImage(path)).To(Equal(expected))
		},
		Entry("png", "shot.png", true),
		Entry("upper-case jpeg", "IMG_0001.JPEG", true),
		Entry("webp", "/tmp/a.webp", true),
		Entry("text", "notes.txt", false),
		Entry("no extension", "README", false),
	)
})

var _ = Describe("Watcher", func() {
	var (
		dir    string
		mu     sync.Mutex
		seen   []string
		cancel context.CancelFunc
		done   chan struct{}
	)

	delivered := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		seen = nil

		w, err := watch.New(dir, func(_ context.Context, path string) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, path)
		}, watch.WithSettle(50*time.Millisecond))
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(BeClosed())
	})

	It("delivers new images once they settle", func() {
		path := filepath.Join(dir, "image.png")
		Expect(os.WriteFile(path, []byte("png"), 0o600)).To(Succeed())

		Eventually(delivered, 2*time.Second).Should(ConsistOf(path))
	})

	It("delivers a file once even when it is written in several chunks", func() {
		path := filepath.Join(dir, "slow.jpg")
		f, err := os.Create(path)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			_, err = f.Write([]byte("chunk"))
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(10 * time.Millisecond)
		}
		Expect(f.Close()).To(Succeed())

		Eventually(delivered, 2*time.Second).Should(HaveLen(1))
		Consistently(delivered, 200*time.Millisecond).Should(HaveLen(1))
	})

	It("ignores files that are not images", func() {
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600)).To(Succeed())

		Consistently(delivered, 300*time.Millisecond).Should(BeEmpty())
	})
})

var _ = Describe("New", func() {
	It("fails for a missing directory", func() {
		_, err := watch.New(filepath.Join(GinkgoT().TempDir(), "missing"), func(context.Context, string) {})
		Expect(err).To(HaveOccurred())
	})
})
