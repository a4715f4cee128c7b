package acceptance

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("patchwash version", func() {
	It("prints a version string", func() {
		cmd := exec.Command(binPath, "version")
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).NotTo(BeEmpty())
	})
})

var _ = Describe("patchwash run", func() {
	Context("when --dataset is missing", func() {
		It("fails with a clear error", func() {
			cmd := exec.Command(binPath, "run")
			out, err := cmd.CombinedOutput()
			Expect(err).To(HaveOccurred())
			Expect(string(out)).To(ContainSubstring("--dataset"))
		})
	})

	Context("when the dataset cache file doesn't exist", func() {
		It("reports it isn't cached", func() {
			cmd := exec.Command(binPath, "run", "--dataset", "/nonexistent/cache.jsonl")
			out, err := cmd.CombinedOutput()
			Expect(err).To(HaveOccurred())
			Expect(string(out)).To(ContainSubstring("not cached"))
		})
	})
})
