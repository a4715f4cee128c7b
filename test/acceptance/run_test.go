package acceptance

import (
	"bufio"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("patchwash run end-to-end", func() {
	var (
		workDir     string
		datasetPath string
		configPath  string
	)

	BeforeEach(func() {
		workDir = GinkgoT().TempDir()

		run := func(name string, args ...string) {
			c := exec.Command(name, args...)
			c.Dir = workDir
			out, err := c.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), string(out))
		}
		run("git", "init")
		run("git", "config", "user.email", "test@example.com")
		run("git", "config", "user.name", "test")
		Expect(os.WriteFile(filepath.Join(workDir, "foo.py"), []byte("def foo():\n    pass\n"), 0o644)).To(Succeed())
		run("git", "add", "-A")
		run("git", "commit", "-m", "initial")

		headOut, err := exec.Command("git", "-C", workDir, "rev-parse", "HEAD").CombinedOutput()
		Expect(err).NotTo(HaveOccurred())
		head := string(headOut)

		datasetPath = filepath.Join(workDir, "dataset.jsonl")
		task := map[string]any{
			"instance_id":       "demo-1",
			"repo":              "file://" + workDir,
			"base_commit":       trimNewline(head),
			"problem_statement": "foo() should return 1",
		}
		data, _ := json.Marshal(task)
		Expect(os.WriteFile(datasetPath, data, 0o644)).To(Succeed())

		configPath = filepath.Join(workDir, "patchwash.yaml")
		Expect(os.WriteFile(configPath, []byte("max_attempts: 1\nstep_limit: 1\npatch_compile_gate: false\n"), 0o644)).To(Succeed())
	})

	It("runs one attempt and writes a predictions file", func() {
		cmd := exec.Command(binPath,
			"--config", configPath,
			"run",
			"--dataset", datasetPath,
			"--agent-backend", "scripted",
			"--scripted-turn", "echo COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT",
		)
		cmd.Dir = workDir
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), string(out))

		entries, err := os.ReadDir(filepath.Join(workDir, "predictions"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))

		f, err := os.Open(filepath.Join(workDir, "predictions", entries[0].Name()))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		scanner := bufio.NewScanner(f)
		Expect(scanner.Scan()).To(BeTrue())

		var pred map[string]any
		Expect(json.Unmarshal(scanner.Bytes(), &pred)).To(Succeed())
		Expect(pred["instance_id"]).To(Equal("demo-1"))
	})
})

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
