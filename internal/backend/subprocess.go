package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

// SubprocessConfig names the external CLI to spawn for each agent turn and
// where to run it, mirroring the teacher's AgentConfig{Command, Args}.
type SubprocessConfig struct {
	Command string
	Args    []string
	Dir     string
	Log     io.Writer
}

// Subprocess drives an agent by re-invoking a configured external CLI once
// per turn, passing the transcript on stdin and reading the reply from a
// PTY-backed stdout/stderr. Grounded on the teacher's invokeAgent: a PTY
// keeps the child's output line-buffered for real-time log tailing, while
// stdin stays a plain pipe so the child sees a proper EOF.
type Subprocess struct {
	cfg SubprocessConfig
}

// NewSubprocess builds a Subprocess backend bound to cfg.
func NewSubprocess(cfg SubprocessConfig) *Subprocess {
	return &Subprocess{cfg: cfg}
}

func (s *Subprocess) Step(ctx context.Context, transcript []Message) (Message, error) {
	input := renderTranscript(transcript)

	cmd := exec.CommandContext(ctx, s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir

	ptmx, pts, err := pty.Open()
	if err != nil {
		return Message{}, fmt.Errorf("opening pty: %w", err)
	}
	defer ptmx.Close()

	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return Message{}, &retryableError{err: fmt.Errorf("starting agent: %w", err), retryable: isTransportErr(err)}
	}
	pts.Close()

	var out strings.Builder
	tee := io.MultiWriter(&out, logOrDiscard(s.cfg.Log))
	if _, err := io.Copy(tee, ptmx); err != nil {
		var pathErr *os.PathError
		if !(errors.As(err, &pathErr) && pathErr.Err == syscall.EIO) {
			return Message{}, &retryableError{err: fmt.Errorf("reading agent output: %w", err), retryable: isTransportErr(err)}
		}
	}

	if err := cmd.Wait(); err != nil {
		return Message{}, &retryableError{err: fmt.Errorf("agent exited: %w", err), retryable: isTransportErr(err)}
	}

	return Message{Role: "assistant", Content: out.String()}, nil
}

func logOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func renderTranscript(transcript []Message) string {
	var sb strings.Builder
	for _, m := range transcript {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// isTransportErr matches the transient-error substrings the AgentDriver
// retries on: connection refused, socket reset, broken pipe.
func isTransportErr(err error) bool {
	msg := err.Error()
	for _, pat := range []string{"connection refused", "connection reset", "broken pipe", "no route to host"} {
		if strings.Contains(strings.ToLower(msg), pat) {
			return true
		}
	}
	return false
}

type retryableError struct {
	err       error
	retryable bool
}

func (e *retryableError) Error() string   { return e.err.Error() }
func (e *retryableError) Unwrap() error   { return e.err }
func (e *retryableError) Retryable() bool { return e.retryable }
