// Package backend implements AgentBackend: the boundary between
// AttemptController and whatever actually edits files — a scripted replay
// for tests, a subprocess-spawned CLI agent (grounded on the teacher's
// invokeAgent), or a local Ollama-backed chat loop.
package backend

import "context"

// Message is one transcript turn. Role is "system", "user", or
// "assistant".
type Message struct {
	Role    string
	Content string
}

// Observation is what AttemptController feeds back to the backend after
// executing the agent's requested action, plus any loopguard warnings to
// inject ahead of the next turn.
type Observation struct {
	Content  string
	Warnings []string
	Done     bool
}

// Backend drives one agent turn at a time, returning the assistant's next
// message for the caller to interpret as a shell action (per the
// mini-swe-agent action/observation template convention).
type Backend interface {
	// Step sends the transcript so far and returns the assistant's next
	// message. The caller is responsible for executing any command it
	// contains and building the next Observation.
	Step(ctx context.Context, transcript []Message) (Message, error)
}

// RetryableError is satisfied by backend failures the AgentDriver should
// retry rather than abandon the attempt over — connection refused, socket
// reset, or similar transport errors.
type RetryableError interface {
	error
	Retryable() bool
}
