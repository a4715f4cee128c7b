package backend

import (
	"context"
	"fmt"
)

// Scripted plays back a fixed sequence of assistant messages, used by the
// acceptance suite, which needs a deterministic, non-networked backend.
type Scripted struct {
	Turns []string
	step  int
}

// NewScripted builds a Scripted backend that returns each of turns in
// order, one per Step call, then repeats the final turn indefinitely.
func NewScripted(turns []string) *Scripted {
	return &Scripted{Turns: turns}
}

func (s *Scripted) Step(ctx context.Context, transcript []Message) (Message, error) {
	if len(s.Turns) == 0 {
		return Message{}, fmt.Errorf("scripted backend: no turns configured")
	}
	idx := s.step
	if idx >= len(s.Turns) {
		idx = len(s.Turns) - 1
	}
	s.step++
	return Message{Role: "assistant", Content: s.Turns[idx]}, nil
}
