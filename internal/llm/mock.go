package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/haasonsaas/agui/internal/tokens"
	"github.com/haasonsaas/agui/pkg/models"
)

// Step is one scripted turn: either a completion or an error.
type Step struct {
	Completion *Completion
	Err        error
}

// Scripted is a deterministic Client for tests. It replays a fixed sequence
// of steps and records the prompts it receives.
type Scripted struct {
	mu      sync.Mutex
	steps   []Step
	idx     int
	Prompts []string
}

// NewScripted creates a scripted client that replays the given steps in
// order. Calls past the end of the script repeat the last step.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// DecisionStep marshals a decision into a completion step.
func DecisionStep(decision models.AgentDecision, tokensUsed int) Step {
	raw, err := json.Marshal(decision)
	if err != nil {
		return Step{Err: err}
	}
	return Step{Completion: &Completion{
		Content:      string(raw),
		TokensUsed:   tokensUsed,
		FinishReason: "stop",
		Model:        "scripted",
	}}
}

// ErrStep wraps an error into a script step.
func ErrStep(err error) Step {
	return Step{Err: err}
}

func (s *Scripted) Complete(_ context.Context, prompt string, _ *CallConfig) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if len(s.steps) == 0 {
		return nil, &APIError{Status: 500, Message: "scripted client has no steps"}
	}
	step := s.steps[s.idx]
	if s.idx < len(s.steps)-1 {
		s.idx++
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Completion, nil
}

func (s *Scripted) CountTokens(text string) int {
	return tokens.Estimate(text)
}

// Calls returns how many completions have been requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}
