package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ashureev/foundersync/internal/agent"
)

// Scripted is a local invoker that answers every prompt with a valid reply
// contract. It lets the service run without model credentials.
type Scripted struct {
	calls atomic.Int64
}

var _ agent.Invoker = (*Scripted)(nil)

// NewScripted creates a scripted invoker.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Calls returns how many prompts have been answered.
func (s *Scripted) Calls() int64 {
	return s.calls.Load()
}

// Invoke answers deterministically from the prompt's first line.
func (s *Scripted) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.calls.Add(1)

	persona := "TEAM MEMBER"
	first, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	if rest, ok := strings.CutPrefix(first, "You are the "); ok {
		if who, _, found := strings.Cut(rest, " of "); found {
			persona = who
		}
	}

	reply := map[string]string{
		"message": fmt.Sprintf("As %s, I'd start small: validate the riskiest assumption this week and report back.", persona),
		"tone":    "confident",
		"emotion": "neutral",
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(data) + "\n```", nil
}
