package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
)

// Service generates agent replies by prompting a model and validating its answer.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	invoker Invoker
	cfg     Config
}

// NewService creates a new agent service.
func NewService(invoker Invoker, cfg Config) (*Service, error) {
	if invoker == nil {
		return nil, errors.New("agent: invoker is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	return &Service{invoker: invoker, cfg: cfg}, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// GenerateAgentResponse builds the prompt, calls the model once and parses the
// reply contract. Errors are pipeline errors or context errors.
func (s *Service) GenerateAgentResponse(ctx context.Context, role Role, message string, cc ConversationContext) (domain.AgentReply, error) {
	start := time.Now()
	prompt := BuildPrompt(role, message, cc)

	raw, err := s.invoker.Invoke(ctx, prompt)
	if err != nil {
		err = classifyInvokeError(ctx, err)
		slog.Warn("Agent model call failed",
			"agent", role,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return domain.AgentReply{}, err
	}

	reply, err := ParseReply(raw)
	if err != nil {
		slog.Warn("Agent reply rejected",
			"agent", role,
			"raw_length", len(raw),
			"error", err,
		)
		return domain.AgentReply{}, err
	}

	slog.Debug("Agent reply generated",
		"agent", role,
		"duration_ms", time.Since(start).Milliseconds(),
		"message_length", len(reply.Message),
	)
	return reply, nil
}

// GenerateAgentResponseStream generates a reply and then feeds its message to
// sink word by word. A sink error stops delivery but the reply is still returned.
func (s *Service) GenerateAgentResponseStream(ctx context.Context, role Role, message string, cc ConversationContext, sink ChunkSink) (domain.AgentReply, error) {
	reply, err := s.GenerateAgentResponse(ctx, role, message, cc)
	if err != nil {
		return reply, err
	}
	if sink == nil {
		return reply, nil
	}

	for chunk := range Words(ctx, reply.Message, s.cfg.ChunkDelay) {
		if err := sink(chunk); err != nil {
			slog.Warn("Chunk delivery stopped", "agent", role, "error", err)
			break
		}
	}
	return reply, nil
}

// Respond is the fail-fast policy used by interactive chat.
func (s *Service) Respond(ctx context.Context, role Role, message string, cc ConversationContext) (domain.AgentReply, error) {
	return s.GenerateAgentResponse(ctx, role, message, cc)
}

// RespondOrFallback never fails: any error is replaced by FallbackReply.
func (s *Service) RespondOrFallback(ctx context.Context, role Role, message string, cc ConversationContext) domain.AgentReply {
	reply, err := s.GenerateAgentResponse(ctx, role, message, cc)
	if err != nil {
		return FallbackReply(role, err)
	}
	return reply
}

// Ask answers a free-form question in markdown. The model text is returned as is.
func (s *Service) Ask(ctx context.Context, role Role, sim *domain.Simulation, question string, outputs []*domain.AgentOutput) (string, error) {
	if sim == nil {
		return "", errors.New("agent: simulation is required")
	}
	answer, err := s.invoker.Invoke(ctx, BuildAskPrompt(role, sim, question, outputs))
	if err != nil {
		return "", classifyInvokeError(ctx, err)
	}
	return answer, nil
}

func classifyInvokeError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var req *UpstreamRequestError
	var form *UpstreamFormatError
	if errors.As(err, &req) || errors.As(err, &form) {
		return err
	}
	return &UpstreamRequestError{Err: fmt.Errorf("invoke: %w", err)}
}
