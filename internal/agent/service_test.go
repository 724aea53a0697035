package agent

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInvoker returns a fixed answer and remembers every prompt.
type recordingInvoker struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (r *recordingInvoker) Invoke(_ context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.answer, r.err
}

func newTestService(t *testing.T, inv Invoker) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ChunkDelay = 0
	svc, err := NewService(inv, cfg)
	require.NoError(t, err)
	return svc
}

var acme = ConversationContext{StartupName: "Acme", Industry: "SaaS", Description: "widgets"}

func TestNewServiceRequiresInvoker(t *testing.T) {
	_, err := NewService(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestGenerateAgentResponseAcmeScenario(t *testing.T) {
	inv := &recordingInvoker{answer: `{"message":"Usage-based.","tone":"confident","emotion":"neutral"}`}
	svc := newTestService(t, inv)

	reply, err := svc.GenerateAgentResponse(context.Background(), RoleCEO, "What's our pricing model?", acme)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentReply{Message: "Usage-based.", Tone: "confident", Emotion: "neutral"}, reply)

	require.Len(t, inv.prompts, 1)
	for _, want := range []string{"CEO", "Acme", "SaaS", "What's our pricing model?"} {
		assert.Contains(t, inv.prompts[0], want)
	}
}

func TestGenerateAgentResponseRejectsPlainText(t *testing.T) {
	svc := newTestService(t, &recordingInvoker{answer: "I cannot comply."})

	_, err := svc.GenerateAgentResponse(context.Background(), RoleCEO, "hi", acme)
	var parseErr *ResponseParseError
	assert.True(t, errors.As(err, &parseErr), "got %T: %v", err, err)
}

func TestGenerateAgentResponseWrapsInvokerErrors(t *testing.T) {
	upstream := &UpstreamRequestError{StatusCode: 503}
	svc := newTestService(t, &recordingInvoker{err: upstream})
	_, err := svc.GenerateAgentResponse(context.Background(), RoleCTO, "hi", acme)
	var reqErr *UpstreamRequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Same(t, upstream, reqErr)

	svc = newTestService(t, &recordingInvoker{err: errors.New("dial tcp: refused")})
	_, err = svc.GenerateAgentResponse(context.Background(), RoleCTO, "hi", acme)
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 0, reqErr.StatusCode)
}

func TestGenerateAgentResponseKeepsContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newTestService(t, InvokerFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}))

	_, err := svc.GenerateAgentResponse(ctx, RoleCEO, "hi", acme)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsPipelineError(err))
}

func TestRespondOrFallbackNeverFails(t *testing.T) {
	svc := newTestService(t, &recordingInvoker{answer: `{"message":"","tone":"t","emotion":"e"}`})

	reply := svc.RespondOrFallback(context.Background(), RoleMarketing, "hi", acme)
	assert.True(t, strings.HasPrefix(reply.Message, "MARKETING perspective unavailable: "), reply.Message)
	assert.Equal(t, "professional", reply.Tone)
	assert.Equal(t, "neutral", reply.Emotion)

	_, err := svc.Respond(context.Background(), RoleMarketing, "hi", acme)
	var shapeErr *ResponseShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestGenerateAgentResponseStreamDeliversWords(t *testing.T) {
	answer := `{"message":"Build  the\tthing now","tone":"t","emotion":"e"}`
	svc := newTestService(t, &recordingInvoker{answer: answer})

	var chunks []string
	reply, err := svc.GenerateAgentResponseStream(context.Background(), RoleCEO, "hi", acme, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Build ", "the ", "thing ", "now "}, chunks)
	assert.Equal(t, "Build  the\tthing now", reply.Message, "streaming must not alter the reply")
}

func TestGenerateAgentResponseStreamSinkErrorStopsDelivery(t *testing.T) {
	svc := newTestService(t, &recordingInvoker{answer: `{"message":"a b c d","tone":"t","emotion":"e"}`})

	calls := 0
	reply, err := svc.GenerateAgentResponseStream(context.Background(), RoleCEO, "hi", acme, func(string) error {
		calls++
		if calls == 2 {
			return errors.New("client gone")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "a b c d", reply.Message)
}

func TestWordsReplaysAndHonorsContext(t *testing.T) {
	seq := Words(context.Background(), "one two three", 0)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, []string{"one ", "two ", "three "}, first)
	assert.Equal(t, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []string
	for w := range Words(ctx, "one two three", time.Millisecond) {
		got = append(got, w)
		cancel()
	}
	assert.Equal(t, []string{"one "}, got)

	assert.Empty(t, slices.Collect(Words(context.Background(), "   ", 0)))
}

func TestWordsDelay(t *testing.T) {
	start := time.Now()
	n := 0
	for range Words(context.Background(), "a b c", 10*time.Millisecond) {
		n++
	}
	assert.Equal(t, 3, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAskReturnsRawMarkdown(t *testing.T) {
	inv := &recordingInvoker{answer: "## Plan\n- step one"}
	svc := newTestService(t, inv)
	sim := &domain.Simulation{StartupName: "Acme", Industry: "SaaS"}

	answer, err := svc.Ask(context.Background(), RoleCTO, sim, "Next?", nil)
	require.NoError(t, err)
	assert.Equal(t, "## Plan\n- step one", answer)
	assert.Contains(t, inv.prompts[0], "Question from the team: Next?")

	inv.err = &UpstreamRequestError{StatusCode: 500}
	_, err = svc.Ask(context.Background(), RoleCTO, sim, "Next?", nil)
	assert.True(t, IsPipelineError(err))
}

func TestServiceIsSafeForConcurrentUse(t *testing.T) {
	svc := newTestService(t, InvokerFunc(func(_ context.Context, prompt string) (string, error) {
		return `{"message":"ok","tone":"t","emotion":"e"}`, nil
	}))

	var wg sync.WaitGroup
	for _, role := range Roles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := svc.GenerateAgentResponse(context.Background(), role, "hi", acme)
			assert.NoError(t, err)
			assert.Equal(t, "ok", reply.Message)
		}()
	}
	wg.Wait()
}
