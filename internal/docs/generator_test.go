package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

// echoInvoker answers "<ROLE>|<topic title>" after a random delay so that
// sections complete out of order.
func echoInvoker(calls *atomic.Int64) agent.Invoker {
	return agent.InvokerFunc(func(_ context.Context, prompt string) (string, error) {
		calls.Add(1)
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)

		first, _, _ := strings.Cut(prompt, "\n")
		role := strings.TrimPrefix(first, "You are the ")
		role, _, _ = strings.Cut(role, " of ")

		_, rest, _ := strings.Cut(prompt, "Generate a CONCISE perspective on:\n\n")
		title, _, _ := strings.Cut(rest, "\n")

		data, err := json.Marshal(domain.AgentReply{Message: role + "|" + title, Tone: "t", Emotion: "e"})
		return string(data), err
	})
}

func newGenerator(t *testing.T, inv agent.Invoker, repo store.Repository, opts Options) *Generator {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.ChunkDelay = 0
	svc, err := agent.NewService(inv, cfg)
	require.NoError(t, err)
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	g, err := NewGenerator(svc, repo, nil, opts)
	require.NoError(t, err)
	return g
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics()
	require.Len(t, topics, 5)
	assert.Equal(t, "# AI Monitoring System Enhancement", topics[0].Title)
	assert.Equal(t, "Views on expanding integration possibilities.", topics[4].Description)
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topics:\n  - title: \"# Billing\"\n    description: Pricing.\n"), 0o600))

	topics, err := LoadTopics(path)
	require.NoError(t, err)
	assert.Equal(t, []Topic{{Title: "# Billing", Description: "Pricing."}}, topics)

	_, err = LoadTopics(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseTopics([]byte("topics: []"))
	assert.Error(t, err)

	defaults, err := LoadTopics("")
	require.NoError(t, err)
	assert.Len(t, defaults, 5)
}

func TestRenderPlacesSectionsByPosition(t *testing.T) {
	var calls atomic.Int64
	g := newGenerator(t, echoInvoker(&calls), nil, Options{})

	doc := g.Render(context.Background(), "Acme", agent.ConversationContext{StartupName: "Acme"})

	assert.EqualValues(t, 25, calls.Load())
	assert.True(t, strings.HasPrefix(doc, "# Acme - Feature Development Documentation\n\n## Overview\n"))
	assert.Equal(t, 25, strings.Count(doc, "### "))
	assert.Equal(t, 4, strings.Count(doc, "\n---\n\n"))
	assert.Contains(t, doc, "Generated on: "+fixedNow().Format(time.RFC1123))

	last := -1
	for _, topic := range DefaultTopics() {
		for _, role := range agent.Roles {
			want := fmt.Sprintf("### %s Perspective (%s)\n%s|%s\n", role.Profile().Title, role.Profile().Focus, role.Token(), topic.Title)
			idx := strings.Index(doc, want)
			require.NotEqual(t, -1, idx, "missing section %q", want)
			assert.Greater(t, idx, last, "section %q out of order", want)
			last = idx
		}
	}
}

func TestRenderAllFailuresStillProducesEverySection(t *testing.T) {
	g := newGenerator(t, agent.InvokerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model down")
	}), nil, Options{Concurrency: 3})

	doc := g.Render(context.Background(), "Acme", agent.ConversationContext{StartupName: "Acme"})

	assert.Equal(t, 25, strings.Count(doc, "### "))
	assert.Equal(t, 25, strings.Count(doc, "perspective unavailable"))
	assert.Contains(t, doc, "### Product Manager Perspective (Product Development)\nPM perspective unavailable: ")
}

func TestRenderInvalidRepliesStillProduceEverySection(t *testing.T) {
	g := newGenerator(t, agent.InvokerFunc(func(context.Context, string) (string, error) {
		return "I cannot comply.", nil
	}), nil, Options{Concurrency: 4})

	doc := g.Render(context.Background(), "Acme", agent.ConversationContext{StartupName: "Acme"})

	assert.Equal(t, 25, strings.Count(doc, "### "))
	assert.Equal(t, 25, strings.Count(doc, "perspective unavailable"))
	assert.NotContains(t, doc, "I cannot comply.")
}

func TestRenderTrimsSectionContent(t *testing.T) {
	g := newGenerator(t, agent.InvokerFunc(func(context.Context, string) (string, error) {
		return `{"message": "\n  Ship it.  \n\n", "tone": "t", "emotion": "e"}`, nil
	}), nil, Options{})

	doc := g.Render(context.Background(), "Acme", agent.ConversationContext{StartupName: "Acme"})

	assert.Equal(t, 25, strings.Count(doc, "\nShip it.\n"))
	assert.NotContains(t, doc, "  Ship it.")
}

func TestRenderCancelledContextFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := newGenerator(t, agent.InvokerFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}), nil, Options{})

	doc := g.Render(ctx, "Acme", agent.ConversationContext{})
	assert.Equal(t, 25, strings.Count(doc, "perspective unavailable"))
}

func TestRenderHonorsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int64
	inv := agent.InvokerFunc(func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return `{"message":"m","tone":"t","emotion":"e"}`, nil
	})
	g := newGenerator(t, inv, nil, Options{Concurrency: 2})

	g.Render(context.Background(), "Acme", agent.ConversationContext{})
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestGeneratePersistsDocumentation(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	sim := &domain.Simulation{UserID: "u1", StartupName: "Acme", Industry: "SaaS", Description: "widgets"}
	require.NoError(t, repo.CreateSimulation(ctx, sim))

	var calls atomic.Int64
	g := newGenerator(t, echoInvoker(&calls), repo, Options{})

	doc, err := g.Generate(ctx, sim)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, DocTone, doc.Metadata.Tone)
	assert.Equal(t, DocEmotion, doc.Metadata.Emotion)
	assert.Equal(t, "SaaS", doc.Metadata.Context.Industry)

	stored, err := repo.ListDocumentation(ctx, sim.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, doc.Content, stored[0].Content)
}

func TestGenerateWithoutRepository(t *testing.T) {
	var calls atomic.Int64
	g := newGenerator(t, echoInvoker(&calls), nil, Options{})
	_, err := g.Generate(context.Background(), &domain.Simulation{ID: "s"})
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}
