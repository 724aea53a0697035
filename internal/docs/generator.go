package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/store"
	"golang.org/x/sync/errgroup"
)

// Metadata values stored with every generated document.
const (
	DocTone    = "professional"
	DocEmotion = "confident"
)

// Options tunes a Generator.
type Options struct {
	// Concurrency bounds the number of in-flight model calls. Zero means unbounded.
	Concurrency int
	// HistoryLimit is the number of recent conversations given to each section.
	HistoryLimit int
	Now          func() time.Time
}

// Generator fans a documentation request out to every (topic, role) pair.
type Generator struct {
	agent  *agent.Service
	repo   store.Repository
	topics []Topic
	opts   Options
}

// NewGenerator creates a generator. A nil repo is allowed when only Render is used.
func NewGenerator(svc *agent.Service, repo store.Repository, topics []Topic, opts Options) (*Generator, error) {
	if svc == nil {
		return nil, errors.New("docs: agent service is required")
	}
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = svc.Config().HistoryLimit
	}
	return &Generator{agent: svc, repo: repo, topics: topics, opts: opts}, nil
}

// Topics returns the catalog the generator uses.
func (g *Generator) Topics() []Topic {
	return g.topics
}

// Render builds the document text. Model failures become fallback sections,
// so the result always holds one section per topic and role.
func (g *Generator) Render(ctx context.Context, startupName string, cc agent.ConversationContext) string {
	roles := agent.Roles
	sections := make([]string, len(g.topics)*len(roles))

	eg, ctx := errgroup.WithContext(ctx)
	if g.opts.Concurrency > 0 {
		eg.SetLimit(g.opts.Concurrency)
	}
	for ti, topic := range g.topics {
		for ri, role := range roles {
			eg.Go(func() error {
				prompt := agent.BuildSectionPrompt(role, startupName, topic.section())
				reply := g.agent.RespondOrFallback(ctx, role, prompt, cc)
				sections[ti*len(roles)+ri] = renderSection(role, reply.Message)
				return nil
			})
		}
	}
	// Every task returns nil.
	_ = eg.Wait()

	blocks := make([]string, len(g.topics))
	for ti, topic := range g.topics {
		perspectives := sections[ti*len(roles) : (ti+1)*len(roles)]
		blocks[ti] = fmt.Sprintf("%s\n%s\n\n%s\n", topic.Title, topic.Description, strings.Join(perspectives, "\n"))
	}

	return renderDocument(startupName, strings.Join(blocks, "\n---\n\n"), g.opts.Now())
}

// Generate renders documentation for a simulation and persists it.
func (g *Generator) Generate(ctx context.Context, sim *domain.Simulation) (*domain.Documentation, error) {
	if g.repo == nil {
		return nil, errors.New("docs: generator has no repository")
	}

	convs, err := g.repo.RecentConversations(ctx, sim.ID, g.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	cc := agent.BuildContext(sim, convs)

	start := time.Now()
	content := g.Render(ctx, sim.StartupName, cc)

	doc := &domain.Documentation{
		SimulationID: sim.ID,
		Content:      content,
		Metadata: domain.DocMetadata{
			Tone:    DocTone,
			Emotion: DocEmotion,
			Context: domain.DocContext{
				StartupName: sim.StartupName,
				Industry:    sim.Industry,
				Description: sim.Description,
			},
		},
		GeneratedAt: g.opts.Now(),
	}
	if err := g.repo.SaveDocumentation(ctx, doc); err != nil {
		return nil, fmt.Errorf("save documentation: %w", err)
	}

	slog.Info("Documentation generated",
		"simulation_id", sim.ID,
		"topics", len(g.topics),
		"sections", len(g.topics)*len(agent.Roles),
		"duration", time.Since(start),
	)
	return doc, nil
}

func renderSection(role agent.Role, content string) string {
	p := role.Profile()
	return fmt.Sprintf("### %s Perspective (%s)\n%s\n", p.Title, p.Focus, strings.TrimSpace(content))
}

func renderDocument(startupName, topics string, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - Feature Development Documentation\n\n", startupName)
	b.WriteString("## Overview\n")
	b.WriteString("This document outlines various perspectives from the team on key feature developments and improvements.\n\n")
	b.WriteString(topics)
	b.WriteString("\n\n## Summary\n")
	b.WriteString("This collaborative document represents the combined insights of the entire team, ensuring a comprehensive approach to our development initiatives.\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.Format(time.RFC1123))
	return b.String()
}
