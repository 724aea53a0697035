package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

// stepClock returns a clock that advances one millisecond per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

func createSimulation(t *testing.T, s *SQLiteStore, userID string) *domain.Simulation {
	t.Helper()
	sim := &domain.Simulation{
		UserID:      userID,
		StartupName: "Acme",
		Description: "Rocket skates",
		Industry:    "SaaS",
	}
	if err := s.CreateSimulation(context.Background(), sim); err != nil {
		t.Fatalf("CreateSimulation failed: %v", err)
	}
	return sim
}

func TestUserUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil user, got %v, %v", got, err)
	}

	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1"}); err != nil {
		t.Fatalf("second UpsertUser failed: %v", err)
	}

	got, err = s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != "a@b.c" {
		t.Errorf("expected email to survive empty upsert, got %q", got.Email)
	}

	seen := time.UnixMilli(1_700_000_000_000)
	if err := s.UpdateLastSeen(ctx, "u1", seen); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	got, _ = s.GetUser(ctx, "u1")
	if !got.LastSeenAt.Equal(seen) {
		t.Errorf("expected last seen %v, got %v", seen, got.LastSeenAt)
	}
}

func TestSimulationLifecycle(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.UnixMilli(1_700_000_000_000))
	ctx := context.Background()

	first := createSimulation(t, s, "u1")
	second := createSimulation(t, s, "u1")
	createSimulation(t, s, "u2")

	if first.ID == "" || first.Version != 1 {
		t.Fatalf("expected ID and version 1, got %+v", first)
	}

	got, err := s.GetSimulation(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetSimulation failed: %v", err)
	}
	if got.StartupName != "Acme" || got.UserID != "u1" {
		t.Errorf("unexpected simulation: %+v", got)
	}

	if _, err := s.GetSimulation(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sims, err := s.ListSimulations(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSimulations failed: %v", err)
	}
	if len(sims) != 2 || sims[0].ID != second.ID {
		t.Fatalf("expected newest first, got %d sims", len(sims))
	}
}

func TestRecentConversationsKeepsLatestInOrder(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.UnixMilli(1_700_000_000_000))
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	agents := []string{"ceo", "cto", "pm"}
	for i := 0; i < 20; i++ {
		conv := &domain.Conversation{
			SimulationID:  sim.ID,
			AgentName:     agents[i%len(agents)],
			UserMessage:   "q" + string(rune('a'+i)),
			AgentResponse: domain.AgentReply{Message: "m", Tone: "t", Emotion: "e"},
		}
		if err := s.SaveConversation(ctx, conv); err != nil {
			t.Fatalf("SaveConversation failed: %v", err)
		}
	}

	recent, err := s.RecentConversations(ctx, sim.ID, 15)
	if err != nil {
		t.Fatalf("RecentConversations failed: %v", err)
	}
	if len(recent) != 15 {
		t.Fatalf("expected 15 conversations, got %d", len(recent))
	}
	if recent[0].UserMessage != "qf" || recent[14].UserMessage != "qt" {
		t.Errorf("expected qf..qt, got %s..%s", recent[0].UserMessage, recent[14].UserMessage)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].CreatedAt.Before(recent[i-1].CreatedAt) {
			t.Fatalf("history not chronological at %d", i)
		}
	}

	ceo, err := s.ListConversations(ctx, sim.ID, "ceo")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(ceo) != 7 {
		t.Errorf("expected 7 ceo conversations, got %d", len(ceo))
	}
	if ceo[0].AgentResponse.Tone != "t" {
		t.Errorf("agent response not decoded: %+v", ceo[0].AgentResponse)
	}
}

func TestUpdateAgentOutputWritesChangeLog(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.UnixMilli(1_700_000_000_000))
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	out, change, err := s.UpdateAgentOutput(ctx, domain.AgentOutputUpdate{
		SimulationID: sim.ID,
		AgentName:    "cto",
		Field:        "architecture",
		Value:        "monolith",
		ModifiedBy:   "u1",
	})
	if err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if out.Version != 1 || change.OldValue != "" || change.Type != domain.ChangeManual {
		t.Fatalf("unexpected first update: %+v %+v", out, change)
	}

	out, change, err = s.UpdateAgentOutput(ctx, domain.AgentOutputUpdate{
		SimulationID:    sim.ID,
		AgentName:       "cto",
		Field:           "architecture",
		Value:           "services",
		ModifiedBy:      "u1",
		Type:            domain.ChangeAppliedFromChat,
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if out.Version != 2 || change.OldValue != "monolith" || change.NewValue != "services" {
		t.Fatalf("unexpected second update: %+v %+v", out, change)
	}

	outputs, err := s.ListAgentOutputs(ctx, sim.ID)
	if err != nil {
		t.Fatalf("ListAgentOutputs failed: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Output != "services" {
		t.Fatalf("unexpected outputs: %+v", outputs)
	}

	logs, err := s.ListChangeLogs(ctx, sim.ID, "cto")
	if err != nil {
		t.Fatalf("ListChangeLogs failed: %v", err)
	}
	if len(logs) != 2 || logs[0].NewValue != "services" {
		t.Fatalf("expected newest change first, got %+v", logs)
	}
}

func TestUpdateAgentOutputVersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	update := domain.AgentOutputUpdate{SimulationID: sim.ID, AgentName: "pm", Field: "roadmap", Value: "v1", ModifiedBy: "u1"}
	if _, _, err := s.UpdateAgentOutput(ctx, update); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	update.Value = "stale"
	update.ExpectedVersion = 5
	if _, _, err := s.UpdateAgentOutput(ctx, update); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	logs, err := s.ListChangeLogs(ctx, sim.ID, "")
	if err != nil {
		t.Fatalf("ListChangeLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("rejected update must not log a change, got %d logs", len(logs))
	}

	update.Type = "bogus"
	update.ExpectedVersion = 0
	if _, _, err := s.UpdateAgentOutput(ctx, update); err == nil {
		t.Fatal("expected invalid change type to fail")
	}
}

func TestUpdateAgentOutputConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.UnixMilli(1_700_000_000_000))
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	const writers = 30
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateAgentOutput(ctx, domain.AgentOutputUpdate{
				SimulationID: sim.ID,
				AgentName:    "cto",
				Field:        "architecture",
				Value:        fmt.Sprintf("value-%d", i),
				ModifiedBy:   "u1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update failed: %v", err)
		}
	}

	outputs, err := s.ListAgentOutputs(ctx, sim.ID)
	if err != nil {
		t.Fatalf("ListAgentOutputs failed: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Version != writers {
		t.Fatalf("expected one output at version %d, got %+v", writers, outputs)
	}

	logs, err := s.ListChangeLogs(ctx, sim.ID, "cto")
	if err != nil {
		t.Fatalf("ListChangeLogs failed: %v", err)
	}
	if len(logs) != writers {
		t.Fatalf("expected %d change logs, got %d", writers, len(logs))
	}

	// Each update saw exactly the value the previous one wrote.
	olds := make(map[string]int)
	news := make(map[string]int)
	for _, l := range logs {
		olds[l.OldValue]++
		news[l.NewValue]++
	}
	news[""]++
	olds[outputs[0].Output]++
	for v, n := range olds {
		if n != 1 || news[v] != 1 {
			t.Fatalf("broken old_value chain at %q: old=%d new=%d", v, n, news[v])
		}
	}
	if len(olds) != len(news) {
		t.Fatalf("old/new value sets differ: %d vs %d", len(olds), len(news))
	}
}

func TestSaveConversationConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SaveConversation(ctx, &domain.Conversation{
				SimulationID:  sim.ID,
				AgentName:     "ceo",
				UserMessage:   fmt.Sprintf("question %d", i),
				AgentResponse: domain.AgentReply{Message: "answer", Tone: "calm", Emotion: "focused"},
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent save failed: %v", err)
		}
	}

	convs, err := s.ListConversations(ctx, sim.ID, "ceo")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != writers {
		t.Fatalf("expected %d conversations, got %d", writers, len(convs))
	}
}

func TestDocumentationAndChatInteractions(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.UnixMilli(1_700_000_000_000))
	ctx := context.Background()
	sim := createSimulation(t, s, "u1")

	for _, content := range []string{"old", "new"} {
		doc := &domain.Documentation{
			SimulationID: sim.ID,
			Content:      content,
			Metadata: domain.DocMetadata{
				Tone:    "professional",
				Emotion: "confident",
				Context: domain.DocContext{StartupName: "Acme", Industry: "SaaS"},
			},
		}
		if err := s.SaveDocumentation(ctx, doc); err != nil {
			t.Fatalf("SaveDocumentation failed: %v", err)
		}
	}

	docs, err := s.ListDocumentation(ctx, sim.ID)
	if err != nil {
		t.Fatalf("ListDocumentation failed: %v", err)
	}
	if len(docs) != 2 || docs[0].Content != "new" {
		t.Fatalf("expected newest doc first, got %+v", docs)
	}
	if docs[0].Metadata.Context.StartupName != "Acme" || docs[0].Metadata.Emotion != "confident" {
		t.Errorf("metadata not round-tripped: %+v", docs[0].Metadata)
	}

	chat := &domain.ChatInteraction{SimulationID: sim.ID, AgentName: "ceo", Question: "why?", Answer: "because"}
	if err := s.SaveChatInteraction(ctx, chat); err != nil {
		t.Fatalf("SaveChatInteraction failed: %v", err)
	}
	if chat.ID == "" {
		t.Error("expected chat interaction ID to be assigned")
	}
}
